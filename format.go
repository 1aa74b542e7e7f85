package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// wantJSON reports whether output should be JSON: always with --json, and
// by default when stdout is not a terminal.
func wantJSON() bool {
	return flagJSON || !isTerminal(os.Stdout)
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	t = t.Local()

	if t.Year() == time.Now().Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

// stderrNotifier shows session notices on stderr. Errors are shown even in
// quiet mode.
type stderrNotifier struct {
	quiet bool
}

func (n stderrNotifier) Error(msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
}

func (n stderrNotifier) Info(msg string) {
	if !n.quiet {
		fmt.Fprintln(os.Stderr, msg)
	}
}

// commandNotifier serves one-shot commands. Their failures reach the user
// as the returned error, so error notices only go to the debug log.
type commandNotifier struct {
	stderrNotifier

	logger *slog.Logger
}

func (n commandNotifier) Error(msg string) {
	n.logger.Debug("session error notice", slog.String("message", msg))
}
