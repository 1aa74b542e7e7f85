package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTime(t *testing.T) {
	now := time.Now()

	t.Run("zero", func(t *testing.T) {
		assert.Equal(t, "-", formatTime(time.Time{}))
	})

	t.Run("same year", func(t *testing.T) {
		result := formatTime(time.Date(now.Year(), time.March, 15, 10, 30, 0, 0, time.Local))
		assert.Contains(t, result, "Mar")
		assert.Contains(t, result, "15")
		assert.Contains(t, result, "10:30")
	})

	t.Run("different year", func(t *testing.T) {
		result := formatTime(time.Date(2020, time.December, 25, 8, 0, 0, 0, time.Local))
		assert.Contains(t, result, "Dec")
		assert.Contains(t, result, "2020")
	})
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"ID", "NAME"}, [][]string{
		{"1", "Oficina Norte"},
		{"22", "Sur"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ID  NAME", lines[0])
	assert.Equal(t, "1   Oficina Norte", lines[1])
	assert.Equal(t, "22  Sur", lines[2])
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, printJSON(&buf, map[string]int{"offices": 2}))
	assert.Equal(t, "{\n  \"offices\": 2\n}\n", buf.String())
}

func TestReadPassword(t *testing.T) {
	pw, err := readPassword(strings.NewReader("s3cret\r\nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)

	pw, err = readPassword(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", pw)

	_, err = readPassword(strings.NewReader("\n"))
	assert.Error(t, err)
}

func TestCommandNotifier_ErrorsOnlyReachDebugLog(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	n := commandNotifier{logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level}))}

	n.Error("Usuario o contraseña incorrectos")
	assert.Empty(t, buf.String(), "returned error is the only user-facing copy")

	level.Set(slog.LevelDebug)
	n.Error("Usuario o contraseña incorrectos")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "Usuario o contraseña incorrectos")
}
