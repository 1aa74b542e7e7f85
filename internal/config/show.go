package config

import (
	"fmt"
	"io"
	"strings"
)

// RenderEffective writes the resolved configuration as an annotated TOML
// summary to w. This powers "config show": the values after all four
// override layers, with derived paths filled in.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	if r.Path != "" {
		ew.printf("# Effective configuration (file: %s)\n\n", r.Path)
	} else {
		ew.printf("# Effective configuration (defaults)\n\n")
	}

	ew.printf("[server]\n")
	ew.printf("  base_url        = %q\n", r.Server.BaseURL)
	ew.printf("  request_timeout = %q\n", r.Server.RequestTimeout)
	ew.printf("  refresh_timeout = %q\n", r.Server.RefreshTimeout)
	ew.printf("  user_agent      = %q\n\n", r.Server.UserAgent)

	ew.printf("[credentials]\n")
	ew.printf("  backend = %q\n", r.Credentials.Backend)

	if path := r.Credentials.CredentialsPath(); path != "" {
		ew.printf("  path    = %q\n", path)
	}

	ew.printf("\n[access]\n")
	ew.printf("  elevated_roles = [%s]\n\n", joinQuoted(r.Access.ElevatedRoles))

	ew.printf("[diagnostics]\n")
	ew.printf("  journal_path = %q\n", r.Diagnostics.JournalFile())
	ew.printf("  max_events   = %d\n\n", r.Diagnostics.MaxEvents)

	ew.printf("[logging]\n")
	ew.printf("  log_level = %q\n", r.Logging.LogLevel)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}

	return strings.Join(quoted, ", ")
}
