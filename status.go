package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/despacho-app/despacho/internal/credstore"
	"github.com/despacho-app/despacho/internal/session"
)

// Token state constants for status reporting.
const (
	tokenStateMissing = "missing"
	tokenStateExpired = "expired"
	tokenStateValid   = "valid"
	tokenStateUnknown = "unknown expiry"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session, credential and permission state",
		Long: `Display the local session state without contacting the server: where
credentials are kept, whether a token pair is stored and still valid, the
cached identity and the permissions its role resolves to.`,
		RunE: runStatus,
	}
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	ConfigPath     string    `json:"config_path"`
	Server         string    `json:"server"`
	Backend        string    `json:"credential_backend"`
	CredentialPath string    `json:"credential_path,omitempty"`
	TokenState     string    `json:"token_state"`
	TokenExpiry    time.Time `json:"token_expiry,omitzero"`
	RememberedUser string    `json:"remembered_user,omitempty"`
	User           string    `json:"user,omitempty"`
	Role           string    `json:"role,omitempty"`
	Elevated       bool      `json:"elevated"`
	Permissions    []string  `json:"permissions"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		out := statusOutput{
			ConfigPath:     a.cfg.Path,
			Server:         a.cfg.Server.BaseURL,
			Backend:        a.cfg.Credentials.Backend,
			CredentialPath: a.cfg.Credentials.CredentialsPath(),
			Permissions:    []string{},
		}

		tok, err := credstore.LoadPair(a.store)
		if err != nil {
			return err
		}

		out.TokenState, out.TokenExpiry = tokenState(tok, time.Now())

		if out.RememberedUser, err = session.RememberedUser(a.store); err != nil {
			return err
		}

		if user, err := a.restore(); err == nil {
			out.User = user.Name
			out.Role = user.RoleID
			out.Elevated = a.session.Elevated()
			out.Permissions = a.session.Permissions().Granted()
		}

		if wantJSON() {
			return printJSON(os.Stdout, out)
		}

		printStatusText(out)

		return nil
	})
}

// tokenState classifies a stored pair. An access token whose expiry cannot
// be read is neither valid nor expired; the server decides on first use.
func tokenState(tok *oauth2.Token, now time.Time) (string, time.Time) {
	switch {
	case tok == nil:
		return tokenStateMissing, time.Time{}
	case tok.Expiry.IsZero():
		return tokenStateUnknown, time.Time{}
	case now.After(tok.Expiry):
		return tokenStateExpired, tok.Expiry
	default:
		return tokenStateValid, tok.Expiry
	}
}

func printStatusText(out statusOutput) {
	fmt.Printf("Config:       %s\n", out.ConfigPath)
	fmt.Printf("Server:       %s\n", out.Server)

	if out.CredentialPath != "" {
		fmt.Printf("Credentials:  %s (%s)\n", out.Backend, out.CredentialPath)
	} else {
		fmt.Printf("Credentials:  %s\n", out.Backend)
	}

	if out.TokenExpiry.IsZero() {
		fmt.Printf("Token:        %s\n", out.TokenState)
	} else {
		fmt.Printf("Token:        %s (expires %s)\n", out.TokenState, formatTime(out.TokenExpiry))
	}

	if out.RememberedUser != "" {
		fmt.Printf("Remembered:   %s\n", out.RememberedUser)
	}

	if out.User == "" {
		fmt.Println("Session:      not signed in")

		return
	}

	tier := "standard"
	if out.Elevated {
		tier = "full access"
	}

	fmt.Printf("Session:      %s, role %s (%s)\n", out.User, out.Role, tier)
	fmt.Printf("Permissions:  %s\n", strings.Join(out.Permissions, ", "))
}
