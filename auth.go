package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/despacho-app/despacho/internal/api"
	"github.com/despacho-app/despacho/internal/credstore"
	"github.com/despacho-app/despacho/internal/session"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and load the session catalogs",
		Long: `Sign in with a username and password, store the credentials and load
the catalogs the role can see.

Without --username the remembered user is used. The password is read from
stdin: one line, prompted for when stdin is a terminal.`,
		RunE: runLogin,
	}

	cmd.Flags().String("username", "", "username to sign in as")
	cmd.Flags().Bool("password-stdin", false, "read the password from stdin without prompting")
	cmd.Flags().Bool("remember", false, "remember the username for the next login")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored credentials",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the signed-in user, role and token expiry",
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	username, _ := cmd.Flags().GetString("username")
	passwordStdin, _ := cmd.Flags().GetBool("password-stdin")
	remember, _ := cmd.Flags().GetBool("remember")

	return withApp(cmd.Context(), func(a *app) error {
		if username == "" {
			hint, err := session.RememberedUser(a.store)
			if err != nil {
				return err
			}

			if hint == "" {
				return errors.New("no remembered user, pass --username")
			}

			username = hint
		}

		if !passwordStdin && isTerminal(os.Stdin) {
			// Prompts must always be visible, even with --quiet.
			fmt.Fprintf(os.Stderr, "Password for %s: ", username)
		}

		password, err := readPassword(os.Stdin)
		if err != nil {
			return err
		}

		a.logger.Info("login started", "username", username)

		user, err := a.session.SignIn(cmd.Context(), username, password, remember)
		if user == nil {
			return err
		}

		if err != nil {
			// Signed in, but some catalogs did not load.
			statusf("Signed in as %s, but: %v\n", user.Name, err)
		} else {
			statusf("Signed in as %s.\n", user.Name)
		}

		return printBootstrap(a)
	})
}

// readPassword reads one line from r, without the line terminator.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}

	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("empty password")
	}

	return password, nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		if _, err := a.restore(); err != nil && !errors.Is(err, errNotSignedIn) {
			return err
		}

		if err := a.session.SignOut(cmd.Context()); err != nil {
			return err
		}

		statusf("Signed out.\n")

		return nil
	})
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	User        api.User  `json:"user"`
	Elevated    bool      `json:"elevated"`
	Permissions []string  `json:"permissions"`
	TokenExpiry time.Time `json:"token_expiry,omitzero"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		user, err := a.restore()
		if err != nil {
			return err
		}

		out := whoamiOutput{
			User:        *user,
			Elevated:    a.session.Elevated(),
			Permissions: a.session.Permissions().Granted(),
			TokenExpiry: tokenExpiry(a),
		}

		if wantJSON() {
			return printJSON(os.Stdout, out)
		}

		printWhoamiText(out)

		return nil
	})
}

func printWhoamiText(out whoamiOutput) {
	tier := "standard"
	if out.Elevated {
		tier = "full access"
	}

	fmt.Printf("User:    %s (%s)\n", out.User.Name, out.User.Username)
	fmt.Printf("ID:      %s\n", out.User.ID)

	if out.User.Email != "" {
		fmt.Printf("Email:   %s\n", out.User.Email)
	}

	fmt.Printf("Role:    %s (%s)\n", out.User.RoleID, tier)
	fmt.Printf("Token:   expires %s\n", formatTime(out.TokenExpiry))
	fmt.Printf("Access:  %s\n", strings.Join(out.Permissions, ", "))
}

// tokenExpiry returns the stored access token's expiry, or the zero time.
func tokenExpiry(a *app) time.Time {
	tok, err := credstore.LoadPair(a.store)
	if err != nil || tok == nil {
		return time.Time{}
	}

	return tok.Expiry
}

