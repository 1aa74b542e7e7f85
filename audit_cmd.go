package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/despacho-app/despacho/internal/api"
	"github.com/despacho-app/despacho/internal/auditlog"
	"github.com/despacho-app/despacho/internal/diag"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read and append to the audit log",
	}

	cmd.AddCommand(newAuditLsCmd())
	cmd.AddCommand(newAuditLogCmd())

	return cmd
}

func newAuditLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List audit entries, newest first",
		Long: `List the audit log. Only roles with full access may read it; for other
roles the command reports the denial instead of failing.`,
		RunE: runAuditLs,
	}
}

func newAuditLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log <action> <details>",
		Short: "Append an entry to the audit log as the signed-in user",
		Args:  cobra.ExactArgs(2),
		RunE:  runAuditLog,
	}

	cmd.Flags().String("target", "", "id of the record the action applies to")

	return cmd
}

// auditLsOutput is the JSON schema for `audit ls --json`.
type auditLsOutput struct {
	Access  string           `json:"access"`
	Entries []api.AuditEntry `json:"entries"`
}

func runAuditLs(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		if _, err := a.restore(); err != nil {
			return err
		}

		mirror := a.session.Audit()
		access := mirror.Load(cmd.Context(), a.session.Elevated())

		out := auditLsOutput{Access: access.String(), Entries: mirror.Entries()}

		if wantJSON() {
			return printJSON(os.Stdout, out)
		}

		if access != auditlog.AccessGranted {
			statusf("The audit log is not readable in this session.\n")

			return nil
		}

		rows := make([][]string, 0, len(out.Entries))
		for _, e := range out.Entries {
			rows = append(rows, []string{formatTime(e.Timestamp), e.UserName, string(e.Action), e.TargetID, e.Details})
		}

		printTable(os.Stdout, []string{"TIME", "USER", "ACTION", "TARGET", "DETAILS"}, rows)

		return nil
	})
}

func runAuditLog(cmd *cobra.Command, args []string) error {
	target, _ := cmd.Flags().GetString("target")
	action := api.Action(strings.ToUpper(strings.TrimSpace(args[0])))

	if action == "" {
		return errors.New("action must not be empty")
	}

	return withApp(cmd.Context(), func(a *app) error {
		user, err := a.restore()
		if err != nil {
			return err
		}

		// Failures are recorded in the diagnostics journal, not returned.
		a.session.Audit().LogAction(cmd.Context(), *user, action, args[1], target)

		statusf("Logged %s.\n", action)

		return nil
	})
}

func newErrorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "List recent unexpected errors from the diagnostics journal",
		RunE:  runErrors,
	}

	cmd.Flags().Bool("clear", false, "delete every recorded event")

	return cmd
}

func runErrors(cmd *cobra.Command, _ []string) error {
	clearAll, _ := cmd.Flags().GetBool("clear")

	return withApp(cmd.Context(), func(a *app) error {
		if a.journal == nil {
			return fmt.Errorf("%w at %s", diag.ErrNoJournal, a.cfg.Diagnostics.JournalFile())
		}

		if clearAll {
			if err := a.journal.Clear(cmd.Context()); err != nil {
				return err
			}

			statusf("Diagnostics journal cleared.\n")

			return nil
		}

		events, err := a.journal.List(cmd.Context())
		if err != nil {
			return err
		}

		if wantJSON() {
			if events == nil {
				events = []diag.ErrorEvent{}
			}

			return printJSON(os.Stdout, events)
		}

		rows := make([][]string, 0, len(events))
		for _, ev := range events {
			rows = append(rows, []string{formatTime(ev.Timestamp), ev.Source, ev.Message})
		}

		printTable(os.Stdout, []string{"TIME", "SOURCE", "MESSAGE"}, rows)

		return nil
	})
}
