package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/despacho-app/despacho/internal/api"
	"github.com/despacho-app/despacho/internal/session"
)

func newBootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Load the session catalogs and print a summary",
		Long: `Reload every catalog the stored identity may see and print the number
of records per collection. Without a stored session only the public company
profile is loaded.`,
		RunE: runBootstrap,
	}
}

// bootstrapOutput is the JSON schema for `bootstrap --json` and the login
// summary.
type bootstrapOutput struct {
	User           *api.User        `json:"user,omitempty"`
	Elevated       bool             `json:"elevated"`
	GatedLoaded    bool             `json:"gated_loaded"`
	AccountsSource string           `json:"accounts_source"`
	Counts         map[string]int   `json:"counts"`
	Company        *api.CompanyInfo `json:"company,omitempty"`
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		if _, err := a.restore(); err != nil && !errors.Is(err, errNotSignedIn) {
			return err
		}

		if err := a.session.Bootstrap(cmd.Context()); err != nil {
			return err
		}

		return printBootstrap(a)
	})
}

func printBootstrap(a *app) error {
	snap := a.session.Snapshot()

	out := bootstrapOutput{
		User:           a.session.Identity(),
		Elevated:       a.session.Elevated(),
		GatedLoaded:    snap.GatedLoaded,
		AccountsSource: snap.AccountsSource.String(),
		Counts:         snap.Counts(),
		Company:        snap.Company,
	}

	if wantJSON() {
		return printJSON(os.Stdout, out)
	}

	if out.Company != nil {
		fmt.Printf("Company: %s\n", out.Company.Name)
	}

	if out.User == nil {
		return nil
	}

	names := make([]string, 0, len(out.Counts))
	for name := range out.Counts {
		names = append(names, name)
	}

	slices.Sort(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, strconv.Itoa(out.Counts[name])})
	}

	printTable(os.Stdout, []string{"COLLECTION", "RECORDS"}, rows)
	fmt.Printf("\nChart of accounts: %s\n", out.AccountsSource)

	return nil
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "ls <collection>",
		Short:     "List the records of a collection",
		Long:      "List a collection straight from the server. Collections: " + strings.Join(collectionNames(), ", ") + ".",
		Args:      cobra.ExactArgs(1),
		ValidArgs: collectionNames(),
		RunE:      runLs,
	}
}

// listing is a fetched collection ready for table or JSON output.
type listing struct {
	headers []string
	rows    [][]string
	data    any
}

type lister func(ctx context.Context, c *api.Client) (*listing, error)

func listOf[T any](ctx context.Context, coll api.Collection[T], headers []string, row func(T) []string) (*listing, error) {
	items, err := coll.List(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, row(it))
	}

	return &listing{headers: headers, rows: rows, data: items}, nil
}

var idName = []string{"ID", "NAME"}

var listers = map[string]lister{
	session.CollectionCategories: func(ctx context.Context, c *api.Client) (*listing, error) {
		return listOf(ctx, c.Categories, idName, func(v api.Category) []string { return []string{v.ID, v.Name} })
	},
	session.CollectionOffices: func(ctx context.Context, c *api.Client) (*listing, error) {
		return listOf(ctx, c.Offices, []string{"ID", "NAME", "CITY"}, func(v api.Office) []string {
			return []string{v.ID, v.Name, v.City}
		})
	},
	session.CollectionShippingTypes: func(ctx context.Context, c *api.Client) (*listing, error) {
		return listOf(ctx, c.ShippingTypes, idName, func(v api.ShippingType) []string { return []string{v.ID, v.Name} })
	},
	session.CollectionPaymentMethods: func(ctx context.Context, c *api.Client) (*listing, error) {
		return listOf(ctx, c.PaymentMethods, idName, func(v api.PaymentMethod) []string { return []string{v.ID, v.Name} })
	},
	session.CollectionUsers: func(ctx context.Context, c *api.Client) (*listing, error) {
		return listOf(ctx, c.Users, []string{"ID", "NAME", "USERNAME", "ROLE"}, func(v api.User) []string {
			return []string{v.ID, v.Name, v.Username, v.RoleID}
		})
	},
	session.CollectionRoles: func(ctx context.Context, c *api.Client) (*listing, error) {
		return listOf(ctx, c.Roles, []string{"ID", "NAME", "PERMISSIONS"}, func(v api.Role) []string {
			return []string{v.ID, v.Name, strings.Join(v.Permissions.Granted(), ",")}
		})
	},
	session.CollectionExpenseCategories: func(ctx context.Context, c *api.Client) (*listing, error) {
		return listOf(ctx, c.ExpenseCategories, []string{"ID", "NAME", "ACCOUNT"}, func(v api.ExpenseCategory) []string {
			return []string{v.ID, v.Name, v.AccountID}
		})
	},
	session.CollectionAccounts: func(ctx context.Context, c *api.Client) (*listing, error) {
		return listOf(ctx, c.Accounts, []string{"CODE", "NAME", "TYPE"}, func(v api.Account) []string {
			return []string{v.Code, v.Name, v.Type}
		})
	},
}

func collectionNames() []string {
	names := make([]string, 0, len(listers))
	for name := range listers {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

func runLs(cmd *cobra.Command, args []string) error {
	list, ok := listers[args[0]]
	if !ok {
		return fmt.Errorf("unknown collection %q (one of %s)", args[0], strings.Join(collectionNames(), ", "))
	}

	return withApp(cmd.Context(), func(a *app) error {
		if _, err := a.restore(); err != nil && !errors.Is(err, errNotSignedIn) {
			return err
		}

		l, err := list(cmd.Context(), a.api)
		if err != nil {
			return fmt.Errorf("listing %s: %w", args[0], err)
		}

		if wantJSON() {
			return printJSON(os.Stdout, l.data)
		}

		printTable(os.Stdout, l.headers, l.rows)

		return nil
	})
}
