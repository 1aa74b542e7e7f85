package session

import (
	"fmt"
	"strings"

	"github.com/despacho-app/despacho/internal/api"
)

// AccountsSource tells where the chart of accounts in a Snapshot came from.
type AccountsSource int

const (
	// AccountsNotAttempted: the identity may not read gated collections, so
	// the chart was never requested and is empty.
	AccountsNotAttempted AccountsSource = iota
	// AccountsAdopted: the server returned a non-empty chart.
	AccountsAdopted
	// AccountsDefaulted: the chart was requested but came back empty or
	// denied, and the built-in chart stands in.
	AccountsDefaulted
)

func (s AccountsSource) String() string {
	switch s {
	case AccountsAdopted:
		return "server"
	case AccountsDefaulted:
		return "default"
	default:
		return "not_attempted"
	}
}

// Snapshot is the set of collections loaded for one identity. A published
// Snapshot is never modified; a reload publishes a new one.
type Snapshot struct {
	Categories     []api.Category      `json:"categories"`
	Offices        []api.Office        `json:"offices"`
	ShippingTypes  []api.ShippingType  `json:"shippingTypes"`
	PaymentMethods []api.PaymentMethod `json:"paymentMethods"`

	Users             []api.User            `json:"users"`
	Roles             []api.Role            `json:"roles"`
	ExpenseCategories []api.ExpenseCategory `json:"expenseCategories"`
	Accounts          []api.Account         `json:"accounts"`

	GatedLoaded    bool             `json:"gatedLoaded"`
	AccountsSource AccountsSource   `json:"accountsSource"`
	Company        *api.CompanyInfo `json:"company,omitempty"`
}

// Counts returns the number of records per collection name.
func (s *Snapshot) Counts() map[string]int {
	if s == nil {
		return map[string]int{}
	}

	return map[string]int{
		CollectionCategories:        len(s.Categories),
		CollectionOffices:           len(s.Offices),
		CollectionShippingTypes:     len(s.ShippingTypes),
		CollectionPaymentMethods:    len(s.PaymentMethods),
		CollectionUsers:             len(s.Users),
		CollectionRoles:             len(s.Roles),
		CollectionExpenseCategories: len(s.ExpenseCategories),
		CollectionAccounts:          len(s.Accounts),
	}
}

// withRoles returns a copy of s with roles replaced.
func (s *Snapshot) withRoles(roles []api.Role) *Snapshot {
	next := &Snapshot{}
	if s != nil {
		*next = *s
	}

	next.Roles = roles

	return next
}

// Collection names, as reported in PartialLoadError.
const (
	CollectionCategories        = "categories"
	CollectionOffices           = "offices"
	CollectionShippingTypes     = "shipping-types"
	CollectionPaymentMethods    = "payment-methods"
	CollectionUsers             = "users"
	CollectionRoles             = "roles"
	CollectionExpenseCategories = "expense-categories"
	CollectionAccounts          = "accounts"
)

// PartialLoadError reports the always-fetchable collections that could not
// be loaded. Err joins the individual failures.
type PartialLoadError struct {
	Collections []string
	Err         error
}

func (e *PartialLoadError) Error() string {
	return fmt.Sprintf("session: could not load %s: %v", strings.Join(e.Collections, ", "), e.Err)
}

func (e *PartialLoadError) Unwrap() error {
	return e.Err
}
