// Package api is the typed surface of the despacho HTTP contract. Every call
// goes through a gateway.Client, so credentials and refresh are handled there.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/despacho-app/despacho/internal/gateway"
	"github.com/despacho-app/despacho/internal/perm"
)

// Endpoint paths, relative to the gateway base URL.
const (
	PathLogin             = "/auth/login"
	PathLogout            = "/auth/logout"
	PathCompanyInfo       = "/company-info"
	PathCategories        = "/categories"
	PathOffices           = "/offices"
	PathShippingTypes     = "/shipping-types"
	PathPaymentMethods    = "/payment-methods"
	PathUsers             = "/users"
	PathRoles             = "/roles"
	PathExpenseCategories = "/expense-categories"
	PathAccounts          = "/cuentas-contables"
	PathAuditLogs         = "/audit-logs"
)

// ErrIncompleteLogin is returned when the server accepted a sign-in but
// omitted the identity or one of the tokens.
var ErrIncompleteLogin = errors.New("api: login response is missing the user or tokens")

// Client groups the endpoints. The collection fields are ready to use.
type Client struct {
	gw *gateway.Client

	Categories        Collection[Category]
	Offices           Collection[Office]
	ShippingTypes     Collection[ShippingType]
	PaymentMethods    Collection[PaymentMethod]
	Users             Collection[User]
	Roles             Collection[Role]
	ExpenseCategories Collection[ExpenseCategory]
	Accounts          Collection[Account]
	AuditLogs         Collection[AuditEntry]
}

// New wraps gw.
func New(gw *gateway.Client) *Client {
	return &Client{
		gw:                gw,
		Categories:        NewCollection[Category](gw, PathCategories),
		Offices:           NewCollection[Office](gw, PathOffices),
		ShippingTypes:     NewCollection[ShippingType](gw, PathShippingTypes),
		PaymentMethods:    NewCollection[PaymentMethod](gw, PathPaymentMethods),
		Users:             NewCollection[User](gw, PathUsers),
		Roles:             NewCollection[Role](gw, PathRoles),
		ExpenseCategories: NewCollection[ExpenseCategory](gw, PathExpenseCategories),
		Accounts:          NewCollection[Account](gw, PathAccounts),
		AuditLogs:         NewCollection[AuditEntry](gw, PathAuditLogs),
	}
}

// Gateway returns the underlying gateway.
func (c *Client) Gateway() *gateway.Client {
	return c.gw
}

// Login exchanges a username and password for an identity and a token pair.
// A 401 here means bad credentials, so it does not start a refresh.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	resp, err := c.gw.Do(ctx, gateway.Request{
		Method:      http.MethodPost,
		Path:        PathLogin,
		Body:        LoginRequest{Username: username, Password: password},
		SkipRefresh: true,
	})
	if err != nil {
		return nil, fmt.Errorf("api: login: %w", err)
	}

	var out LoginResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("api: login: %w", err)
	}

	if out.User.ID == "" || out.AccessToken == "" || out.RefreshToken == "" {
		return nil, ErrIncompleteLogin
	}

	return &out, nil
}

// Logout tells the server the session is over.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.gw.Do(ctx, gateway.Request{
		Method:      http.MethodPost,
		Path:        PathLogout,
		SkipRefresh: true,
	})
	if err != nil {
		return fmt.Errorf("api: logout: %w", err)
	}

	return nil
}

// CompanyInfo fetches the public company profile.
func (c *Client) CompanyInfo(ctx context.Context) (*CompanyInfo, error) {
	var out CompanyInfo
	if err := c.gw.Call(ctx, http.MethodGet, PathCompanyInfo, nil, &out); err != nil {
		return nil, fmt.Errorf("api: company info: %w", err)
	}

	return &out, nil
}

// UpdateCompanyInfo replaces the company profile.
func (c *Client) UpdateCompanyInfo(ctx context.Context, info CompanyInfo) (*CompanyInfo, error) {
	out := info
	if err := c.gw.Call(ctx, http.MethodPut, PathCompanyInfo, info, &out); err != nil {
		return nil, fmt.Errorf("api: updating company info: %w", err)
	}

	return &out, nil
}

// SetRolePermissions replaces the permission set of a role.
func (c *Client) SetRolePermissions(ctx context.Context, roleID string, set perm.Set) error {
	path := PathRoles + "/" + url.PathEscape(roleID) + "/permissions"

	body := struct {
		Permissions perm.Set `json:"permissions"`
	}{Permissions: set}

	if err := c.gw.Call(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("api: setting permissions of %s: %w", roleID, err)
	}

	return nil
}
