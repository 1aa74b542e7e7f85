package api

import (
	"time"

	"github.com/despacho-app/despacho/internal/perm"
)

// Action is the kind of event recorded in the audit log.
type Action string

// Audit actions the client emits.
const (
	ActionSignIn            Action = "INICIO_SESION"
	ActionSignOut           Action = "CIERRE_SESION"
	ActionCreate            Action = "CREAR"
	ActionUpdate            Action = "ACTUALIZAR"
	ActionDelete            Action = "ELIMINAR"
	ActionUpdatePermissions Action = "ACTUALIZAR_PERMISOS"
)

// User is a signed-in principal or an entry of the users collection.
type User struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	RoleID   string `json:"roleId"`
}

// Role carries the permission set the server assigns to a role id.
type Role struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name,omitempty"`
	Permissions perm.Set `json:"permissions"`
}

// Category classifies shipments.
type Category struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Office is a branch that dispatches or receives shipments.
type Office struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	City    string `json:"city,omitempty"`
}

// ShippingType is a service level with its base price.
type ShippingType struct {
	ID        string  `json:"id,omitempty"`
	Name      string  `json:"name"`
	BasePrice float64 `json:"basePrice,omitempty"`
}

// PaymentMethod is how an invoice is settled.
type PaymentMethod struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// ExpenseCategory groups operating expenses.
type ExpenseCategory struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	AccountID string `json:"accountId,omitempty"`
}

// Account is one entry of the chart of accounts.
type Account struct {
	ID       string `json:"id,omitempty"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	ParentID string `json:"parentId,omitempty"`
}

// CompanyInfo is the public company profile.
type CompanyInfo struct {
	Name    string `json:"name"`
	TaxID   string `json:"taxId,omitempty"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	LogoURL string `json:"logoUrl,omitempty"`
}

// AuditEntry is one record of the server-side audit trail. The server
// assigns ID.
type AuditEntry struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Action    Action    `json:"action"`
	Details   string    `json:"details"`
	TargetID  string    `json:"targetId,omitempty"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the answer to a successful sign-in.
type LoginResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
