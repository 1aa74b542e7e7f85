// Package perm resolves the effective permission set for a role. Resolution
// walks an ordered list of strategies; the first one that knows the role
// wins and an unknown role ends up with nothing allowed.
package perm

import (
	"log/slog"
	"maps"
	"slices"
)

// Capability keys understood by the client.
const (
	Dashboard   = "dashboard"
	Shipments   = "envios"
	Invoices    = "facturas"
	Expenses    = "gastos"
	Accounting  = "contabilidad"
	Catalogs    = "catalogos"
	Users       = "usuarios"
	Roles       = "roles"
	AuditLog    = "bitacora"
	Settings    = "configuracion"
	Reports     = "reportes"
	CompanyInfo = "empresa"
)

// AllKeys lists every capability key, in display order.
var AllKeys = []string{
	Dashboard, Shipments, Invoices, Expenses, Accounting, Catalogs,
	Users, Roles, AuditLog, Settings, Reports, CompanyInfo,
}

// Set maps capability keys to a grant. Missing keys are denied.
type Set map[string]bool

// Allows reports whether key is granted. A nil Set denies everything.
func (s Set) Allows(key string) bool {
	return s[key]
}

// Clone returns an independent copy. Clone of nil is an empty, non-nil Set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	maps.Copy(out, s)

	return out
}

// Granted returns the granted keys, sorted.
func (s Set) Granted() []string {
	keys := make([]string, 0, len(s))

	for k, v := range s {
		if v {
			keys = append(keys, k)
		}
	}

	slices.Sort(keys)

	return keys
}

// Resolver is one resolution strategy. ok is false when the strategy has no
// opinion about roleID.
type Resolver interface {
	Resolve(roleID string) (set Set, ok bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(roleID string) (Set, bool)

// Resolve calls f.
func (f ResolverFunc) Resolve(roleID string) (Set, bool) {
	return f(roleID)
}

// RoleTable resolves from role records fetched from the server.
type RoleTable map[string]Set

// Resolve returns a copy of the role's set.
func (t RoleTable) Resolve(roleID string) (Set, bool) {
	set, ok := t[roleID]
	if !ok {
		return nil, false
	}

	return set.Clone(), true
}

// Chain evaluates resolvers in order.
type Chain struct {
	resolvers []Resolver
	logger    *slog.Logger
}

// NewChain builds a chain. When every resolver declines, the chain yields an
// empty Set and logs the role id at warn level.
func NewChain(logger *slog.Logger, resolvers ...Resolver) *Chain {
	if logger == nil {
		logger = slog.Default()
	}

	return &Chain{resolvers: resolvers, logger: logger}
}

// Resolve returns the first non-absent result. It never returns nil.
func (c *Chain) Resolve(roleID string) Set {
	for _, r := range c.resolvers {
		if r == nil {
			continue
		}

		if set, ok := r.Resolve(roleID); ok {
			if set == nil {
				return Set{}
			}

			return set
		}
	}

	c.logger.Warn("no permission table for role, denying all",
		slog.String("role_id", roleID),
	)

	return Set{}
}

// Tier decides which roles may read the gated collections.
type Tier struct {
	elevated map[string]struct{}
}

// DefaultElevatedRoles are the roles with full access unless configured
// otherwise.
var DefaultElevatedRoles = []string{"role-admin", "role-tecnico"}

// NewTier returns a Tier for roles. An empty list selects
// DefaultElevatedRoles.
func NewTier(roles []string) Tier {
	if len(roles) == 0 {
		roles = DefaultElevatedRoles
	}

	t := Tier{elevated: make(map[string]struct{}, len(roles))}
	for _, r := range roles {
		t.elevated[r] = struct{}{}
	}

	return t
}

// HasFullAccess reports whether roleID is in the elevated tier.
func (t Tier) HasFullAccess(roleID string) bool {
	if t.elevated == nil {
		t = NewTier(nil)
	}

	_, ok := t.elevated[roleID]

	return ok
}
