// Package session owns the signed-in identity and everything derived from
// it: the credential pair, the collections loaded at sign-in and the
// effective permission set.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/text/unicode/norm"

	"github.com/despacho-app/despacho/internal/api"
	"github.com/despacho-app/despacho/internal/auditlog"
	"github.com/despacho-app/despacho/internal/credstore"
	"github.com/despacho-app/despacho/internal/gateway"
	"github.com/despacho-app/despacho/internal/perm"
)

// ErrNoSession is returned when an operation needs stored credentials and
// there are none.
var ErrNoSession = errors.New("session: not signed in")

// Options configures a Manager. Zero values are usable.
type Options struct {
	Logger   *slog.Logger
	Notifier Notifier
	Diag     auditlog.Recorder
	Tier     perm.Tier
}

// Manager holds the live session. Published state (identity, snapshot,
// permissions) is replaced wholesale under mu and never mutated in place;
// network calls are made without holding mu.
type Manager struct {
	api      *api.Client
	store    credstore.Store
	audit    *auditlog.Mirror
	tier     perm.Tier
	logger   *slog.Logger
	notifier Notifier
	diag     auditlog.Recorder

	mu       sync.RWMutex
	identity *api.User
	active   bool
	snapshot *Snapshot
	perms    perm.Set
}

// NewManager creates a Manager and registers its reset hook on the client's
// refresh coordinator.
func NewManager(client *api.Client, audit *auditlog.Mirror, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Logger: opts.Logger}
	}

	m := &Manager{
		api:      client,
		store:    client.Gateway().Store(),
		audit:    audit,
		tier:     opts.Tier,
		logger:   opts.Logger,
		notifier: opts.Notifier,
		diag:     opts.Diag,
		snapshot: &Snapshot{},
		perms:    perm.Set{},
	}

	client.Gateway().Refresher().OnReset(m.onSessionExpired)

	return m
}

// Identity returns a copy of the signed-in user, or nil.
func (m *Manager) Identity() *api.User {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.identity == nil {
		return nil
	}

	u := *m.identity

	return &u
}

// Active reports whether a session is signed in.
func (m *Manager) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.active
}

// Snapshot returns the current collections. The result must be treated as
// read-only.
func (m *Manager) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.snapshot
}

// Permissions returns a copy of the effective permission set.
func (m *Manager) Permissions() perm.Set {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.perms.Clone()
}

// Allows reports whether the current identity holds capability key.
func (m *Manager) Allows(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.perms.Allows(key)
}

// Elevated reports whether the current identity is in the elevated tier.
func (m *Manager) Elevated() bool {
	id := m.Identity()

	return id != nil && m.tier.HasFullAccess(id.RoleID)
}

// Audit returns the event log mirror.
func (m *Manager) Audit() *auditlog.Mirror {
	return m.audit
}

// SignIn authenticates, persists the credential pair and the identity, logs
// the sign-in to the audit trail and loads the session collections. A
// failed sign-in notifies the user and changes nothing. The returned error
// may be a *PartialLoadError when sign-in succeeded but loading did not.
func (m *Manager) SignIn(ctx context.Context, username, password string, remember bool) (*api.User, error) {
	resp, err := m.api.Login(ctx, username, password)
	if err != nil {
		m.notifier.Error(gateway.UserMessage(err))

		return nil, fmt.Errorf("session: sign in: %w", err)
	}

	if err := credstore.SavePair(m.store, &oauth2.Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}); err != nil {
		m.notifier.Error("could not store the session credentials")

		return nil, fmt.Errorf("session: sign in: %w", err)
	}

	if err := m.rememberUser(username, remember); err != nil {
		m.logger.Warn("updating remembered user", slog.String("error", err.Error()))
	}

	if err := SaveIdentity(m.store, resp.User); err != nil {
		m.logger.Warn("caching identity", slog.String("error", err.Error()))
	}

	user := resp.User
	m.install(&user)

	m.logger.Info("signed in",
		slog.String("user_id", user.ID),
		slog.String("role_id", user.RoleID),
	)

	m.audit.LogAction(ctx, user, api.ActionSignIn, "Inicio de sesión de "+user.Name, "")

	if err := m.Bootstrap(ctx); err != nil {
		return &user, err
	}

	return &user, nil
}

// SignOut logs the sign-out, tells the server on a best-effort basis and
// then clears every piece of local session state regardless of the outcome.
func (m *Manager) SignOut(ctx context.Context) error {
	if id := m.Identity(); id != nil {
		m.audit.LogAction(ctx, *id, api.ActionSignOut, "Cierre de sesión de "+id.Name, "")
	}

	if err := m.api.Logout(ctx); err != nil {
		m.logger.Warn("server sign-out failed, clearing local session anyway",
			slog.String("error", err.Error()),
		)
	}

	clearErr := credstore.ClearPair(m.store)

	m.resetLocal()
	m.audit.Reset()

	m.logger.Info("signed out")

	if clearErr != nil {
		return fmt.Errorf("session: sign out: %w", clearErr)
	}

	return nil
}

// Restore installs user as the identity of an existing stored session,
// without contacting the server.
func (m *Manager) Restore(user api.User) error {
	tok, err := credstore.LoadPair(m.store)
	if err != nil {
		return fmt.Errorf("session: restore: %w", err)
	}

	if tok == nil {
		return ErrNoSession
	}

	m.install(&user)

	return nil
}

// ReplaceRoles installs a new roles collection and re-resolves the
// permission set.
func (m *Manager) ReplaceRoles(roles []api.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshot = m.snapshot.withRoles(roles)

	if m.identity != nil {
		m.perms = m.resolve(m.identity.RoleID, roles)
	}
}

// UpdateRolePermissions stores a role's permission set on the server, logs
// the change and re-resolves the local permission set.
func (m *Manager) UpdateRolePermissions(ctx context.Context, roleID string, set perm.Set) error {
	id := m.Identity()
	if id == nil {
		return ErrNoSession
	}

	if err := m.api.SetRolePermissions(ctx, roleID, set); err != nil {
		m.notifier.Error(gateway.UserMessage(err))

		return fmt.Errorf("session: %w", err)
	}

	m.audit.LogAction(ctx, *id, api.ActionUpdatePermissions, "Permisos actualizados", roleID)

	roles := append([]api.Role(nil), m.Snapshot().Roles...)
	found := false

	for i := range roles {
		if roles[i].ID == roleID {
			roles[i].Permissions = set.Clone()
			found = true
		}
	}

	if !found {
		roles = append(roles, api.Role{ID: roleID, Permissions: set.Clone()})
	}

	m.ReplaceRoles(roles)

	return nil
}

// install starts a new session for user. The audit mirror is reset so its
// access state is decided again by this session's Bootstrap.
func (m *Manager) install(user *api.User) {
	m.mu.Lock()
	m.identity = user
	m.active = true
	m.snapshot = &Snapshot{}
	m.perms = m.resolve(user.RoleID, nil)
	m.mu.Unlock()

	m.audit.Reset()
}

func (m *Manager) resetLocal() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.identity = nil
	m.active = false
	m.snapshot = &Snapshot{}
	m.perms = perm.Set{}
}

// onSessionExpired runs after a failed refresh has already cleared the
// credentials.
func (m *Manager) onSessionExpired() {
	wasActive := m.Active()

	m.resetLocal()
	m.audit.Reset()

	if wasActive {
		m.notifier.Error(gateway.ErrSessionExpired.Error())
	}
}

// Detach drops the local session without contacting the server. It is
// used when another process has already signed out or replaced the stored
// credentials. Reports whether a session was active.
func (m *Manager) Detach() bool {
	wasActive := m.Active()

	m.resetLocal()
	m.audit.Reset()

	if wasActive {
		m.notifier.Info("session ended by another process")
	}

	return wasActive
}

// resolve must be called with mu held or on unpublished data.
func (m *Manager) resolve(roleID string, roles []api.Role) perm.Set {
	table := make(perm.RoleTable, len(roles))
	for _, r := range roles {
		table[r.ID] = r.Permissions
	}

	return perm.NewChain(m.logger, table, perm.DefaultTable{}).Resolve(roleID)
}

func (m *Manager) rememberUser(username string, remember bool) error {
	if !remember {
		return m.store.Delete(credstore.KeyRememberedUser)
	}

	return m.store.Set(credstore.KeyRememberedUser, norm.NFC.String(strings.TrimSpace(username)))
}

// RememberedUser returns the remembered username hint, or "".
func RememberedUser(s credstore.Store) (string, error) {
	v, err := s.Get(credstore.KeyRememberedUser)
	if err != nil {
		return "", fmt.Errorf("session: reading remembered user: %w", err)
	}

	return v, nil
}

// SaveIdentity caches user next to the credential pair.
func SaveIdentity(s credstore.Store, user api.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("session: encoding identity: %w", err)
	}

	if err := s.Set(credstore.KeyIdentity, string(data)); err != nil {
		return fmt.Errorf("session: saving identity: %w", err)
	}

	return nil
}

// StoredIdentity returns the cached identity, or nil if there is none.
func StoredIdentity(s credstore.Store) (*api.User, error) {
	raw, err := s.Get(credstore.KeyIdentity)
	if err != nil {
		return nil, fmt.Errorf("session: reading identity: %w", err)
	}

	if raw == "" {
		return nil, nil //nolint:nilnil // no cached identity
	}

	var u api.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("session: decoding identity: %w", err)
	}

	return &u, nil
}
