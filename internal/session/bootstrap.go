package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/despacho-app/despacho/internal/api"
	"github.com/despacho-app/despacho/internal/gateway"
	"github.com/despacho-app/despacho/internal/perm"
)

// Bootstrap loads the collections for the current identity and publishes a
// new Snapshot and permission set. Without an identity it loads only the
// public company profile.
//
// The always-fetchable group must load completely; any failure aborts with a
// *PartialLoadError and leaves the published state untouched. The gated
// group is only requested for elevated identities, and each of its fetches
// degrades to empty on failure.
func (m *Manager) Bootstrap(ctx context.Context) error {
	id := m.Identity()
	if id == nil {
		m.publishAnonymous(m.loadCompany(ctx))

		return nil
	}

	next := &Snapshot{}

	if err := m.loadPublic(ctx, next); err != nil {
		return err
	}

	elevated := m.tier.HasFullAccess(id.RoleID)
	if elevated {
		m.loadGated(ctx, next)
	}

	if !m.publish(id, next) {
		m.logger.Info("identity changed during bootstrap, discarding results")

		return nil
	}

	m.audit.Load(ctx, elevated)

	m.logger.Info("session loaded",
		slog.String("user_id", id.ID),
		slog.Bool("elevated", elevated),
		slog.String("accounts", next.AccountsSource.String()),
	)

	return nil
}

// loadPublic fetches the four always-fetchable collections concurrently.
func (m *Manager) loadPublic(ctx context.Context, next *Snapshot) error {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed []string
		errs   []error
	)

	fail := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()

		failed = append(failed, name)
		errs = append(errs, err)
	}

	g.Go(func() error {
		v, err := m.api.Categories.List(ctx)
		if err != nil {
			fail(CollectionCategories, err)

			return err
		}

		next.Categories = v

		return nil
	})

	g.Go(func() error {
		v, err := m.api.Offices.List(ctx)
		if err != nil {
			fail(CollectionOffices, err)

			return err
		}

		next.Offices = v

		return nil
	})

	g.Go(func() error {
		v, err := m.api.ShippingTypes.List(ctx)
		if err != nil {
			fail(CollectionShippingTypes, err)

			return err
		}

		next.ShippingTypes = v

		return nil
	})

	g.Go(func() error {
		v, err := m.api.PaymentMethods.List(ctx)
		if err != nil {
			fail(CollectionPaymentMethods, err)

			return err
		}

		next.PaymentMethods = v

		return nil
	})

	if g.Wait() == nil {
		return nil
	}

	slices.Sort(failed)

	loadErr := &PartialLoadError{Collections: failed, Err: errors.Join(errs...)}

	// An expired session has already been reported by the reset hook.
	if gateway.Classify(loadErr.Err) != gateway.ClassSessionExpired {
		m.logger.Warn("bootstrap aborted", slog.String("error", loadErr.Error()))
		m.notifier.Error("could not load " + strings.Join(failed, ", "))
	}

	return loadErr
}

// loadGated fetches the four gated collections concurrently; none of them
// can fail the group.
func (m *Manager) loadGated(ctx context.Context, next *Snapshot) {
	var g errgroup.Group

	g.Go(func() error {
		next.Users = Degrade(ctx, m.api.Users.List, []api.User{}, m.reportDegraded(ctx, CollectionUsers))

		return nil
	})

	g.Go(func() error {
		next.Roles = Degrade(ctx, m.api.Roles.List, []api.Role{}, m.reportDegraded(ctx, CollectionRoles))

		return nil
	})

	g.Go(func() error {
		next.ExpenseCategories = Degrade(ctx, m.api.ExpenseCategories.List, []api.ExpenseCategory{},
			m.reportDegraded(ctx, CollectionExpenseCategories))

		return nil
	})

	g.Go(func() error {
		next.Accounts = Degrade(ctx, m.api.Accounts.List, []api.Account{}, m.reportDegraded(ctx, CollectionAccounts))

		return nil
	})

	_ = g.Wait() // every goroutine returns nil

	next.GatedLoaded = true

	if len(next.Accounts) > 0 {
		next.AccountsSource = AccountsAdopted
	} else {
		next.Accounts = DefaultChartOfAccounts()
		next.AccountsSource = AccountsDefaulted
	}
}

func (m *Manager) reportDegraded(ctx context.Context, name string) func(error) {
	return func(err error) {
		m.logger.Warn("gated collection unavailable, using empty list",
			slog.String("collection", name),
			slog.String("error", err.Error()),
		)

		if m.diag != nil {
			m.diag.RecordError(ctx, "session.bootstrap."+name, err)
		}
	}
}

// loadCompany fetches the public profile, falling back to the offline record.
// A profile without a name counts as missing: a non-JSON 2xx body decodes to
// an empty record.
func (m *Manager) loadCompany(ctx context.Context) *api.CompanyInfo {
	info, err := m.api.CompanyInfo(ctx)
	if err != nil {
		m.logger.Debug("company info unavailable, using offline profile",
			slog.String("error", err.Error()),
		)

		return OfflineCompanyInfo()
	}

	if info == nil || strings.TrimSpace(info.Name) == "" {
		m.logger.Debug("company info response carried no profile, using offline profile")

		return OfflineCompanyInfo()
	}

	return info
}

// publish installs next for id. It reports false when the identity changed
// while next was being loaded.
func (m *Manager) publish(id *api.User, next *Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.identity == nil || m.identity.ID != id.ID {
		return false
	}

	m.snapshot = next
	m.perms = m.resolve(id.RoleID, next.Roles)

	return true
}

func (m *Manager) publishAnonymous(info *api.CompanyInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.identity != nil {
		return
	}

	m.snapshot = &Snapshot{Company: info}
	m.perms = perm.Set{}
}
