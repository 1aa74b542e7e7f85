package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/despacho-app/despacho/internal/api"
	"github.com/despacho-app/despacho/internal/auditlog"
	"github.com/despacho-app/despacho/internal/config"
	"github.com/despacho-app/despacho/internal/credstore"
	"github.com/despacho-app/despacho/internal/diag"
	"github.com/despacho-app/despacho/internal/gateway"
	"github.com/despacho-app/despacho/internal/perm"
	"github.com/despacho-app/despacho/internal/session"
)

// errNotSignedIn is what commands that need a session report.
var errNotSignedIn = errors.New("not signed in, run 'despacho login' first")

// app wires the layers for one command invocation: credential store,
// gateway, typed API, audit mirror and session manager.
type app struct {
	cfg     *config.Resolved
	logger  *slog.Logger
	store   credstore.Store
	journal *diag.Journal
	gw      *gateway.Client
	api     *api.Client
	session *session.Manager

	closers []func() error
}

// newApp builds the stack from cfg. A journal that cannot be opened is
// logged and left nil; every other failure is returned. A nil notifier
// sends session notices to logger.
func newApp(ctx context.Context, cfg *config.Resolved, logger *slog.Logger, notifier session.Notifier) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, closeStore, err := openStore(cfg.Credentials)
	if err != nil {
		return nil, err
	}

	a.store = store
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	journal, err := diag.Open(ctx, cfg.Diagnostics.JournalFile(), cfg.Diagnostics.MaxEvents, logger)
	if err != nil {
		logger.Warn("diagnostics journal unavailable", slog.String("error", err.Error()))
	} else {
		a.journal = journal
		a.closers = append(a.closers, journal.Close)
	}

	metrics, err := gateway.NewMetrics(metricsRegistry)
	if err != nil {
		a.Close()

		return nil, err
	}

	a.gw = gateway.NewClient(cfg.Server.BaseURL, store, gateway.Options{
		Logger:         logger,
		Metrics:        metrics,
		RequestTimeout: cfg.Server.RequestTimeoutDuration(),
		RefreshTimeout: cfg.Server.RefreshTimeoutDuration(),
		UserAgent:      cfg.Server.UserAgent,
	})
	a.api = api.New(a.gw)

	// A nil journal records nothing, so it can be passed as is.
	mirror := auditlog.NewMirror(a.api.AuditLogs, logger, a.journal)

	a.session = session.NewManager(a.api, mirror, session.Options{
		Logger:   logger,
		Notifier: notifier,
		Diag:     a.journal,
		Tier:     perm.NewTier(cfg.Access.ElevatedRoles),
	})

	return a, nil
}

// openStore returns the configured credential backend and, for backends
// holding a resource, its close function.
func openStore(c config.CredentialsConfig) (credstore.Store, func() error, error) {
	switch c.Backend {
	case config.BackendMemory:
		return credstore.NewMemoryStore(), nil, nil
	case config.BackendBolt:
		s, err := credstore.OpenBoltStore(c.CredentialsPath())
		if err != nil {
			return nil, nil, fmt.Errorf("opening credential store: %w", err)
		}

		return s, s.Close, nil
	default:
		return credstore.NewFileStore(c.CredentialsPath()), nil, nil
	}
}

// restore installs the identity cached by a previous login. It returns
// errNotSignedIn when there is no stored session.
func (a *app) restore() (*api.User, error) {
	user, err := session.StoredIdentity(a.store)
	if err != nil {
		return nil, err
	}

	if user == nil {
		return nil, errNotSignedIn
	}

	if err := a.session.Restore(*user); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return nil, errNotSignedIn
		}

		return nil, err
	}

	return user, nil
}

// Close releases the store and journal, in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("closing resource", slog.String("error", err.Error()))
		}
	}

	a.closers = nil
}

// withApp builds the app for the resolved config, runs fn and closes it.
func withApp(ctx context.Context, fn func(*app) error) error {
	if resolvedCfg == nil {
		return errors.New("no configuration loaded")
	}

	logger := buildLogger()

	a, err := newApp(ctx, resolvedCfg, logger, commandNotifier{
		stderrNotifier: stderrNotifier{quiet: flagQuiet},
		logger:         logger,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}
