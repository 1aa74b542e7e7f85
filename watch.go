package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/despacho-app/despacho/internal/config"
	"github.com/despacho-app/despacho/internal/credstore"
	"github.com/despacho-app/despacho/internal/session"
)

const (
	defaultKeepAliveInterval = time.Minute
	defaultRefreshMargin     = 2 * time.Minute
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the session alive and follow credential changes",
		Long: `Run until interrupted. The access token is refreshed shortly before it
expires, and changes to the credential file made by other despacho processes
are followed: a sign-out elsewhere ends this session, a sign-in elsewhere
replaces it. SIGHUP reloads the configuration file.

Requires the file credential backend.`,
		RunE: runWatch,
	}

	cmd.Flags().Duration("interval", defaultKeepAliveInterval, "how often to check the access token")
	cmd.Flags().Duration("refresh-before", defaultRefreshMargin, "refresh the access token this long before it expires")

	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	interval, _ := cmd.Flags().GetDuration("interval")
	margin, _ := cmd.Flags().GetDuration("refresh-before")

	if interval <= 0 {
		return errors.New("--interval must be positive")
	}

	if resolvedCfg == nil {
		return errors.New("no configuration loaded")
	}

	if resolvedCfg.Credentials.Backend != config.BackendFile {
		return fmt.Errorf("watch follows the credential file; backend %q is not supported", resolvedCfg.Credentials.Backend)
	}

	ctx := cmd.Context()
	logger := buildLogger()

	a, err := newApp(ctx, resolvedCfg, logger, stderrNotifier{quiet: flagQuiet})
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.restore(); err != nil {
		return err
	}

	if err := a.session.Bootstrap(ctx); err != nil {
		logger.Warn("initial load incomplete", slog.String("error", err.Error()))
	}

	w := &watcher{
		app:    a,
		logger: logger,
		holder: config.NewHolder(resolvedCfg),
		margin: margin,
		now:    time.Now,
	}

	changes := make(chan fsnotify.Op, 1)
	path := resolvedCfg.Credentials.CredentialsPath()

	statusf("Watching session of %s. Press Ctrl-C to stop.\n", a.session.Identity().Name)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return credstore.Watch(gctx, path, func(op fsnotify.Op) {
			select {
			case changes <- op:
			default:
				// A change is already pending; it will re-read the file.
			}
		}, logger)
	})

	g.Go(func() error {
		return w.run(gctx, interval, changes, reloadSignals(gctx))
	})

	return g.Wait()
}

// watcher reacts to ticks, credential file changes and reload signals for
// one long-running session.
type watcher struct {
	app    *app
	logger *slog.Logger
	holder *config.Holder
	margin time.Duration
	now    func() time.Time
}

func (w *watcher) run(ctx context.Context, interval time.Duration, changes <-chan fsnotify.Op, reload <-chan os.Signal) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case op := <-changes:
			w.logger.Debug("credential file changed", slog.String("op", op.String()))
			w.credentialsChanged(ctx)
		case <-ticker.C:
			w.keepAlive(ctx)
		case <-reload:
			w.reloadConfig()
		}
	}
}

// credentialsChanged re-reads the store after another writer touched it.
// Rotations by the refresher itself end up here too and are left alone.
func (w *watcher) credentialsChanged(ctx context.Context) {
	tok, err := credstore.LoadPair(w.app.store)
	if err != nil {
		w.logger.Warn("reading credentials", slog.String("error", err.Error()))

		return
	}

	if tok == nil {
		if w.app.session.Detach() {
			w.logger.Info("credentials removed by another process")
		}

		return
	}

	stored, err := session.StoredIdentity(w.app.store)
	if err != nil || stored == nil {
		return
	}

	if current := w.app.session.Identity(); current != nil && current.ID == stored.ID {
		return
	}

	if err := w.app.session.Restore(*stored); err != nil {
		w.logger.Warn("adopting new session", slog.String("error", err.Error()))

		return
	}

	w.logger.Info("adopted session signed in elsewhere", slog.String("user_id", stored.ID))

	if err := w.app.session.Bootstrap(ctx); err != nil {
		w.logger.Warn("loading adopted session", slog.String("error", err.Error()))
	}
}

// keepAlive refreshes the access token when it is about to expire. Tokens
// without a readable expiry are refreshed on their first rejection instead.
func (w *watcher) keepAlive(ctx context.Context) {
	if !w.app.session.Active() {
		return
	}

	tok, err := credstore.LoadPair(w.app.store)
	if err != nil || tok == nil || tok.Expiry.IsZero() {
		return
	}

	if tok.Expiry.Sub(w.now()) > w.margin {
		return
	}

	if _, err := w.app.gw.Refresher().Refresh(ctx, tok.AccessToken); err != nil {
		// The refresher has already reset the session if this was terminal.
		w.logger.Warn("keep-alive refresh failed", slog.String("error", err.Error()))
	}
}

func (w *watcher) reloadConfig() {
	cfg, err := w.holder.Reload(config.ReadEnvOverrides(), cliOverrides())
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous", slog.String("error", err.Error()))

		return
	}

	resolvedCfg = cfg
	applyLogLevel(cfg)

	w.logger.Info("configuration reloaded", slog.String("path", w.holder.Path()))
}
