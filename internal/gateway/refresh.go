package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/despacho-app/despacho/internal/credstore"
)

// RefreshPath is the token exchange endpoint, relative to the base URL.
const RefreshPath = "/auth/refresh-token"

const refreshKey = "refresh"

// Refresh outcomes, used as the metrics label.
const (
	outcomeExchanged = "exchanged"
	outcomeReused    = "reused"
	outcomeFailed    = "failed"
)

var errNoRefreshToken = errors.New("gateway: no refresh token stored")

// State is the coordinator state.
type State int32

// Coordinator states.
const (
	StateIdle State = iota
	StateRefreshing
)

func (s State) String() string {
	if s == StateRefreshing {
		return "refreshing"
	}

	return "idle"
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Refresher makes sure at most one token exchange is in flight. Every caller
// that sees a 401 while a cycle is running waits for that cycle instead of
// starting its own.
type Refresher struct {
	baseURL    string
	httpClient *http.Client
	store      credstore.Store
	logger     *slog.Logger
	metrics    *Metrics
	timeout    time.Duration
	userAgent  string

	group singleflight.Group
	state atomic.Int32

	mu    sync.Mutex
	hooks []func()
}

// OnReset registers fn to run after a failed cycle has cleared the
// credentials. Hooks run once per failed cycle, in registration order.
func (r *Refresher) OnReset(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hooks = append(r.hooks, fn)
}

// State reports whether a cycle is currently running.
func (r *Refresher) State() State {
	return State(r.state.Load())
}

// Refresh obtains a replacement for the rejected access token, joining the
// running cycle if there is one. On failure the credentials are cleared and
// the error wraps ErrSessionExpired.
func (r *Refresher) Refresh(ctx context.Context, rejected string) (*oauth2.Token, error) {
	ch := r.group.DoChan(refreshKey, func() (any, error) {
		return r.cycle(ctx, rejected)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		tok, ok := res.Val.(*oauth2.Token)
		if !ok {
			return nil, fmt.Errorf("gateway: unexpected refresh result %T", res.Val)
		}

		return tok, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("gateway: waiting for token refresh: %w", ctx.Err())
	}
}

// cycle is the shared operation. It is detached from the cancellation of
// whichever caller happened to start it.
func (r *Refresher) cycle(parent context.Context, rejected string) (*oauth2.Token, error) {
	r.state.Store(int32(StateRefreshing))
	defer r.state.Store(int32(StateIdle))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.timeout)
	defer cancel()

	current, err := credstore.LoadPair(r.store)
	if err != nil {
		return nil, r.fail(err)
	}

	// A cycle that finished just before this one already replaced the
	// rejected token.
	if current != nil && current.AccessToken != "" && current.AccessToken != rejected {
		r.logger.Debug("access token already replaced, skipping exchange")
		r.metrics.observeRefresh(outcomeReused)

		return current, nil
	}

	if current == nil || current.RefreshToken == "" {
		return nil, r.fail(errNoRefreshToken)
	}

	fresh, err := r.exchange(ctx, current.RefreshToken)
	if err != nil {
		return nil, r.fail(err)
	}

	if err := credstore.SavePair(r.store, fresh); err != nil {
		return nil, r.fail(err)
	}

	saved, err := credstore.LoadPair(r.store)
	if err != nil {
		return nil, r.fail(err)
	}

	if saved == nil {
		return nil, r.fail(errNoRefreshToken)
	}

	r.logger.Info("access token refreshed",
		slog.Time("expiry", saved.Expiry),
	)
	r.metrics.observeRefresh(outcomeExchanged)

	return saved, nil
}

// fail clears the pair, runs the reset hooks and returns the terminal error.
func (r *Refresher) fail(cause error) error {
	r.logger.Warn("token refresh failed, ending session",
		slog.String("error", cause.Error()),
	)
	r.metrics.observeRefresh(outcomeFailed)

	if err := credstore.ClearPair(r.store); err != nil {
		r.logger.Error("clearing credentials after failed refresh",
			slog.String("error", err.Error()),
		)
	}

	r.mu.Lock()
	hooks := make([]func(), len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	return fmt.Errorf("%w: %w", ErrSessionExpired, cause)
}

// exchange trades a refresh token for a new pair. It carries no bearer
// header and a 401 here is just another failure.
func (r *Refresher) exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	payload, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("gateway: encoding refresh request: %w", err)
	}

	req, err := newRequest(ctx, http.MethodPost, r.baseURL+RefreshPath, payload, r.userAgent)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.metrics.observeRequest(http.MethodPost, "error", time.Since(start))

		return nil, fmt.Errorf("gateway: refresh exchange: %w", err)
	}
	defer resp.Body.Close()

	r.metrics.observeRequest(http.MethodPost, statusLabel(resp.StatusCode), time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: reading refresh response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			RequestID:  req.Header.Get(headerRequestID),
			Message:    errorMessage(resp.Status, body),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	var out refreshResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("gateway: decoding refresh response: %w", err)
	}

	if out.AccessToken == "" {
		return nil, errors.New("gateway: refresh response carried no access token")
	}

	return &oauth2.Token{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       credstore.AccessExpiry(out.AccessToken),
	}, nil
}
