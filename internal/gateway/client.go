package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/despacho-app/despacho/internal/credstore"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultRefreshTimeout = 15 * time.Second
	DefaultUserAgent      = "despacho-cli/0.1"
)

const (
	headerRequestID   = "X-Request-ID"
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

// Options tunes a Client. Zero values select the defaults above.
type Options struct {
	HTTPClient     *http.Client
	Logger         *slog.Logger
	Metrics        *Metrics
	RequestTimeout time.Duration
	RefreshTimeout time.Duration
	UserAgent      string
}

// Request describes one API call. Body is JSON-encoded unless it is a
// []byte, which is sent as-is. Header entries override the defaults.
type Request struct {
	Method string
	Path   string
	Body   any
	Header http.Header

	// SkipRefresh returns a 401 to the caller as a plain APIError instead of
	// starting a refresh cycle. Used by the sign-in call, where a 401 means
	// bad credentials rather than a stale token.
	SkipRefresh bool
}

// Response is a successful (2xx) result. Body is nil when the payload was
// empty: a 204, or a content type other than JSON.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON payload into out. An empty payload leaves out
// untouched.
func (r *Response) Decode(out any) error {
	if r == nil || len(r.Body) == 0 || out == nil {
		return nil
	}

	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("gateway: decoding response: %w", err)
	}

	return nil
}

// Client sends requests to the despacho API with the stored credentials.
// It holds no per-request state; the only shared state is the Refresher.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      credstore.Store
	refresher  *Refresher
	logger     *slog.Logger
	metrics    *Metrics
	timeout    time.Duration
	userAgent  string
}

// NewClient creates a gateway for baseURL (for example
// "https://despacho.example.com/api") backed by store.
func NewClient(baseURL string, store credstore.Store, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}

	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	baseURL = strings.TrimRight(baseURL, "/")

	return &Client{
		baseURL:    baseURL,
		httpClient: opts.HTTPClient,
		store:      store,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		timeout:    opts.RequestTimeout,
		userAgent:  opts.UserAgent,
		refresher: &Refresher{
			baseURL:    baseURL,
			httpClient: opts.HTTPClient,
			store:      store,
			logger:     opts.Logger,
			metrics:    opts.Metrics,
			timeout:    opts.RefreshTimeout,
			userAgent:  opts.UserAgent,
		},
	}
}

// Refresher returns the coordinator shared by every call on this client.
func (c *Client) Refresher() *Refresher {
	return c.refresher
}

// Store returns the credential store the client reads tokens from.
func (c *Client) Store() credstore.Store {
	return c.store
}

// Call is Do plus decoding of the JSON payload into out (which may be nil).
func (c *Client) Call(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.Do(ctx, Request{Method: method, Path: path, Body: body})
	if err != nil {
		return err
	}

	return resp.Decode(out)
}

// Do executes r. A 401 triggers one refresh cycle followed by exactly one
// replay; if the refresh fails the result is ErrSessionExpired. Non-2xx
// responses are returned as *APIError and are never retried.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	payload, err := encodeBody(r.Body)
	if err != nil {
		return nil, err
	}

	tok, err := credstore.LoadPair(c.store)
	if err != nil {
		return nil, fmt.Errorf("gateway: loading credentials: %w", err)
	}

	raw, err := c.send(ctx, r, payload, tok)
	if err != nil {
		return nil, err
	}

	if raw.status == http.StatusUnauthorized && !r.SkipRefresh {
		rejected := ""
		if tok != nil {
			rejected = tok.AccessToken
		}

		c.logger.Info("access token rejected, refreshing",
			slog.String("method", r.Method),
			slog.String("path", r.Path),
			slog.String("request_id", raw.requestID),
		)

		fresh, refreshErr := c.refresher.Refresh(ctx, rejected)
		if refreshErr != nil {
			return nil, refreshErr
		}

		raw, err = c.send(ctx, r, payload, fresh)
		if err != nil {
			return nil, err
		}
	}

	return c.finish(r, raw)
}

// rawResponse is a fully read HTTP response.
type rawResponse struct {
	status     int
	statusLine string
	header     http.Header
	body       []byte
	requestID  string
}

// send performs a single round trip with tok attached (if any).
func (c *Client) send(ctx context.Context, r Request, payload []byte, tok *oauth2.Token) (*rawResponse, error) {
	req, err := c.newRequest(ctx, r.Method, c.baseURL+r.Path, payload)
	if err != nil {
		return nil, err
	}

	for k, vals := range r.Header {
		req.Header.Del(k)

		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	if tok != nil && tok.AccessToken != "" {
		tok.SetAuthHeader(req)
	}

	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observeRequest(r.Method, "error", time.Since(start))

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("gateway: %s %s canceled: %w", r.Method, r.Path, ctxErr)
		}

		c.logger.Warn("request failed without response",
			slog.String("method", r.Method),
			slog.String("path", r.Path),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("gateway: %s %s: %w: %w", r.Method, r.Path, ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.observeRequest(r.Method, "error", time.Since(start))

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("gateway: %s %s canceled: %w", r.Method, r.Path, ctxErr)
		}

		return nil, fmt.Errorf("gateway: %s %s: reading response: %w: %w", r.Method, r.Path, ErrUnreachable, err)
	}

	c.metrics.observeRequest(r.Method, statusLabel(resp.StatusCode), time.Since(start))

	if !isJSON(resp.Header.Get(headerContentType)) {
		// Only JSON payloads are meaningful; anything else counts as empty.
		if resp.StatusCode < http.StatusBadRequest {
			body = nil
		}
	}

	return &rawResponse{
		status:     resp.StatusCode,
		statusLine: resp.Status,
		header:     resp.Header,
		body:       body,
		requestID:  req.Header.Get(headerRequestID),
	}, nil
}

// finish turns a raw response into a Response or an *APIError.
func (c *Client) finish(r Request, raw *rawResponse) (*Response, error) {
	if raw.status >= http.StatusOK && raw.status < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", r.Method),
			slog.String("path", r.Path),
			slog.Int("status", raw.status),
		)

		resp := &Response{StatusCode: raw.status, Header: raw.header}
		if raw.status != http.StatusNoContent && len(raw.body) > 0 {
			resp.Body = raw.body
		}

		return resp, nil
	}

	apiErr := &APIError{
		StatusCode: raw.status,
		RequestID:  raw.requestID,
		Message:    errorMessage(raw.statusLine, raw.body),
		Err:        classifyStatus(raw.status),
	}

	c.logger.Debug("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.Path),
		slog.Int("status", raw.status),
		slog.String("request_id", raw.requestID),
	)

	return nil, apiErr
}

// newRequest builds a request with the default headers set. Shared with the
// refresh exchange, which bypasses Do.
func (c *Client) newRequest(ctx context.Context, method, url string, payload []byte) (*http.Request, error) {
	return newRequest(ctx, method, url, payload, c.userAgent)
}

func newRequest(ctx context.Context, method, url string, payload []byte, userAgent string) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("gateway: creating request: %w", err)
	}

	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(headerRequestID, uuid.NewString())

	return req, nil
}

// withDeadline bounds ctx by the request timeout unless ctx already ends
// sooner.
func (c *Client) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) <= c.timeout {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.timeout)
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("gateway: encoding request body: %w", err)
		}

		return data, nil
	}
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == contentTypeJSON || strings.HasSuffix(mediaType, "+json")
}

// errorMessage extracts the "message" field of a JSON object body, falling
// back to the status line.
func errorMessage(statusLine string, body []byte) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err == nil {
		var msg string
		if raw, ok := obj["message"]; ok && json.Unmarshal(raw, &msg) == nil && msg != "" {
			return msg
		}
	}

	return statusLine
}

func statusLabel(code int) string {
	return strconv.Itoa(code)
}
