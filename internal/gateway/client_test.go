package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/despacho-app/despacho/internal/credstore"
)

// newTestStore returns a memory store holding the given pair (empty strings
// are not stored).
func newTestStore(t *testing.T, access, refresh string) *credstore.MemoryStore {
	t.Helper()

	s := credstore.NewMemoryStore()
	if access != "" {
		require.NoError(t, s.Set(credstore.KeyAccessToken, access))
	}

	if refresh != "" {
		require.NoError(t, s.Set(credstore.KeyRefreshToken, refresh))
	}

	return s
}

func newTestClient(t *testing.T, url string, store credstore.Store) *Client {
	t.Helper()

	return NewClient(url, store, Options{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		RequestTimeout: 5 * time.Second,
		RefreshTimeout: 5 * time.Second,
		UserAgent:      "test-agent",
	})
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestCall_DefaultHeaders(t *testing.T) {
	var got http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		writeJSON(t, w, http.StatusOK, map[string]string{"ok": "yes"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, newTestStore(t, "acc-1", "ref-1"))

	var out map[string]string
	require.NoError(t, c.Call(t.Context(), http.MethodGet, "/categorias", nil, &out))

	assert.Equal(t, "yes", out["ok"])
	assert.Equal(t, "Bearer acc-1", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "test-agent", got.Get("User-Agent"))

	_, err := uuid.Parse(got.Get("X-Request-ID"))
	assert.NoError(t, err, "request id should be a uuid")
}

func TestCall_NoAuthorizationWithoutCredentials(t *testing.T) {
	var auth string
	var sawAuth bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, sawAuth = r.Header["Authorization"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, credstore.NewMemoryStore())
	require.NoError(t, c.Call(t.Context(), http.MethodGet, "/empresa", nil, nil))

	assert.Empty(t, auth)
	assert.False(t, sawAuth)
}

func TestDo_HeaderOverride(t *testing.T) {
	var contentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, credstore.NewMemoryStore())
	_, err := c.Do(t.Context(), Request{
		Method: http.MethodPost,
		Path:   "/upload",
		Body:   []byte("a,b,c"),
		Header: http.Header{"Content-Type": {"text/csv"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
}

func TestCall_EncodesBody(t *testing.T) {
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, http.StatusCreated, map[string]any{"id": 7, "nombre": "Norte"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, newTestStore(t, "a", "r"))

	var out struct {
		ID     int    `json:"id"`
		Nombre string `json:"nombre"`
	}
	require.NoError(t, c.Call(t.Context(), http.MethodPost, "/oficinas", map[string]string{"nombre": "Norte"}, &out))

	assert.Equal(t, "Norte", got["nombre"])
	assert.Equal(t, 7, out.ID)
}

func TestCall_NoContentIsEmptySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, newTestStore(t, "a", "r"))

	out := map[string]string{"untouched": "yes"}
	require.NoError(t, c.Call(t.Context(), http.MethodDelete, "/oficinas/3", nil, &out))
	assert.Equal(t, map[string]string{"untouched": "yes"}, out)

	resp, err := c.Do(t.Context(), Request{Method: http.MethodDelete, Path: "/oficinas/3"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Nil(t, resp.Body)
}

func TestCall_NonJSONSuccessIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, newTestStore(t, "a", "r"))

	var out []string
	require.NoError(t, c.Call(t.Context(), http.MethodGet, "/health", nil, &out))
	assert.Nil(t, out)
}

func TestCall_APIErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		json     bool
		sentinel error
		message  string
	}{
		{"forbidden with message", http.StatusForbidden, `{"message":"No tiene los permisos necesarios"}`, true, ErrForbidden, "No tiene los permisos necesarios"},
		{"not found without message", http.StatusNotFound, `{"error":"x"}`, true, ErrNotFound, "404 Not Found"},
		{"bad request", http.StatusBadRequest, `{"message":"Nombre requerido"}`, true, ErrBadRequest, "Nombre requerido"},
		{"conflict", http.StatusConflict, `{"message":"Duplicado"}`, true, ErrConflict, "Duplicado"},
		{"server error html", http.StatusInternalServerError, `<html>boom</html>`, false, ErrServerError, "500 Internal Server Error"},
		{"array body", http.StatusBadGateway, `["nope"]`, true, ErrServerError, "502 Bad Gateway"},
		{"message not a string", http.StatusForbidden, `{"message":42}`, true, ErrForbidden, "403 Forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.json {
					w.Header().Set("Content-Type", "application/json")
				} else {
					w.Header().Set("Content-Type", "text/html")
				}

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, newTestStore(t, "a", "r"))
			err := c.Call(t.Context(), http.MethodGet, "/roles", nil, nil)
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.NotEmpty(t, apiErr.RequestID)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.message, UserMessage(err))
		})
	}
}

func TestCall_ErrorsAreNotRetried(t *testing.T) {
	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, newTestStore(t, "a", "r"))
	err := c.Call(t.Context(), http.MethodGet, "/roles", nil, nil)

	require.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, 1, calls)
}

func TestCall_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url, newTestStore(t, "a", "r"))
	err := c.Call(t.Context(), http.MethodGet, "/roles", nil, nil)

	require.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, ClassUnreachable, Classify(err))
	assert.Equal(t, "cannot reach server", UserMessage(err))
}

func TestCall_RequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, newTestStore(t, "a", "r"), Options{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		RequestTimeout: 50 * time.Millisecond,
	})

	err := c.Call(t.Context(), http.MethodGet, "/slow", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrUnreachable))
}

func TestCall_CallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	c := newTestClient(t, srv.URL, newTestStore(t, "a", "r"))
	err := c.Call(ctx, http.MethodGet, "/roles", nil, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrUnreachable))
}

func TestCall_SkipRefreshReturnsUnauthorized(t *testing.T) {
	var exchanges int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == RefreshPath {
			exchanges++
		}

		writeJSON(t, w, http.StatusUnauthorized, map[string]string{"message": "Credenciales inválidas"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, credstore.NewMemoryStore())
	_, err := c.Do(t.Context(), Request{Method: http.MethodPost, Path: "/auth/login", SkipRefresh: true})

	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "Credenciales inválidas", UserMessage(err))
	assert.Zero(t, exchanges)
}

func TestNewClient_TrimsBaseURL(t *testing.T) {
	var path string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api/", credstore.NewMemoryStore())
	require.NoError(t, c.Call(t.Context(), http.MethodGet, "/roles", nil, nil))
	assert.Equal(t, "/api/roles", path)
}
