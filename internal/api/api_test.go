package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/despacho-app/despacho/internal/credstore"
	"github.com/despacho-app/despacho/internal/gateway"
	"github.com/despacho-app/despacho/internal/perm"
)

func newTestAPI(t *testing.T, h http.HandlerFunc) (*Client, *credstore.MemoryStore) {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	store := credstore.NewMemoryStore()
	gw := gateway.NewClient(srv.URL, store, gateway.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	return New(gw), store
}

func respond(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if v != nil {
		assert.NoError(t, json.NewEncoder(w).Encode(v))
	}
}

func TestLogin_Success(t *testing.T) {
	var got LoginRequest

	c, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathLogin, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		respond(t, w, http.StatusOK, map[string]any{
			"user":         map[string]string{"id": "1", "name": "U", "roleId": "role-admin"},
			"accessToken":  "A1",
			"refreshToken": "R1",
		})
	})

	resp, err := c.Login(t.Context(), "u1", "p1")
	require.NoError(t, err)

	assert.Equal(t, LoginRequest{Username: "u1", Password: "p1"}, got)
	assert.Equal(t, "1", resp.User.ID)
	assert.Equal(t, "role-admin", resp.User.RoleID)
	assert.Equal(t, "A1", resp.AccessToken)
	assert.Equal(t, "R1", resp.RefreshToken)
}

func TestLogin_BadCredentialsDoNotRefresh(t *testing.T) {
	var refreshCalls int

	c, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == gateway.RefreshPath {
			refreshCalls++
		}

		respond(t, w, http.StatusUnauthorized, map[string]string{"message": "Usuario o contraseña incorrectos"})
	})

	_, err := c.Login(t.Context(), "u1", "bad")
	require.ErrorIs(t, err, gateway.ErrUnauthorized)
	assert.Equal(t, "Usuario o contraseña incorrectos", gateway.UserMessage(err))
	assert.Zero(t, refreshCalls)
}

func TestLogin_IncompleteResponse(t *testing.T) {
	c, _ := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		respond(t, w, http.StatusOK, map[string]any{"user": map[string]string{"id": "1"}, "accessToken": "A1"})
	})

	_, err := c.Login(t.Context(), "u1", "p1")
	assert.ErrorIs(t, err, ErrIncompleteLogin)
}

func TestLogout(t *testing.T) {
	var path, auth string

	c, store := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, store.Set(credstore.KeyAccessToken, "A1"))
	require.NoError(t, store.Set(credstore.KeyRefreshToken, "R1"))

	require.NoError(t, c.Logout(t.Context()))
	assert.Equal(t, PathLogout, path)
	assert.Equal(t, "Bearer A1", auth)
}

func TestCollection_List(t *testing.T) {
	c, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathOffices, r.URL.Path)
		respond(t, w, http.StatusOK, []Office{{ID: "1", Name: "Centro"}, {ID: "2", Name: "Norte"}})
	})

	got, err := c.Offices.List(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Norte", got[1].Name)
}

func TestCollection_ListEmptyPayload(t *testing.T) {
	c, _ := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	got, err := c.Categories.List(t.Context())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCollection_CreateOmitsIdentifier(t *testing.T) {
	var raw map[string]any

	c, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		respond(t, w, http.StatusCreated, Category{ID: "9", Name: "Frágil"})
	})

	got, err := c.Categories.Create(t.Context(), Category{Name: "Frágil"})
	require.NoError(t, err)

	_, hasID := raw["id"]
	assert.False(t, hasID)
	assert.Equal(t, "9", got.ID)
}

func TestCollection_UpdateGetDelete(t *testing.T) {
	var calls []string

	c, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.EscapedPath())

		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			respond(t, w, http.StatusOK, Account{ID: "a/1", Code: "1101", Name: "Caja", Type: "activo"})
		}
	})

	got, err := c.Accounts.Get(t.Context(), "a/1")
	require.NoError(t, err)
	assert.Equal(t, "Caja", got.Name)

	_, err = c.Accounts.Update(t.Context(), "a/1", Account{Code: "1101", Name: "Caja", Type: "activo"})
	require.NoError(t, err)

	require.NoError(t, c.Accounts.Delete(t.Context(), "a/1"))

	assert.Equal(t, []string{
		"GET /cuentas-contables/a%2F1",
		"PUT /cuentas-contables/a%2F1",
		"DELETE /cuentas-contables/a%2F1",
	}, calls)
}

func TestCollection_ErrorsKeepSentinel(t *testing.T) {
	c, _ := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		respond(t, w, http.StatusForbidden, map[string]string{"message": "No tiene los permisos"})
	})

	_, err := c.Users.List(t.Context())
	require.ErrorIs(t, err, gateway.ErrForbidden)
	assert.True(t, gateway.IsExpected(err))
	assert.Equal(t, PathUsers, c.Users.Path())
}

func TestCompanyInfo(t *testing.T) {
	c, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathCompanyInfo, r.URL.Path)

		if r.Method == http.MethodPut {
			var in CompanyInfo
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			respond(t, w, http.StatusOK, in)

			return
		}

		respond(t, w, http.StatusOK, CompanyInfo{Name: "Transportes del Sur", TaxID: "J-1"})
	})

	info, err := c.CompanyInfo(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Transportes del Sur", info.Name)

	updated, err := c.UpdateCompanyInfo(t.Context(), CompanyInfo{Name: "Nuevo"})
	require.NoError(t, err)
	assert.Equal(t, "Nuevo", updated.Name)
}

func TestSetRolePermissions(t *testing.T) {
	var body struct {
		Permissions perm.Set `json:"permissions"`
	}

	var path string

	c, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, http.MethodPut, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.SetRolePermissions(t.Context(), "role-operador", perm.Set{perm.Shipments: true}))
	assert.Equal(t, "/roles/role-operador/permissions", path)
	assert.True(t, body.Permissions.Allows(perm.Shipments))
}
