package credstore

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// failingStore returns err from every call.
type failingStore struct{ err error }

func (f failingStore) Get(string) (string, error) { return "", f.err }
func (f failingStore) Set(string, string) error   { return f.err }
func (f failingStore) Delete(...string) error     { return f.err }

func TestLoadPair_Empty(t *testing.T) {
	tok, err := LoadPair(NewMemoryStore())
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestLoadPair_BothPresent(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Set(KeyAccessToken, "A1"))
	require.NoError(t, s.Set(KeyRefreshToken, "R1"))

	tok, err := LoadPair(s)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "A1", tok.AccessToken)
	assert.Equal(t, "R1", tok.RefreshToken)
	assert.Equal(t, "Bearer", tok.Type())
	assert.True(t, tok.Expiry.IsZero(), "opaque token has no expiry")
}

func TestLoadPair_HalfPairIsTerminated(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"only access", KeyAccessToken},
		{"only refresh", KeyRefreshToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			require.NoError(t, s.Set(tt.key, "orphan"))
			require.NoError(t, s.Set(KeyRememberedUser, "u1"))

			tok, err := LoadPair(s)
			require.NoError(t, err)
			assert.Nil(t, tok)

			v, err := s.Get(tt.key)
			require.NoError(t, err)
			assert.Empty(t, v, "surviving half must be removed")

			hint, err := s.Get(KeyRememberedUser)
			require.NoError(t, err)
			assert.Equal(t, "u1", hint)
		})
	}
}

func TestLoadPair_StoreError(t *testing.T) {
	_, err := LoadPair(failingStore{err: errors.New("disk gone")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestSavePair_KeepsStoredRefreshWhenOmitted(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, SavePair(s, &oauth2.Token{AccessToken: "A1", RefreshToken: "R1"}))
	require.NoError(t, SavePair(s, &oauth2.Token{AccessToken: "A2"}))

	tok, err := LoadPair(s)
	require.NoError(t, err)
	assert.Equal(t, "A2", tok.AccessToken)
	assert.Equal(t, "R1", tok.RefreshToken)
}

func TestSavePair_RotatesRefresh(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, SavePair(s, &oauth2.Token{AccessToken: "A1", RefreshToken: "R1"}))
	require.NoError(t, SavePair(s, &oauth2.Token{AccessToken: "A2", RefreshToken: "R2"}))

	tok, err := LoadPair(s)
	require.NoError(t, err)
	assert.Equal(t, "R2", tok.RefreshToken)
}

func TestSavePair_Rejects(t *testing.T) {
	s := NewMemoryStore()

	assert.Error(t, SavePair(s, nil))
	assert.Error(t, SavePair(s, &oauth2.Token{RefreshToken: "R1"}))
	assert.Error(t, SavePair(s, &oauth2.Token{AccessToken: "A1"}), "no refresh token stored or given")
}

func TestClearPair_KeepsRememberedUser(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, SavePair(s, &oauth2.Token{AccessToken: "A1", RefreshToken: "R1"}))
	require.NoError(t, s.Set(KeyIdentity, `{"id":"1"}`))
	require.NoError(t, s.Set(KeyRememberedUser, "u1"))

	require.NoError(t, ClearPair(s))

	for _, k := range []string{KeyAccessToken, KeyRefreshToken, KeyIdentity} {
		v, err := s.Get(k)
		require.NoError(t, err)
		assert.Empty(t, v, k)
	}

	hint, err := s.Get(KeyRememberedUser)
	require.NoError(t, err)
	assert.Equal(t, "u1", hint)

	require.NoError(t, ClearAll(s))
	hint, err = s.Get(KeyRememberedUser)
	require.NoError(t, err)
	assert.Empty(t, hint)
}

func TestAccessExpiry(t *testing.T) {
	exp := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	assert.True(t, AccessExpiry(signed).Equal(exp))

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "1"}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)

	assert.True(t, AccessExpiry(noExp).IsZero())
	assert.True(t, AccessExpiry("opaque-token").IsZero())
}
