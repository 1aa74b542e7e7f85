// Package credstore persists the session credentials: the access token, the
// refresh token and the remembered identity hint. Stores are plain string
// key/value containers; the pair helpers on top of them enforce the
// "both tokens or neither" invariant.
package credstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Well-known keys. Values are opaque strings.
const (
	KeyAccessToken    = "accessToken"
	KeyRefreshToken   = "refreshToken"
	KeyRememberedUser = "rememberedUser"
	KeyIdentity       = "identity"
)

// tokenTypeBearer is the scheme oauth2.Token.SetAuthHeader writes.
const tokenTypeBearer = "Bearer"

// ErrClosed is returned by backends that were used after Close.
var ErrClosed = errors.New("credstore: store is closed")

// Store is a string-keyed persistence contract. Get returns "" for absent
// keys. Delete ignores keys that do not exist.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(keys ...string) error
}

// LoadPair reads the credential pair. It returns (nil, nil) when no session
// is stored. A half-present pair means the session was terminated midway, so
// the surviving half is removed and nil is returned.
func LoadPair(s Store) (*oauth2.Token, error) {
	access, err := s.Get(KeyAccessToken)
	if err != nil {
		return nil, fmt.Errorf("credstore: reading access token: %w", err)
	}

	refresh, err := s.Get(KeyRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("credstore: reading refresh token: %w", err)
	}

	if access == "" && refresh == "" {
		return nil, nil //nolint:nilnil // no session stored
	}

	if access == "" || refresh == "" {
		if err := ClearPair(s); err != nil {
			return nil, err
		}

		return nil, nil //nolint:nilnil // half pair is a terminated session
	}

	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		Expiry:       AccessExpiry(access),
	}, nil
}

// SavePair writes both tokens. An empty RefreshToken keeps the stored one,
// because refresh responses are allowed to omit it.
func SavePair(s Store, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return errors.New("credstore: refusing to save empty access token")
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		stored, err := s.Get(KeyRefreshToken)
		if err != nil {
			return fmt.Errorf("credstore: reading refresh token: %w", err)
		}

		refresh = stored
	}

	if refresh == "" {
		return errors.New("credstore: refusing to save access token without refresh token")
	}

	if err := s.Set(KeyRefreshToken, refresh); err != nil {
		return fmt.Errorf("credstore: saving refresh token: %w", err)
	}

	if err := s.Set(KeyAccessToken, tok.AccessToken); err != nil {
		return fmt.Errorf("credstore: saving access token: %w", err)
	}

	return nil
}

// ClearPair removes both tokens and the cached identity that belongs to
// them. The remembered identity hint survives.
func ClearPair(s Store) error {
	if err := s.Delete(KeyAccessToken, KeyRefreshToken, KeyIdentity); err != nil {
		return fmt.Errorf("credstore: clearing credentials: %w", err)
	}

	return nil
}

// ClearAll removes every key this package knows about.
func ClearAll(s Store) error {
	if err := s.Delete(KeyAccessToken, KeyRefreshToken, KeyIdentity, KeyRememberedUser); err != nil {
		return fmt.Errorf("credstore: clearing store: %w", err)
	}

	return nil
}

// AccessExpiry returns the exp claim of a JWT access token without verifying
// the signature. Opaque tokens, and JWTs without exp, yield the zero time,
// which oauth2.Token treats as "never expires".
func AccessExpiry(access string) time.Time {
	var claims jwt.RegisteredClaims

	if _, _, err := jwt.NewParser().ParseUnverified(access, &claims); err != nil {
		return time.Time{}
	}

	if claims.ExpiresAt == nil {
		return time.Time{}
	}

	return claims.ExpiresAt.Time
}
