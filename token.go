package tourguard

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed session token payload. Subject holds the user ID.
// IssuedAtMs repeats iat at millisecond resolution; the registered iat only
// has whole seconds, too coarse to order a token against a password change.
type Claims struct {
	jwt.RegisteredClaims
	IssuedAtMs int64 `json:"iat_ms,omitempty"`
}

// Issued returns the most precise issuance time the token carries.
func (c *Claims) Issued() time.Time {
	if c.IssuedAtMs > 0 {
		return time.UnixMilli(c.IssuedAtMs)
	}
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// IssuedToken is a freshly signed token and its validity window.
type IssuedToken struct {
	Token     string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenManager signs and verifies HS256 session tokens. It holds no state
// besides the secret, so it is safe for concurrent use.
type TokenManager struct {
	secret       []byte
	ttl          time.Duration
	cookieName   string
	cookieDomain string
	now          func() time.Time
}

func NewTokenManager(cfg Config, now func() time.Time) (*TokenManager, error) {
	if len(cfg.JWTSecret) == 0 {
		return nil, errors.New("token signing secret is required")
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("invalid token ttl %v", cfg.TokenTTL)
	}
	if now == nil {
		now = time.Now
	}
	return &TokenManager{
		secret:       cfg.JWTSecret,
		ttl:          cfg.TokenTTL,
		cookieName:   cfg.CookieName,
		cookieDomain: cfg.CookieDomain,
		now:          now,
	}, nil
}

// Issue signs a token for userID valid for the configured ttl.
func (m *TokenManager) Issue(userID string) (*IssuedToken, error) {
	issued := m.now().Truncate(time.Millisecond)
	expires := issued.Add(m.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		IssuedAtMs: issued.UnixMilli(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &IssuedToken{Token: signed, UserID: userID, IssuedAt: issued, ExpiresAt: expires}, nil
}

// Verify checks signature, algorithm and expiry. Returns ErrExpiredToken for
// expired tokens and ErrInvalidToken for anything else that fails.
func (m *TokenManager) Verify(token string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)

	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil, !parsed.Valid:
		return nil, ErrInvalidToken
	case claims.Subject == "":
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Cookie builds the session cookie for t. The cookie expires with the token.
func (m *TokenManager) Cookie(t *IssuedToken, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    t.Token,
		Path:     "/",
		Domain:   m.cookieDomain,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  t.ExpiresAt,
	}
}

// LoggedOutCookie overwrites the session cookie with a short-lived dummy.
func (m *TokenManager) LoggedOutCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    "loggedout",
		Path:     "/",
		Domain:   m.cookieDomain,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  m.now().Add(10 * time.Second),
	}
}
