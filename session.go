package tourguard

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ResolveCurrentUser returns the user a request's session token belongs to.
// The token comes from an "Authorization: Bearer" header or, failing that, the
// session cookie.
//
// Errors: ErrUnauthorized (no token), ErrInvalidToken, ErrExpiredToken,
// ErrUserGone (user deleted) and ErrStaleToken (password changed after the
// token was issued). Store failures are returned wrapped.
func (a *Auth) ResolveCurrentUser(r *http.Request) (*User, error) {
	token := a.tokenFromRequest(r)
	if token == "" {
		return nil, ErrUnauthorized
	}
	return a.userForToken(r.Context(), token)
}

func (a *Auth) userForToken(ctx context.Context, token string) (*User, error) {
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	u, err := a.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("load token user: %w", err)
	}
	if u == nil {
		return nil, ErrUserGone
	}
	if u.ChangedPasswordAfter(claims.Issued()) {
		return nil, ErrStaleToken
	}
	return u, nil
}

func (a *Auth) tokenFromRequest(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if c, err := r.Cookie(a.cfg.CookieName); err == nil {
		return c.Value
	}
	return ""
}

// Protect is middleware that requires a valid session; failures go to the
// terminal error handler.
func (a *Auth) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.ResolveCurrentUser(r)
		if err != nil {
			a.RespondError(w, r, err)
			return
		}

		ctx := WithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IsLoggedIn attaches the user to the context if the session is valid, but
// does not enforce it. Rendered pages use it to show account state.
func (a *Auth) IsLoggedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := a.tokenFromRequest(r)
		if token == "" || token == "loggedout" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := a.userForToken(r.Context(), token)
		if err != nil {
			if !isOperational(err) {
				a.log.Warn("session lookup failed", zap.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// startSession issues a token for u and sets the session cookie.
func (a *Auth) startSession(w http.ResponseWriter, r *http.Request, u *User) (*IssuedToken, error) {
	issued, err := a.tokens.Issue(u.ID)
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, a.tokens.Cookie(issued, a.secureRequest(r)))
	return issued, nil
}

// Logout overwrites the session cookie with a short-lived placeholder and
// drops any federated session.
func (a *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, a.tokens.LoggedOutCookie(a.secureRequest(r)))
	a.clearProviderSession(w, r)
}
