package tourguard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Profile is what an identity provider asserts about a user after a
// successful exchange.
type Profile struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// IdentityProvider is an OAuth2/OIDC login provider.
type IdentityProvider interface {
	Name() string
	// AuthCodeURL is where the user is sent to log in.
	AuthCodeURL(state, nonce string) string
	// Exchange redeems the callback code and returns the verified profile.
	// The provider must check that the asserted nonce equals nonce.
	Exchange(ctx context.Context, code, nonce string) (*Profile, error)
}

func (a *Auth) provider(name string) (IdentityProvider, error) {
	p, ok := a.providers[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// FederatedLoginHandler starts the OAuth2 flow.
func (a *Auth) FederatedLoginHandler(p IdentityProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := randomString(32)
		if err != nil {
			a.RespondError(w, r, fmt.Errorf("start login: %w", err))
			return
		}
		nonce, err := randomString(32)
		if err != nil {
			a.RespondError(w, r, fmt.Errorf("start login: %w", err))
			return
		}

		// Store state and nonce in HttpOnly cookies to protect against CSRF and replay
		a.setFlowCookie(w, r, a.stateCookieName, state)
		a.setFlowCookie(w, r, a.nonceCookieName, nonce)

		http.Redirect(w, r, p.AuthCodeURL(state, nonce), http.StatusFound)
	}
}

// FederatedCallbackHandler handles the provider's redirect back with ?code & ?state.
// Any failure lands on the configured failure page; details go to the log.
func (a *Auth) FederatedCallbackHandler(p IdentityProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := a.log.With(zap.String("provider", p.Name()))
		fail := func(reason string, err error) {
			log.Warn("federated login failed", zap.String("reason", reason), zap.Error(err))
			http.Redirect(w, r, a.cfg.FailurePath, http.StatusSeeOther)
		}

		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			fail("provider error", errors.New(e))
			return
		}
		state, code := q.Get("state"), q.Get("code")
		if state == "" || code == "" {
			fail("invalid callback", nil)
			return
		}

		stateCookie, err := r.Cookie(a.stateCookieName)
		if err != nil || stateCookie.Value == "" || stateCookie.Value != state {
			fail("invalid state", err)
			return
		}
		nonceCookie, err := r.Cookie(a.nonceCookieName)
		if err != nil || nonceCookie.Value == "" {
			fail("missing nonce", err)
			return
		}
		a.clearFlowCookie(w, r, a.stateCookieName)
		a.clearFlowCookie(w, r, a.nonceCookieName)

		profile, err := p.Exchange(r.Context(), code, nonceCookie.Value)
		if err != nil {
			fail("exchange", err)
			return
		}

		u, err := a.ReconcileFederated(r.Context(), profile)
		if err != nil {
			fail("reconcile", err)
			return
		}

		if err := a.establishProviderSession(w, r, u); err != nil {
			fail("provider session", err)
			return
		}
		if _, err := a.startSession(w, r, u); err != nil {
			fail("token", err)
			return
		}

		log.Info("federated login", zap.String("user_id", u.ID))
		http.Redirect(w, r, a.cfg.SuccessPath, http.StatusSeeOther)
	}
}

// ReconcileFederated maps a provider profile to a local user:
//
//  1. a user already linked to (provider, subject) is returned, with name and
//     avatar refreshed;
//  2. otherwise a user with the same email is linked, if the link policy
//     allows it, or ErrAccountConflict is returned;
//  3. otherwise a new user without a local password is created.
//
// Creating or linking requires the provider to assert the email is verified.
func (a *Auth) ReconcileFederated(ctx context.Context, p *Profile) (*User, error) {
	if p == nil || p.Provider == "" || p.Subject == "" {
		return nil, errors.New("incomplete provider profile")
	}

	u, err := a.store.GetUserByProvider(ctx, p.Provider, p.Subject)
	if err != nil {
		return nil, fmt.Errorf("load linked user: %w", err)
	}
	if u != nil {
		return a.refreshProfile(ctx, u, p), nil
	}

	email := NormalizeEmail(p.Email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if !p.EmailVerified {
		return nil, ErrUnverifiedEmail
	}

	existing, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load user by email: %w", err)
	}
	if existing != nil {
		return a.linkExisting(ctx, existing, p)
	}

	u = &User{
		Name:            strings.TrimSpace(p.Name),
		Email:           email,
		Role:            RoleUser,
		AvatarURL:       p.Picture,
		Provider:        p.Provider,
		ProviderSubject: p.Subject,
	}
	if u.Name == "" {
		u.Name, _, _ = strings.Cut(email, "@")
	}
	switch err := a.store.CreateUser(ctx, u); {
	case errors.Is(err, ErrDuplicateEmail):
		return nil, ErrAccountConflict
	case errors.Is(err, ErrDuplicateLinkage):
		// A concurrent callback for the same subject won the insert.
		return a.store.GetUserByProvider(ctx, p.Provider, p.Subject)
	case err != nil:
		return nil, fmt.Errorf("create federated user: %w", err)
	}
	a.log.Info("federated user created", zap.String("user_id", u.ID), zap.String("provider", p.Provider))
	return u, nil
}

func (a *Auth) linkExisting(ctx context.Context, u *User, p *Profile) (*User, error) {
	if a.cfg.LinkPolicy != LinkVerifiedEmail {
		return nil, ErrAccountConflict
	}
	// Already linked to another subject of the same provider.
	if u.Provider != "" {
		return nil, ErrAccountConflict
	}

	err := a.store.LinkProvider(ctx, u.ID, p.Provider, p.Subject)
	switch {
	case errors.Is(err, ErrDuplicateLinkage), errors.Is(err, ErrPreconditionFailed):
		return nil, ErrAccountConflict
	case err != nil:
		return nil, fmt.Errorf("link provider: %w", err)
	}
	u.Provider = p.Provider
	u.ProviderSubject = p.Subject

	a.log.Info("federated identity linked", zap.String("user_id", u.ID), zap.String("provider", p.Provider))
	return a.refreshProfile(ctx, u, p), nil
}

// refreshProfile fills in name and avatar from the provider. Failures are
// logged; the login goes ahead with the stored values.
func (a *Auth) refreshProfile(ctx context.Context, u *User, p *Profile) *User {
	name := strings.TrimSpace(p.Name)
	if (name == "" || name == u.Name) && (p.Picture == "" || p.Picture == u.AvatarURL) {
		return u
	}

	updated := *u
	if name != "" {
		updated.Name = name
	}
	if p.Picture != "" {
		updated.AvatarURL = p.Picture
	}
	if err := a.store.UpdateProfile(ctx, &updated); err != nil {
		a.log.Warn("refresh federated profile", zap.String("user_id", u.ID), zap.Error(err))
		return u
	}
	return &updated
}

func (a *Auth) setFlowCookie(w http.ResponseWriter, r *http.Request, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureRequest(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  a.now().Add(10 * time.Minute),
	})
}

func (a *Auth) clearFlowCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
