package tourguard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCurrentUserFromBearerAndCookie(t *testing.T) {
	ta := newTestAuth(t)
	u := ta.createLocalUser(t, "sophie@example.com", "pass1234")

	issued, err := ta.tokens.Issue(u.ID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	got, err := ta.ResolveCurrentUser(req)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: ta.cfg.CookieName, Value: issued.Token})
	got, err = ta.ResolveCurrentUser(req)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestResolveCurrentUserBearerWinsOverCookie(t *testing.T) {
	ta := newTestAuth(t)
	u := ta.createLocalUser(t, "sophie@example.com", "pass1234")
	issued, err := ta.tokens.Issue(u.ID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	req.AddCookie(&http.Cookie{Name: ta.cfg.CookieName, Value: "garbage"})

	got, err := ta.ResolveCurrentUser(req)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestResolveCurrentUserFailures(t *testing.T) {
	ta := newTestAuth(t)
	u := ta.createLocalUser(t, "sophie@example.com", "pass1234")
	issued, err := ta.tokens.Issue(u.ID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{"no token", "", ErrUnauthorized},
		{"not bearer", "Basic " + issued.Token, ErrUnauthorized},
		{"garbage", "Bearer not-a-jwt", ErrInvalidToken},
		{"tampered", "Bearer " + issued.Token + "x", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			_, err := ta.ResolveCurrentUser(req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResolveCurrentUserExpired(t *testing.T) {
	ta := newTestAuth(t)
	u := ta.createLocalUser(t, "sophie@example.com", "pass1234")
	issued, err := ta.tokens.Issue(u.ID)
	require.NoError(t, err)

	ta.clock.Advance(ta.cfg.TokenTTL + time.Second)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	_, err = ta.ResolveCurrentUser(req)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestResolveCurrentUserStaleAfterPasswordChange(t *testing.T) {
	ta := newTestAuth(t)
	u := ta.createLocalUser(t, "sophie@example.com", "pass1234")
	old, err := ta.tokens.Issue(u.ID)
	require.NoError(t, err)

	ta.clock.Advance(time.Second)
	fresh, err := ta.UpdateOwnCredential(context.Background(), u, "pass1234", "newpass123", "newpass123")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+old.Token)
	_, err = ta.ResolveCurrentUser(req)
	assert.ErrorIs(t, err, ErrStaleToken)

	req.Header.Set("Authorization", "Bearer "+fresh.Token)
	got, err := ta.ResolveCurrentUser(req)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestResolveCurrentUserGone(t *testing.T) {
	ta := newTestAuth(t)
	issued, err := ta.tokens.Issue("0b5b3c5e-0000-4000-8000-000000000000")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	_, err = ta.ResolveCurrentUser(req)
	assert.ErrorIs(t, err, ErrUserGone)
}

func TestProtect(t *testing.T) {
	ta := newTestAuth(t)
	u := ta.createLocalUser(t, "sophie@example.com", "pass1234")
	issued, err := ta.tokens.Issue(u.ID)
	require.NoError(t, err)

	var seen *User
	h := ta.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CurrentUser(r)
	}))

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		req.Header.Set("Authorization", "Bearer "+issued.Token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, u.ID, seen.ID)
	})

	t.Run("api path gets json", func(t *testing.T) {
		seen = nil
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
		assert.JSONEq(t, `{"status":"fail","message":"You are not logged in! Please log in to get access."}`, rec.Body.String())
		assert.Nil(t, seen)
	})

	t.Run("page gets error view", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), "You are not logged in!")
		assert.Nil(t, seen)
	})
}

func TestIsLoggedIn(t *testing.T) {
	ta := newTestAuth(t)
	u := ta.createLocalUser(t, "sophie@example.com", "pass1234")
	issued, err := ta.tokens.Issue(u.ID)
	require.NoError(t, err)

	var (
		called bool
		seen   *User
	)
	h := ta.IsLoggedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		seen = CurrentUser(r)
	}))

	tests := []struct {
		name     string
		cookie   string
		wantUser bool
	}{
		{"valid", issued.Token, true},
		{"none", "", false},
		{"logged out placeholder", "loggedout", false},
		{"invalid", "not-a-jwt", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called, seen = false, nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: ta.cfg.CookieName, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.True(t, called, "page is always served")
			assert.Equal(t, http.StatusOK, rec.Code)
			if tt.wantUser {
				require.NotNil(t, seen)
				assert.Equal(t, u.ID, seen.ID)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}

func TestLogout(t *testing.T) {
	ta := newTestAuth(t)
	u := ta.createLocalUser(t, "sophie@example.com", "pass1234")

	// A federated session to drop alongside the token.
	sessRec := httptest.NewRecorder()
	require.NoError(t, ta.establishProviderSession(sessRec, httptest.NewRequest(http.MethodGet, "/", nil), u))
	sid := findCookie(sessRec.Result().Cookies(), ta.providerSessionName)
	require.NotNil(t, sid)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/logout", nil)
	req.AddCookie(&http.Cookie{Name: sid.Name, Value: sid.Value})
	rec := httptest.NewRecorder()
	ta.Logout(rec, req)

	cookies := rec.Result().Cookies()
	session := findCookie(cookies, ta.cfg.CookieName)
	require.NotNil(t, session)
	assert.Equal(t, "loggedout", session.Value)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, ta.clock.Now().Add(10*time.Second).Unix(), session.Expires.Unix())

	cleared := findCookie(cookies, ta.providerSessionName)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	check := httptest.NewRequest(http.MethodGet, "/", nil)
	check.AddCookie(&http.Cookie{Name: sid.Name, Value: sid.Value})
	got, err := ta.providerSessionUser(check)
	require.NoError(t, err)
	assert.Nil(t, got)
}
