package tourguard

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testIssuer = "https://issuer.test"

// fakeGoogle serves a token endpoint that returns an ID token signed with key.
func fakeGoogle(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) (*httptest.Server, *GoogleProvider) {
	t.Helper()

	idToken, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	}))
	t.Cleanup(srv.Close)

	cfg := Config{GoogleClientID: "client-id", GoogleClientSecret: "secret", RedirectURL: "http://localhost/cb"}
	verifier := oidc.NewVerifier(testIssuer, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}, &oidc.Config{
		ClientID: "client-id",
	})
	endpoint := oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}
	return srv, newGoogleProvider(cfg, endpoint, verifier)
}

func googleClaims(nonce string) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":            testIssuer,
		"aud":            "client-id",
		"sub":            "google-sub-1",
		"email":          "leo@example.com",
		"email_verified": true,
		"name":           "Leo Gillespie",
		"picture":        "https://example.com/leo.jpg",
		"nonce":          nonce,
		"iat":            time.Now().Unix(),
		"exp":            time.Now().Add(time.Hour).Unix(),
	}
}

func TestGoogleProviderExchange(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	_, g := fakeGoogle(t, key, googleClaims("nonce-1"))

	p, err := g.Exchange(context.Background(), "good-code", "nonce-1")
	require.NoError(t, err)
	assert.Equal(t, &Profile{
		Provider:      "google",
		Subject:       "google-sub-1",
		Email:         "leo@example.com",
		EmailVerified: true,
		Name:          "Leo Gillespie",
		Picture:       "https://example.com/leo.jpg",
	}, p)
}

func TestGoogleProviderExchangeRejectsNonceMismatch(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	_, g := fakeGoogle(t, key, googleClaims("nonce-1"))

	_, err = g.Exchange(context.Background(), "good-code", "other-nonce")
	assert.ErrorContains(t, err, "nonce")
}

func TestGoogleProviderExchangeRejectsForeignSignature(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	attacker, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	_, g := fakeGoogle(t, key, googleClaims("nonce-1"))
	forged, _ := fakeGoogle(t, attacker, googleClaims("nonce-1"))
	g.oauthConfig.Endpoint.TokenURL = forged.URL + "/token"

	_, err = g.Exchange(context.Background(), "good-code", "nonce-1")
	assert.ErrorContains(t, err, "verify id_token")
}

func TestGoogleProviderExchangeBadCode(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	_, g := fakeGoogle(t, key, googleClaims("nonce-1"))

	_, err = g.Exchange(context.Background(), "bad-code", "nonce-1")
	assert.ErrorContains(t, err, "exchange code")
}

func TestGoogleProviderAuthCodeURL(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	_, g := fakeGoogle(t, key, googleClaims("n"))

	u, err := url.Parse(g.AuthCodeURL("state-1", "nonce-1"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "nonce-1", q.Get("nonce"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Contains(t, q.Get("scope"), "openid")
	assert.Contains(t, q.Get("scope"), "email")
}

func TestNewGoogleProviderRequiresSecrets(t *testing.T) {
	_, err := NewGoogleProvider(context.Background(), Config{GoogleClientID: "id"})
	assert.Error(t, err)
}
