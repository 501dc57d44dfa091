package tourguard

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

// Auth ties the identity flows together: token sessions, local credentials,
// password resets and federated login.
type Auth struct {
	cfg       Config
	store     UserStore
	tokens    *TokenManager
	passwords *PasswordHasher
	sessions  SessionStore
	sender    EmailSender
	views     Renderer
	providers map[string]IdentityProvider
	resets    *EmailRateLimiter
	log       *zap.Logger
	now       func() time.Time

	// rateCounter backs the per-IP API limit; nil keeps it in memory.
	rateCounter httprate.LimitCounter

	passwordCost int

	stateCookieName     string
	nonceCookieName     string
	providerSessionName string
}

type Option func(*Auth)

func WithLogger(l *zap.Logger) Option {
	return func(a *Auth) { a.log = l }
}

func WithEmailSender(s EmailSender) Option {
	return func(a *Auth) { a.sender = s }
}

// WithSessionStore sets where federated login sessions live. Defaults to
// process memory.
func WithSessionStore(s SessionStore) Option {
	return func(a *Auth) { a.sessions = s }
}

func WithRenderer(r Renderer) Option {
	return func(a *Auth) { a.views = r }
}

// WithProvider registers a federated identity provider under its Name().
func WithProvider(p IdentityProvider) Option {
	return func(a *Auth) { a.providers[p.Name()] = p }
}

// WithRateLimitCounter shares the API rate-limit buckets, e.g. through
// defense.NewRedisCounter.
func WithRateLimitCounter(c httprate.LimitCounter) Option {
	return func(a *Auth) { a.rateCounter = c }
}

func WithClock(now func() time.Time) Option {
	return func(a *Auth) { a.now = now }
}

// WithPasswordCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithPasswordCost(cost int) Option {
	return func(a *Auth) { a.passwordCost = cost }
}

// New initializes the Auth instance. cfg should come from ConfigFromEnv or
// have ApplyDefaults called on it.
func New(cfg Config, store UserStore, opts ...Option) (*Auth, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	cfg.ApplyDefaults()

	a := &Auth{
		cfg:                 cfg,
		store:               store,
		providers:           make(map[string]IdentityProvider),
		log:                 zap.NewNop(),
		now:                 time.Now,
		stateCookieName:     cfg.CookieName + "_oauth_state",
		nonceCookieName:     cfg.CookieName + "_oauth_nonce",
		providerSessionName: cfg.CookieName + "_sid",
	}
	for _, opt := range opts {
		opt(a)
	}

	var err error
	if a.tokens, err = NewTokenManager(cfg, a.now); err != nil {
		return nil, err
	}
	if a.passwords, err = NewPasswordHasher(a.passwordCost); err != nil {
		return nil, err
	}
	if a.sessions == nil {
		a.sessions = NewMemorySessionStore(a.now)
	}
	if a.sender == nil {
		a.sender = NewLoggingEmailSender(a.log)
	}
	if a.views == nil {
		if a.views, err = NewTemplateRenderer(); err != nil {
			return nil, err
		}
	}
	a.resets = NewEmailRateLimiter(cfg.ResetRequestsPerHour, a.now)
	return a, nil
}

// Close stops background work.
func (a *Auth) Close() {
	a.resets.Close()
}

// Tokens exposes the token manager, e.g. for issuing tokens to trusted tools.
func (a *Auth) Tokens() *TokenManager {
	return a.tokens
}

// secureRequest reports whether cookies set on this response should carry
// the Secure flag.
func (a *Auth) secureRequest(r *http.Request) bool {
	if a.cfg.SecureCookies || r.TLS != nil {
		return true
	}
	return a.cfg.TrustProxyHeaders && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func (a *Auth) clientIP(r *http.Request) string {
	// If we explicitly trust proxy headers, use the first X-Forwarded-For entry.
	if a.cfg.TrustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// baseURL is the externally visible origin used in emailed links.
func (a *Auth) baseURL() string {
	return strings.TrimRight(a.cfg.AppBaseURL, "/")
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
