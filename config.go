package tourguard

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LinkPolicy decides what a federated login does when its email already
// belongs to a local account that was never linked to the provider.
type LinkPolicy string

const (
	// LinkVerifiedEmail links the accounts only when the provider asserts the
	// email is verified.
	LinkVerifiedEmail LinkPolicy = "verified-email"
	// LinkNever refuses the login; the user must log in locally first.
	LinkNever LinkPolicy = "never"
)

type Config struct {
	Env        string // "development" or "production"
	Port       int
	AppBaseURL string // e.g. https://yourapp.com

	JWTSecret     []byte
	TokenTTL      time.Duration
	CookieName    string
	CookieDomain  string
	SecureCookies bool

	ResetTicketTTL       time.Duration
	ResetRequestsPerHour int

	RateLimitMax    int
	RateLimitWindow time.Duration
	RateLimitPrefix string
	MaxBodyBytes    int64
	CompressMin     int

	GoogleClientID     string
	GoogleClientSecret string
	RedirectURL        string // e.g. https://yourapp.com/auth/google/callback
	LinkPolicy         LinkPolicy
	ProviderSessionTTL time.Duration

	SuccessPath string // where a finished federated login lands
	FailurePath string // where a failed federated login lands

	TrustProxyHeaders bool // if true, use X-Forwarded-For for client IP

	DatabaseURL   string
	MongoURI      string
	MongoDatabase string
	RedisURL      string

	SMTP SMTPConfig
}

// Development reports whether the app runs in development mode.
func (c Config) Development() bool {
	return c.Env == "development"
}

// ApplyDefaults fills every zero field that has a sensible default. It never
// touches secrets.
func (c *Config) ApplyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Port == 0 {
		c.Port = 3000
	}
	if c.AppBaseURL == "" {
		c.AppBaseURL = fmt.Sprintf("http://localhost:%d", c.Port)
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = 90 * 24 * time.Hour
	}
	if c.CookieName == "" {
		c.CookieName = "session-token"
	}
	if c.ResetTicketTTL == 0 {
		c.ResetTicketTTL = 10 * time.Minute
	}
	if c.ResetRequestsPerHour == 0 {
		c.ResetRequestsPerHour = 5
	}
	if c.RateLimitMax == 0 {
		c.RateLimitMax = 100
	}
	if c.RateLimitWindow == 0 {
		c.RateLimitWindow = time.Hour
	}
	if c.RateLimitPrefix == "" {
		c.RateLimitPrefix = "/api"
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 10 << 10
	}
	if c.CompressMin == 0 {
		c.CompressMin = 1 << 10
	}
	if c.LinkPolicy == "" {
		c.LinkPolicy = LinkVerifiedEmail
	}
	if c.ProviderSessionTTL == 0 {
		c.ProviderSessionTTL = 24 * time.Hour
	}
	if c.SuccessPath == "" {
		c.SuccessPath = "/views/success"
	}
	if c.FailurePath == "" {
		c.FailurePath = "/error"
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = "natours"
	}
}

// ConfigFromEnv expects the app to have loaded .env (e.g. via github.com/joho/godotenv)
// and reads standard environment variables.
//
// Required:
//
//	JWT_SECRET               (at least 32 bytes)
//	GOOGLE_CLIENT_ID
//	GOOGLE_CLIENT_SECRET
//	GOOGLE_REDIRECT_URL
//
// Optional (with defaults):
//
//	APP_ENV                  (default: "development")
//	PORT                     (default: 3000)
//	APP_BASE_URL             (default: "http://localhost:$PORT")
//	JWT_EXPIRES_IN           (default: "90d")
//	SESSION_COOKIE_NAME      (default: "session-token")
//	SESSION_COOKIE_DOMAIN    (default: "") -> current host
//	SESSION_SECURE_COOKIES   (default: true in production, false otherwise)
//	RESET_TICKET_TTL         (default: "10m")
//	RESET_REQUESTS_PER_HOUR  (default: 5)
//	RATE_LIMIT_MAX           (default: 100)
//	RATE_LIMIT_WINDOW        (default: "1h")
//	RATE_LIMIT_PREFIX        (default: "/api")
//	MAX_BODY_BYTES           (default: 10240)
//	COMPRESS_MIN_BYTES       (default: 1024)
//	FEDERATED_LINK_POLICY    (default: "verified-email"; or "never")
//	PROVIDER_SESSION_TTL     (default: "24h")
//	TRUST_PROXY_HEADERS      (default: "false")
//	DATABASE_URL, MONGODB_URI, MONGODB_DATABASE, REDIS_URL
//	SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD, SMTP_FROM, SMTP_FROM_NAME
func ConfigFromEnv() (Config, error) {
	cfg := Config{}
	var err error

	cfg.JWTSecret = []byte(os.Getenv("JWT_SECRET"))
	if len(cfg.JWTSecret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET is required and must be at least 32 bytes")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.RedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")

	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" || cfg.RedirectURL == "" {
		return Config{}, fmt.Errorf("GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET, and GOOGLE_REDIRECT_URL are required")
	}

	cfg.Env = os.Getenv("APP_ENV")
	cfg.AppBaseURL = os.Getenv("APP_BASE_URL")
	cfg.CookieName = os.Getenv("SESSION_COOKIE_NAME")
	cfg.CookieDomain = os.Getenv("SESSION_COOKIE_DOMAIN")
	cfg.RateLimitPrefix = os.Getenv("RATE_LIMIT_PREFIX")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.MongoURI = os.Getenv("MONGODB_URI")
	cfg.MongoDatabase = os.Getenv("MONGODB_DATABASE")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.LinkPolicy = LinkPolicy(os.Getenv("FEDERATED_LINK_POLICY"))

	if cfg.Port, err = envInt("PORT"); err != nil {
		return Config{}, err
	}
	if cfg.TokenTTL, err = envDuration("JWT_EXPIRES_IN"); err != nil {
		return Config{}, err
	}
	if cfg.ResetTicketTTL, err = envDuration("RESET_TICKET_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.ResetRequestsPerHour, err = envInt("RESET_REQUESTS_PER_HOUR"); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitMax, err = envInt("RATE_LIMIT_MAX"); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitWindow, err = envDuration("RATE_LIMIT_WINDOW"); err != nil {
		return Config{}, err
	}
	maxBody, err := envInt("MAX_BODY_BYTES")
	if err != nil {
		return Config{}, err
	}
	cfg.MaxBodyBytes = int64(maxBody)
	if cfg.CompressMin, err = envInt("COMPRESS_MIN_BYTES"); err != nil {
		return Config{}, err
	}
	if cfg.ProviderSessionTTL, err = envDuration("PROVIDER_SESSION_TTL"); err != nil {
		return Config{}, err
	}

	cfg.ApplyDefaults()

	switch cfg.LinkPolicy {
	case LinkVerifiedEmail, LinkNever:
	default:
		return Config{}, fmt.Errorf("invalid FEDERATED_LINK_POLICY: %q", cfg.LinkPolicy)
	}

	// Resolved once here; nothing else looks at APP_ENV to decide cookie flags.
	secureStr := os.Getenv("SESSION_SECURE_COOKIES")
	if secureStr == "" {
		secureStr = strconv.FormatBool(cfg.Env == "production")
	}
	secure, err := strconv.ParseBool(secureStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SESSION_SECURE_COOKIES: %q", secureStr)
	}
	cfg.SecureCookies = secure

	trustProxyStr := os.Getenv("TRUST_PROXY_HEADERS")
	if trustProxyStr == "" {
		trustProxyStr = "false"
	}
	trustProxy, err := strconv.ParseBool(trustProxyStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid TRUST_PROXY_HEADERS: %q", trustProxyStr)
	}
	cfg.TrustProxyHeaders = trustProxy

	cfg.SMTP = SMTPConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
		FromName: os.Getenv("SMTP_FROM_NAME"),
	}
	if cfg.SMTP.Port, err = envInt("SMTP_PORT"); err != nil {
		return Config{}, err
	}

	// Safety check: do not allow HTTPS base URL with insecure cookies
	if strings.HasPrefix(strings.ToLower(cfg.AppBaseURL), "https://") && !cfg.SecureCookies {
		return Config{}, fmt.Errorf("APP_BASE_URL is https but SESSION_SECURE_COOKIES=false; set SESSION_SECURE_COOKIES=true for secure deployment")
	}

	return cfg, nil
}

// envInt returns 0 when the variable is unset so ApplyDefaults can fill it.
func envInt(name string) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return n, nil
}

func envDuration(name string) (time.Duration, error) {
	s := os.Getenv(name)
	if s == "" {
		return 0, nil
	}
	d, err := ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return d, nil
}

// ParseDuration accepts everything time.ParseDuration does plus a whole-day
// form such as "90d".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
