package defense

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ashishbishnoi18/tourguard/apperr"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

// ErrTooManyRequests is the response for a client over its budget.
var ErrTooManyRequests = apperr.New(http.StatusTooManyRequests, "Too many requests from this IP, please try again in an hour!")

type RateLimitConfig struct {
	// Prefix limits counting to paths under it, e.g. "/api". Empty counts
	// every request.
	Prefix   string
	Requests int
	Window   time.Duration
	// TrustProxy keys clients by X-Real-IP / X-Forwarded-For instead of the
	// connection's remote address. Only enable behind a proxy that sets them.
	TrustProxy bool
	// Counter stores the buckets. Nil keeps them in process memory; a
	// RedisCounter shares them between instances.
	Counter httprate.LimitCounter
	Logger  *zap.Logger
}

// RateLimit allows cfg.Requests per client within a sliding cfg.Window and
// answers the rest with ErrTooManyRequests without calling next.
func RateLimit(cfg RateLimitConfig, onError ErrorFunc) func(http.Handler) http.Handler {
	if onError == nil {
		onError = writeJSONError
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Requests <= 0 {
		cfg.Requests = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}

	keyFunc := httprate.KeyByIP
	if cfg.TrustProxy {
		keyFunc = httprate.KeyByRealIP
	}
	opts := []httprate.Option{
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			onError(w, r, ErrTooManyRequests)
		}),
		httprate.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error("rate limit counter failed", zap.String("component", "ratelimit"), zap.Error(err))
			onError(w, r, fmt.Errorf("rate limit: %w", err))
		}),
	}
	if cfg.Counter != nil {
		opts = append(opts, httprate.WithLimitCounter(cfg.Counter))
	}
	limiter := httprate.NewRateLimiter(cfg.Requests, cfg.Window, opts...)

	return func(next http.Handler) http.Handler {
		limited := limiter.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !underPrefix(r.URL.Path, cfg.Prefix) {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

func underPrefix(path, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
