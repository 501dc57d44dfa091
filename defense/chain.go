package defense

import (
	"net/http"

	"go.uber.org/zap"
)

type Config struct {
	Policy       Policy
	RateLimit    RateLimitConfig
	MaxBodyBytes int64
	// AllowList names parameters that may repeat; see GuardPollution.
	AllowList   []string
	CompressMin int
	// OnError writes rejections (429, 413, 400). Defaults to a JSON body.
	OnError ErrorFunc
	Logger  *zap.Logger
}

// Chain wraps next in every stage, outermost first: SecurityHeaders,
// RateLimit, LimitBody, Sanitize, GuardPollution, Compress.
func Chain(cfg Config, next http.Handler) http.Handler {
	if cfg.RateLimit.Logger == nil {
		cfg.RateLimit.Logger = cfg.Logger
	}
	if cfg.AllowList == nil {
		cfg.AllowList = DefaultAllowList
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 10
	}

	stages := []func(http.Handler) http.Handler{
		SecurityHeaders(cfg.Policy),
		RateLimit(cfg.RateLimit, cfg.OnError),
		LimitBody(cfg.MaxBodyBytes, cfg.OnError),
		Sanitize(cfg.OnError),
		GuardPollution(cfg.AllowList, cfg.OnError),
		Compress(cfg.CompressMin),
	}

	h := next
	for i := len(stages) - 1; i >= 0; i-- {
		h = stages[i](h)
	}
	return h
}
