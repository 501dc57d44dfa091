package defense

import (
	"net/http"
	"strings"
)

// Directive is one Content-Security-Policy directive.
type Directive struct {
	Name    string
	Sources []string
}

// Policy is an ordered Content-Security-Policy.
type Policy []Directive

// DefaultPolicy denies by default and allows the origins the site's pages
// need: map tiles and scripts from Mapbox, Google fonts, and blob workers.
func DefaultPolicy() Policy {
	return Policy{
		{"default-src", []string{"'self'", "https://*.mapbox.com"}},
		{"base-uri", []string{"'self'"}},
		{"object-src", []string{"'none'"}},
		{"script-src", []string{"'self'", "https://*.mapbox.com"}},
		{"script-src-attr", []string{"'none'"}},
		{"style-src", []string{"'self'", "https:", "'unsafe-inline'"}},
		{"font-src", []string{"'self'", "https://fonts.gstatic.com"}},
		{"img-src", []string{"'self'", "data:", "blob:", "https://lh3.googleusercontent.com"}},
		{"connect-src", []string{"'self'", "https://*.mapbox.com"}},
		{"child-src", []string{"blob:"}},
		{"worker-src", []string{"blob:"}},
		{"frame-src", []string{"'self'"}},
		{"frame-ancestors", []string{"'self'"}},
		{"form-action", []string{"'self'"}},
		{"upgrade-insecure-requests", nil},
	}
}

func (p Policy) String() string {
	parts := make([]string, 0, len(p))
	for _, d := range p {
		if len(d.Sources) == 0 {
			parts = append(parts, d.Name)
			continue
		}
		parts = append(parts, d.Name+" "+strings.Join(d.Sources, " "))
	}
	return strings.Join(parts, "; ")
}

// SecurityHeaders sets the CSP and the usual hardening headers on every
// response. It never rejects a request.
func SecurityHeaders(policy Policy) func(http.Handler) http.Handler {
	if policy == nil {
		policy = DefaultPolicy()
	}
	csp := policy.String()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", csp)
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			h.Set("Cross-Origin-Resource-Policy", "same-origin")
			h.Set("Origin-Agent-Cluster", "?1")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-DNS-Prefetch-Control", "off")
			h.Set("X-Download-Options", "noopen")
			h.Set("X-Frame-Options", "SAMEORIGIN")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
			h.Set("X-XSS-Protection", "0")
			if r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
			}
			h.Del("X-Powered-By")
			next.ServeHTTP(w, r)
		})
	}
}
