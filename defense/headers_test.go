package defense

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicyDeniesByDefault(t *testing.T) {
	csp := DefaultPolicy().String()

	assert.True(t, strings.HasPrefix(csp, "default-src 'self' https://*.mapbox.com;"))
	assert.Contains(t, csp, "object-src 'none'")
	assert.Contains(t, csp, "font-src 'self' https://fonts.gstatic.com")
	assert.Contains(t, csp, "worker-src blob:")
	assert.Contains(t, csp, "; upgrade-insecure-requests")
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(Policy{{"default-src", []string{"'none'"}}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code, "never short-circuits")
	assert.Equal(t, "default-src 'none'", rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "0", rec.Header().Get("X-XSS-Protection"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeadersHSTSOnTLS(t *testing.T) {
	h := SecurityHeaders(nil)(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "https://example.com/", nil)
	req.TLS = &tls.ConnectionState{}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Contains(t, rec.Header().Get("Strict-Transport-Security"), "max-age=")
	assert.Equal(t, DefaultPolicy().String(), rec.Header().Get("Content-Security-Policy"))
}
