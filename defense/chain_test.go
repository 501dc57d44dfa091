package defense

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var c capture
	h := Chain(Config{
		RateLimit:    RateLimitConfig{Prefix: "/api", Requests: 2, Window: time.Hour},
		MaxBodyBytes: 256,
		CompressMin:  64,
	}, c.handler())

	body := `{"email":{"$gt":""},"name":"<script>alert(1)</script>Leo"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/signup?sort=a&sort=b", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.True(t, c.called)
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, map[string]any{}, c.params.Body["email"])
	assert.Equal(t, "Leo", c.params.String("name"))
	assert.Equal(t, []string{"b"}, c.params.Query["sort"])

	// Oversized bodies are refused even though the budget has room left.
	c = capture{}
	req = httptest.NewRequest(http.MethodPost, "/api/v1/users/signup", strings.NewReader(strings.Repeat("a", 300)))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, c.called)
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"), "headers are set before any rejection")

	// The rate limiter runs before the body cap: the third request is
	// refused without its body being looked at.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/users/signup", strings.NewReader(strings.Repeat("a", 300)))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestChainCompressesHandlerOutput(t *testing.T) {
	page := strings.Repeat("<p>tour</p>", 100)
	h := Chain(Config{CompressMin: 64}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, page)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	got, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, page, string(got))
}

func TestChainCustomErrorFunc(t *testing.T) {
	var seen []error
	h := Chain(Config{
		MaxBodyBytes: 8,
		OnError: func(w http.ResponseWriter, r *http.Request, err error) {
			seen = append(seen, err)
			http.Error(w, "rejected", http.StatusTeapot)
		},
	}, okHandler())

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("0123456789"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	require.Len(t, seen, 1)
	assert.ErrorIs(t, seen[0], ErrBodyTooLarge)
}
