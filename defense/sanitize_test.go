package defense

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"email", false},
		{"price", false},
		{"$gt", true},
		{"$where", true},
		{"price[$gt]", true},
		{"price[gte]", false},
		{"user.name", true},
		{"a[b][$ne]", true},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OperatorKey(tt.key), tt.key)
	}
}

func TestCleanString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Leo Gillespie", "Leo Gillespie"},
		{"Tom & Jerry", "Tom & Jerry"},
		{"<script>alert('x')</script>Leo", "Leo"},
		{"<b>bold</b>", "bold"},
		{`<img src=x onerror="alert(1)">`, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanString(tt.in), tt.in)
	}

	assert.NotContains(t, CleanString("5 > 3"), ">")
}

func TestCleanMapRecursive(t *testing.T) {
	in := map[string]any{
		"email":    map[string]any{"$gt": ""},
		"$where":   "sleep(1000)",
		"name":     "<script>x</script>Leo",
		"nested":   map[string]any{"ok": "<i>yes</i>", "a.b": 1},
		"list":     []any{"<b>one</b>", map[string]any{"$ne": 1, "keep": "two"}},
		"password": "pass1234",
	}

	got := CleanMap(in)
	assert.Equal(t, map[string]any{
		"email":    map[string]any{},
		"name":     "Leo",
		"nested":   map[string]any{"ok": "yes"},
		"list":     []any{"one", map[string]any{"keep": "two"}},
		"password": "pass1234",
	}, got)
}

func TestSanitizeMiddleware(t *testing.T) {
	var c capture
	h := LimitBody(1024, nil)(Sanitize(nil)(c.handler()))

	body := `{"email":{"$gt":""},"password":"pass1234","name":"<script>alert(1)</script>Leo"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tours?price[$gt]=100&name=%3Cb%3Ex%3C%2Fb%3E&sort=price", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, c.called)
	assert.Equal(t, map[string]any{}, c.params.Body["email"], "operator dropped, leaving an empty object")
	assert.Equal(t, "Leo", c.params.String("name"))
	assert.Equal(t, "pass1234", c.params.String("password"))

	q, err := url.ParseQuery(c.query)
	require.NoError(t, err)
	assert.NotContains(t, q, "price[$gt]")
	assert.Equal(t, "x", q.Get("name"))
	assert.Equal(t, "price", q.Get("sort"))

	assert.JSONEq(t, `{"email":{},"password":"pass1234","name":"Leo"}`, c.body, "raw body is the sanitized one")
}

func TestSanitizeWithoutLimitBody(t *testing.T) {
	var c capture
	h := Sanitize(nil)(c.handler())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?$where=1&q=ok", nil))
	require.True(t, c.called)
	assert.Equal(t, "q=ok", c.query)
}

func TestCleanRouteParam(t *testing.T) {
	assert.Equal(t, "abc-DEF_123", CleanRouteParam("abc-DEF_123"))
	assert.Equal(t, "", CleanRouteParam("$ne"))
	assert.Equal(t, "x", CleanRouteParam("<b>x</b>"))
}
