package defense

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardPollutionQuery(t *testing.T) {
	var c capture
	h := GuardPollution(DefaultAllowList, nil)(c.handler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tours?sort=duration&sort=price&duration=5&duration=9", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, c.called)
	assert.Equal(t, []string{"price"}, c.params.Query["sort"], "last value wins")
	assert.Equal(t, []string{"5", "9"}, c.params.Query["duration"], "allow-listed fields keep every value")
	assert.Contains(t, c.query, "sort=price")
	assert.NotContains(t, c.query, "sort=duration")
}

func TestGuardPollutionForm(t *testing.T) {
	var c capture
	h := LimitBody(1024, nil)(GuardPollution([]string{"difficulty"}, nil)(c.handler()))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("name=a&name=b&difficulty=easy&difficulty=medium"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, c.called)
	assert.Equal(t, "b", c.params.String("name"))
	assert.Equal(t, []any{"easy", "medium"}, c.params.Body["difficulty"])
}

func TestGuardPollutionLeavesJSONArrays(t *testing.T) {
	var c capture
	h := LimitBody(1024, nil)(GuardPollution(nil, nil)(c.handler()))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"tags":["a","b"]}`))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, c.called)
	assert.Equal(t, []any{"a", "b"}, c.params.Body["tags"])
}
