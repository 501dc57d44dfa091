package defense

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var markup = bluemonday.StrictPolicy()

// Sanitize neutralizes the request's parsed input in place: keys that look
// like data store query operators are dropped and markup is stripped from
// string values. The cleaned values are written back to r.URL and r.Body.
func Sanitize(onError ErrorFunc) func(http.Handler) http.Handler {
	if onError == nil {
		onError = writeJSONError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := ParamsFrom(r)
			p.Query = CleanQuery(p.Query)
			p.Body = CleanMap(p.Body)
			for k, v := range p.Route {
				p.Route[k] = CleanRouteParam(v)
			}

			synced, err := syncRequest(r, p)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, synced)
		})
	}
}

// OperatorKey reports whether a key could smuggle a query operator into a
// data store filter: any segment that starts with "$" or contains ".".
// Bracketed query keys such as "price[$gt]" are checked per segment.
func OperatorKey(key string) bool {
	for _, seg := range strings.FieldsFunc(key, func(r rune) bool { return r == '[' || r == ']' }) {
		if strings.HasPrefix(seg, "$") || strings.Contains(seg, ".") {
			return true
		}
	}
	return false
}

// CleanQuery returns q without operator keys and with markup stripped.
func CleanQuery(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, vs := range q {
		if OperatorKey(k) {
			continue
		}
		cleaned := make([]string, len(vs))
		for i, v := range vs {
			cleaned[i] = CleanString(v)
		}
		out[k] = cleaned
	}
	return out
}

// CleanMap recursively drops operator keys and strips markup from strings.
func CleanMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if OperatorKey(k) {
			continue
		}
		out[k] = cleanValue(v)
	}
	return out
}

func cleanValue(v any) any {
	switch val := v.(type) {
	case string:
		return CleanString(val)
	case map[string]any:
		return CleanMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cleanValue(item)
		}
		return out
	}
	return v
}

// CleanString strips markup. Values without angle brackets are returned
// unchanged so plain text keeps its ampersands and quotes.
func CleanString(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return s
	}
	return markup.Sanitize(s)
}

// CleanRouteParam cleans a value captured from the URL path. Route params
// are set by the router after Sanitize ran, so the router calls this itself.
func CleanRouteParam(v string) string {
	if strings.HasPrefix(v, "$") {
		return ""
	}
	return CleanString(v)
}
