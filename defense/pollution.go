package defense

import "net/http"

// DefaultAllowList names the tour filter fields that may legitimately repeat,
// e.g. ?duration=5&duration=9.
var DefaultAllowList = []string{
	"duration",
	"ratingsQuantity",
	"ratingsAverage",
	"maxGroupSize",
	"difficulty",
	"price",
}

// GuardPollution collapses parameters sent more than once to their last
// value, except for the allow-listed names. It covers the query string and
// url-encoded form bodies; JSON arrays are data, not pollution.
func GuardPollution(allow []string, onError ErrorFunc) func(http.Handler) http.Handler {
	if onError == nil {
		onError = writeJSONError
	}
	allowed := make(map[string]bool, len(allow))
	for _, name := range allow {
		allowed[name] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := ParamsFrom(r)
			for k, vs := range p.Query {
				if len(vs) > 1 && !allowed[k] {
					p.Query[k] = vs[len(vs)-1:]
				}
			}
			if p.kind == bodyForm {
				for k, v := range p.Body {
					if items, ok := v.([]any); ok && len(items) > 0 && !allowed[k] {
						p.Body[k] = items[len(items)-1]
					}
				}
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
