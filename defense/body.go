package defense

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/ashishbishnoi18/tourguard/apperr"
)

var (
	ErrBodyTooLarge = apperr.New(http.StatusRequestEntityTooLarge, "Request body is too large.")
	ErrInvalidJSON  = apperr.New(http.StatusBadRequest, "Invalid JSON in request body.")
	ErrInvalidForm  = apperr.New(http.StatusBadRequest, "Invalid form data in request body.")
)

// ErrorFunc writes the response for a request a stage rejected.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error)

func writeJSONError(w http.ResponseWriter, r *http.Request, err error) {
	apperr.WriteJSON(w, err)
}

// LimitBody rejects bodies over max bytes with 413 before anything parses
// them, then decodes JSON objects and url-encoded forms into the request's
// Params. Other content types are passed through unparsed, still capped.
func LimitBody(max int64, onError ErrorFunc) func(http.Handler) http.Handler {
	if onError == nil {
		onError = writeJSONError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > max {
				onError(w, r, ErrBodyTooLarge)
				return
			}

			p := &Params{Query: r.URL.Query(), Body: map[string]any{}, Route: map[string]string{}}

			var raw []byte
			if r.Body != nil && r.Body != http.NoBody {
				var err error
				raw, err = io.ReadAll(http.MaxBytesReader(w, r.Body, max))
				_ = r.Body.Close()
				if err != nil {
					var tooLarge *http.MaxBytesError
					if errors.As(err, &tooLarge) {
						onError(w, r, ErrBodyTooLarge)
						return
					}
					onError(w, r, apperr.BadRequestf("Could not read request body."))
					return
				}
			}

			if len(bytes.TrimSpace(raw)) > 0 {
				mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
				switch mediaType {
				case "application/json":
					body, err := decodeJSONObject(raw)
					if err != nil {
						onError(w, r, ErrInvalidJSON)
						return
					}
					p.Body, p.kind = body, bodyJSON
				case "application/x-www-form-urlencoded":
					values, err := url.ParseQuery(string(raw))
					if err != nil {
						onError(w, r, ErrInvalidForm)
						return
					}
					p.Body, p.kind = formToMap(values), bodyForm
				}
			}

			r = r.WithContext(WithParams(r.Context(), p))
			if raw != nil {
				r.Body = io.NopCloser(bytes.NewReader(raw))
				r.ContentLength = int64(len(raw))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func decodeJSONObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON object")
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}
