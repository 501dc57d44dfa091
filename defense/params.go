package defense

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

type bodyKind int

const (
	bodyNone bodyKind = iota
	bodyJSON
	bodyForm
)

// Params is the parsed input of a request after the chain ran.
type Params struct {
	Query url.Values
	// Body holds a decoded JSON object or url-encoded form. Form fields that
	// were sent once are strings, repeated ones are []any.
	Body  map[string]any
	Route map[string]string

	kind bodyKind
}

type paramsKey struct{}

// WithParams stores p in ctx.
func WithParams(ctx context.Context, p *Params) context.Context {
	return context.WithValue(ctx, paramsKey{}, p)
}

// ParamsFrom returns the request's parsed input. Requests that did not pass
// LimitBody get their query parsed on the spot and an empty body.
func ParamsFrom(r *http.Request) *Params {
	if p, ok := r.Context().Value(paramsKey{}).(*Params); ok {
		return p
	}
	return &Params{Query: r.URL.Query(), Body: map[string]any{}, Route: map[string]string{}}
}

// String returns a body field as a string. Numbers and booleans are
// formatted; objects and arrays yield "".
func (p *Params) String(key string) string {
	switch v := p.Body[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// Has reports whether the body carries key.
func (p *Params) Has(key string) bool {
	_, ok := p.Body[key]
	return ok
}

// Param returns a route parameter.
func (p *Params) Param(name string) string {
	return p.Route[name]
}

// syncRequest writes p back into the request so code reading r.URL or
// r.Body sees the same cleaned values as ParamsFrom.
func syncRequest(r *http.Request, p *Params) (*http.Request, error) {
	r = r.WithContext(WithParams(r.Context(), p))
	u := *r.URL
	u.RawQuery = p.Query.Encode()
	r.URL = &u
	r.Form, r.PostForm = nil, nil

	var body []byte
	switch p.kind {
	case bodyJSON:
		b, err := json.Marshal(p.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = b
	case bodyForm:
		body = []byte(encodeForm(p.Body))
	default:
		return r, nil
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	return r, nil
}

func encodeForm(m map[string]any) string {
	v := url.Values{}
	for k, raw := range m {
		switch val := raw.(type) {
		case string:
			v.Add(k, val)
		case []any:
			for _, item := range val {
				if s, ok := item.(string); ok {
					v.Add(k, s)
				}
			}
		}
	}
	return v.Encode()
}

func formToMap(values url.Values) map[string]any {
	m := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			m[k] = vs[0]
			continue
		}
		items := make([]any, len(vs))
		for i, s := range vs {
			items[i] = s
		}
		m[k] = items
	}
	return m
}
