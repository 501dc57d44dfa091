package defense

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

var gzipWriters = sync.Pool{
	New: func() any { return gzip.NewWriter(nil) },
}

// Compress gzips responses of at least minBytes for clients that accept it.
// Smaller bodies are sent as they are.
func Compress(minBytes int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Accept-Encoding")
			if r.Method == http.MethodHead || !acceptsGzip(r) {
				next.ServeHTTP(w, r)
				return
			}

			cw := &compressWriter{ResponseWriter: w, min: minBytes}
			defer cw.Close()
			next.ServeHTTP(cw, r)
		})
	}
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.TrimSpace(enc) != "gzip" {
			continue
		}
		if q, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
				return false
			}
		}
		return true
	}
	return false
}

// compressWriter buffers the first min bytes to decide whether the body is
// worth compressing, then either streams through gzip or passes through.
type compressWriter struct {
	http.ResponseWriter
	min int

	status      int
	wroteHeader bool // WriteHeader was called by the handler
	decided     bool
	buf         bytes.Buffer
	gz          *gzip.Writer
}

func (cw *compressWriter) WriteHeader(status int) {
	if cw.wroteHeader {
		return
	}
	cw.wroteHeader = true
	cw.status = status
	// 1xx responses are not the final header.
	if status >= 100 && status < 200 {
		cw.ResponseWriter.WriteHeader(status)
		cw.wroteHeader = false
	}
}

func (cw *compressWriter) Write(p []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	if cw.decided {
		if cw.gz != nil {
			return cw.gz.Write(p)
		}
		return cw.ResponseWriter.Write(p)
	}

	cw.buf.Write(p)
	if cw.buf.Len() >= cw.min {
		if err := cw.decide(true); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// decide commits the header. big reports whether the buffered body reached
// the threshold.
func (cw *compressWriter) decide(big bool) error {
	cw.decided = true
	h := cw.Header()

	if big && cw.compressible() {
		h.Set("Content-Encoding", "gzip")
		h.Del("Content-Length")
		if h.Get("Content-Type") == "" {
			h.Set("Content-Type", http.DetectContentType(cw.buf.Bytes()))
		}
		cw.ResponseWriter.WriteHeader(cw.status)

		gz := gzipWriters.Get().(*gzip.Writer)
		gz.Reset(cw.ResponseWriter)
		cw.gz = gz
		_, err := cw.gz.Write(cw.buf.Bytes())
		cw.buf.Reset()
		return err
	}

	cw.ResponseWriter.WriteHeader(cw.status)
	_, err := cw.ResponseWriter.Write(cw.buf.Bytes())
	cw.buf.Reset()
	return err
}

func (cw *compressWriter) compressible() bool {
	if cw.status == http.StatusNoContent || cw.status == http.StatusNotModified || cw.status < 200 {
		return false
	}
	h := cw.Header()
	if h.Get("Content-Encoding") != "" {
		return false
	}
	return !strings.Contains(h.Get("Cache-Control"), "no-transform")
}

// Close flushes whatever is left. Handlers that wrote nothing still get
// their status sent.
func (cw *compressWriter) Close() error {
	if !cw.decided {
		if !cw.wroteHeader {
			return nil
		}
		if err := cw.decide(false); err != nil {
			return err
		}
	}
	if cw.gz == nil {
		return nil
	}
	err := cw.gz.Close()
	gzipWriters.Put(cw.gz)
	cw.gz = nil
	return err
}

func (cw *compressWriter) Flush() {
	if !cw.decided && cw.wroteHeader {
		_ = cw.decide(cw.buf.Len() >= cw.min)
	}
	if cw.gz != nil {
		_ = cw.gz.Flush()
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (cw *compressWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := cw.ResponseWriter.(http.Hijacker); ok {
		cw.decided = true
		return hj.Hijack()
	}
	return nil, nil, errors.New("defense: response does not support hijacking")
}

func (cw *compressWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}
