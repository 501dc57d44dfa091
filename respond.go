package tourguard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ashishbishnoi18/tourguard/apperr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func isOperational(err error) bool {
	return apperr.IsOperational(err)
}

func isAPIRequest(r *http.Request) bool {
	return r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/")
}

// RespondError is the single place where a failed request becomes a
// response. Operational errors keep their status and message. Anything else
// is logged and answered with a generic 500. API paths get JSON, pages get
// the error view.
func (a *Auth) RespondError(w http.ResponseWriter, r *http.Request, err error) {
	c := apperr.Classify(err)
	if !c.Operational {
		a.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	if isAPIRequest(r) {
		apperr.WriteJSON(w, err)
		return
	}

	data := viewData{Title: "Something went wrong!", Msg: c.Message, User: CurrentUser(r)}
	if rerr := a.renderStatus(w, c.Status, "error", data); rerr != nil {
		a.log.Error("render error page", zap.Error(rerr))
		http.Error(w, c.Message, c.Status)
	}
}

// notFound answers unknown routes.
func (a *Auth) notFound(w http.ResponseWriter, r *http.Request) {
	a.RespondError(w, r, apperr.Newf(http.StatusNotFound, "Can't find %s on this server!", r.URL.Path))
}

type userData struct {
	User *User `json:"user"`
}

type successBody struct {
	Status  string    `json:"status"`
	Token   string    `json:"token,omitempty"`
	Message string    `json:"message,omitempty"`
	Data    *userData `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// sendToken sets the session cookie and answers with the token and user.
func (a *Auth) sendToken(w http.ResponseWriter, r *http.Request, status int, u *User, issued *IssuedToken) error {
	http.SetCookie(w, a.tokens.Cookie(issued, a.secureRequest(r)))
	return writeJSON(w, status, successBody{
		Status: "success",
		Token:  issued.Token,
		Data:   &userData{User: u},
	})
}

// handlerFunc is a handler whose failures go to RespondError.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (a *Auth) catch(h handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			a.RespondError(w, r, err)
		}
	})
}

// runProtected turns a panicking handler into a programming error response.
func (a *Auth) runProtected(w http.ResponseWriter, r *http.Request, handler func()) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if rec == http.ErrAbortHandler {
			panic(rec)
		}

		err, ok := rec.(error)
		if !ok {
			err = fmt.Errorf("%v", rec)
		}
		a.log.Error("handler panic", zap.String("path", r.URL.Path), zap.Error(err), zap.Stack("stack"))
		a.RespondError(w, r, fmt.Errorf("panic: %w", err))
	}()

	handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(status int) {
	if s.status == 0 {
		s.status = status
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(p)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// logRequests logs one line per request. It is only installed in
// development.
func (a *Auth) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		a.log.Info("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int("bytes", rec.bytes),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
