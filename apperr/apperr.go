// Package apperr separates operational failures (expected, safe to show the
// client) from programming failures (bugs, outages) so one terminal handler
// can decide what a response may reveal.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// GenericMessage is what clients see for any non-operational failure.
const GenericMessage = "Something went very wrong!"

// Error is an operational error: its Status and Message go to the client as is.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// New returns an operational error with a fixed message.
func New(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// Newf returns an operational error with a formatted message.
func Newf(status int, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

// BadRequestf is shorthand for a 400.
func BadRequestf(format string, args ...any) *Error {
	return Newf(http.StatusBadRequest, format, args...)
}

// Classification is the outcome of Classify.
type Classification struct {
	Status      int
	Message     string
	Operational bool
}

// Outcome is "fail" for client errors and "error" for server errors.
func (c Classification) Outcome() string {
	if c.Status >= 400 && c.Status < 500 {
		return "fail"
	}
	return "error"
}

// Classify finds the first *Error in err's chain. Anything else is a
// programming error and maps to 500 with GenericMessage.
func Classify(err error) Classification {
	var ae *Error
	if errors.As(err, &ae) {
		return Classification{Status: ae.Status, Message: ae.Message, Operational: true}
	}
	return Classification{Status: http.StatusInternalServerError, Message: GenericMessage}
}

// IsOperational reports whether err carries an *Error.
func IsOperational(err error) bool {
	var ae *Error
	return errors.As(err, &ae)
}

// Body is the JSON error envelope.
type Body struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// WriteJSON classifies err and writes the JSON envelope. It does no logging;
// callers that want programming errors recorded log before calling it.
func WriteJSON(w http.ResponseWriter, err error) Classification {
	c := Classify(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(c.Status)
	_ = json.NewEncoder(w).Encode(Body{Status: c.Outcome(), Message: c.Message})
	return c
}
