package tourguard

import (
	"errors"
	"net/http"

	"github.com/ashishbishnoi18/tourguard/apperr"
)

// Operational errors returned by the identity flows. They are safe to show
// to clients; compare with errors.Is.
var (
	ErrInvalidCredentials     = apperr.New(http.StatusUnauthorized, "Incorrect email or password")
	ErrUnauthorized           = apperr.New(http.StatusUnauthorized, "You are not logged in! Please log in to get access.")
	ErrInvalidToken           = apperr.New(http.StatusUnauthorized, "Invalid token. Please log in again!")
	ErrExpiredToken           = apperr.New(http.StatusUnauthorized, "Your token has expired! Please log in again.")
	ErrStaleToken             = apperr.New(http.StatusUnauthorized, "User recently changed password! Please log in again.")
	ErrUserGone               = apperr.New(http.StatusUnauthorized, "The user belonging to this token does no longer exist.")
	ErrInvalidOrExpiredTicket = apperr.New(http.StatusBadRequest, "Token is invalid or has expired")
	ErrWrongCurrentPassword   = apperr.New(http.StatusUnauthorized, "Your current password is wrong.")
	ErrPasswordTooShort       = apperr.New(http.StatusBadRequest, "Password must have at least 8 characters")
	ErrPasswordTooLong        = apperr.New(http.StatusBadRequest, "Password must have at most 72 bytes")
	ErrPasswordMismatch       = apperr.New(http.StatusBadRequest, "Passwords are not the same!")
	ErrInvalidEmail           = apperr.New(http.StatusBadRequest, "Please provide a valid email")
	ErrMissingName            = apperr.New(http.StatusBadRequest, "Please tell us your name!")
	ErrMissingCredentials     = apperr.New(http.StatusBadRequest, "Please provide email and password!")
	ErrEmailTaken             = apperr.New(http.StatusBadRequest, "Email is already in use. Please use another one!")
	ErrNotForPasswords        = apperr.New(http.StatusBadRequest, "This route is not for password updates. Please use /updateMyPassword.")
	ErrAccountConflict        = apperr.New(http.StatusConflict, "An account with this email already exists. Log in with your password first.")
	ErrUnverifiedEmail        = apperr.New(http.StatusForbidden, "Your provider account email is not verified.")
	ErrUnknownProvider        = apperr.New(http.StatusNotFound, "Unknown identity provider.")
)

// Store-level errors. Flows translate them into operational errors; they never
// reach a client unwrapped.
var (
	// ErrDuplicateEmail is returned when an email already belongs to another user.
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrPreconditionFailed is returned when a conditional update matched no record.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrDuplicateLinkage is returned when a provider subject is already linked.
	ErrDuplicateLinkage = errors.New("provider subject already linked")
)
