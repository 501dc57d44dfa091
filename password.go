package tourguard

import (
	"errors"
	"net/mail"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLen = 72
)

// PasswordHasher hashes and checks passwords with bcrypt.
type PasswordHasher struct {
	cost int
	// dummy is compared against when no user exists so both paths cost the same.
	dummy []byte
}

func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("tourguard-dummy-password"), cost)
	if err != nil {
		return nil, err
	}
	return &PasswordHasher{cost: cost, dummy: dummy}, nil
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether password matches hash. An empty hash never matches.
func (h *PasswordHasher) Verify(hash, password string) (bool, error) {
	if hash == "" {
		h.burn(password)
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// burn spends one comparison's worth of time on the dummy hash.
func (h *PasswordHasher) burn(password string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}

// ValidatePassword enforces the password policy and the confirmation match.
func ValidatePassword(password, confirm string) error {
	switch {
	case len(password) < minPasswordLen:
		return ErrPasswordTooShort
	case len(password) > maxPasswordLen:
		return ErrPasswordTooLong
	case password != confirm:
		return ErrPasswordMismatch
	}
	return nil
}

// ValidateEmail accepts a bare address only, no display name.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}
