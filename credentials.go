package tourguard

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

type SignupInput struct {
	Name            string
	Email           string
	Password        string
	PasswordConfirm string
}

// Signup creates a local account and starts a session for it.
func (a *Auth) Signup(ctx context.Context, in SignupInput) (*User, *IssuedToken, error) {
	name := strings.TrimSpace(in.Name)
	email := NormalizeEmail(in.Email)
	if name == "" {
		return nil, nil, ErrMissingName
	}
	if err := ValidateEmail(email); err != nil {
		return nil, nil, err
	}
	if err := ValidatePassword(in.Password, in.PasswordConfirm); err != nil {
		return nil, nil, err
	}

	hash, err := a.passwords.Hash(in.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{Name: name, Email: email, Role: RoleUser, PasswordHash: hash}
	if err := a.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, nil, ErrEmailTaken
		}
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	if err := a.sender.SendWelcome(ctx, u.Email, u.Name, a.baseURL()+"/me"); err != nil {
		a.log.Warn("welcome email failed", zap.String("user_id", u.ID), zap.Error(err))
	}

	issued, err := a.tokens.Issue(u.ID)
	if err != nil {
		return nil, nil, err
	}
	a.log.Info("user signed up", zap.String("user_id", u.ID))
	return u, issued, nil
}

// Login checks an email and password. Every failure is the same
// ErrInvalidCredentials: unknown email, federated-only account and wrong
// password are indistinguishable, including in how long they take.
func (a *Auth) Login(ctx context.Context, email, password string) (*User, *IssuedToken, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, nil, ErrMissingCredentials
	}

	u, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}

	hash := ""
	if u != nil {
		hash = u.PasswordHash
	}
	ok, err := a.passwords.Verify(hash, password)
	if err != nil {
		return nil, nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, nil, ErrInvalidCredentials
	}

	issued, err := a.tokens.Issue(u.ID)
	if err != nil {
		return nil, nil, err
	}
	return u, issued, nil
}

// RequestReset emails a reset link when email belongs to an account. It
// returns nil whether or not the account exists, and when the address is
// throttled, so callers can answer every request the same way.
//
// Only the ticket's hash is stored. If delivery fails the ticket is
// withdrawn so no unusable reset stays pending.
func (a *Auth) RequestReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return nil
	}

	if !a.resets.Allow(email) {
		a.log.Info("reset request throttled", zap.String("email", email))
		return nil
	}

	u, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return nil
	}

	ticket, err := randomString(32)
	if err != nil {
		return fmt.Errorf("generate reset ticket: %w", err)
	}
	expiresAt := a.now().Add(a.cfg.ResetTicketTTL)
	if err := a.store.SetResetTicket(ctx, u.ID, a.hashTicket(ticket), expiresAt); err != nil {
		return fmt.Errorf("store reset ticket: %w", err)
	}

	link := a.baseURL() + "/resetPassword?token=" + url.QueryEscape(ticket)
	minutes := int(a.cfg.ResetTicketTTL.Minutes())
	if err := a.sender.SendPasswordReset(ctx, u.Email, u.Name, link, minutes); err != nil {
		a.log.Error("reset email failed", zap.String("user_id", u.ID), zap.Error(err))
		if err := a.store.ClearResetTicket(ctx, u.ID); err != nil {
			a.log.Error("withdraw reset ticket failed", zap.String("user_id", u.ID), zap.Error(err))
		}
		return nil
	}

	a.log.Info("reset ticket sent", zap.String("user_id", u.ID))
	return nil
}

// CompleteReset consumes a reset ticket and sets a new password. A ticket
// works once: the store update is conditional on the ticket still being
// pending, so a second use (or a concurrent one) gets ErrInvalidOrExpiredTicket.
func (a *Auth) CompleteReset(ctx context.Context, ticket, password, confirm string) (*User, *IssuedToken, error) {
	if ticket == "" {
		return nil, nil, ErrInvalidOrExpiredTicket
	}
	now := a.now()
	ticketHash := a.hashTicket(ticket)

	u, err := a.store.GetUserByResetTicket(ctx, ticketHash, now)
	if err != nil {
		return nil, nil, fmt.Errorf("load user by ticket: %w", err)
	}
	if u == nil {
		return nil, nil, ErrInvalidOrExpiredTicket
	}
	if err := ValidatePassword(password, confirm); err != nil {
		return nil, nil, err
	}

	hash, err := a.passwords.Hash(password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}
	err = a.store.ChangePassword(ctx, PasswordChange{
		UserID:             u.ID,
		PasswordHash:       hash,
		PasswordChangedAt:  a.changeInstant(),
		ExpectedTicketHash: ticketHash,
		Now:                now,
	})
	if errors.Is(err, ErrPreconditionFailed) {
		return nil, nil, ErrInvalidOrExpiredTicket
	}
	if err != nil {
		return nil, nil, fmt.Errorf("change password: %w", err)
	}

	issued, err := a.tokens.Issue(u.ID)
	if err != nil {
		return nil, nil, err
	}
	a.log.Info("password reset completed", zap.String("user_id", u.ID))
	return u, issued, nil
}

// UpdateOwnCredential changes the password of an authenticated user after
// re-checking the current one. Tokens issued before the change stop working.
func (a *Auth) UpdateOwnCredential(ctx context.Context, u *User, current, password, confirm string) (*IssuedToken, error) {
	// Reload so the check runs against the stored hash, not a copy from the
	// start of the request.
	fresh, err := a.store.GetUserByID(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if fresh == nil {
		return nil, ErrUserGone
	}

	ok, err := a.passwords.Verify(fresh.PasswordHash, current)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrWrongCurrentPassword
	}
	if err := ValidatePassword(password, confirm); err != nil {
		return nil, err
	}

	hash, err := a.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	err = a.store.ChangePassword(ctx, PasswordChange{
		UserID:            fresh.ID,
		PasswordHash:      hash,
		PasswordChangedAt: a.changeInstant(),
		ExpectedHash:      fresh.PasswordHash,
	})
	if errors.Is(err, ErrPreconditionFailed) {
		// Someone else changed it between our read and write.
		return nil, ErrWrongCurrentPassword
	}
	if err != nil {
		return nil, fmt.Errorf("change password: %w", err)
	}

	a.log.Info("password updated", zap.String("user_id", fresh.ID))
	return a.tokens.Issue(fresh.ID)
}

// UpdateProfile changes name and email of an authenticated user.
func (a *Auth) UpdateProfile(ctx context.Context, u *User, name, email string) (*User, error) {
	updated := *u
	if name = strings.TrimSpace(name); name != "" {
		updated.Name = name
	}
	if email = NormalizeEmail(email); email != "" {
		if err := ValidateEmail(email); err != nil {
			return nil, err
		}
		updated.Email = email
	}

	if err := a.store.UpdateProfile(ctx, &updated); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateEmail):
			return nil, ErrEmailTaken
		case errors.Is(err, ErrPreconditionFailed):
			return nil, ErrUserGone
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return &updated, nil
}

// changeInstant is the timestamp recorded for a password change. It is
// truncated to the millisecond so it compares exactly with token issuance
// times, which carry millisecond precision.
func (a *Auth) changeInstant() time.Time {
	return a.now().Truncate(time.Millisecond)
}

// hashTicket creates an HMAC-SHA256 hash of the ticket keyed by the signing secret.
func (a *Auth) hashTicket(ticket string) string {
	h := hmac.New(sha256.New, a.cfg.JWTSecret)
	h.Write([]byte("reset-ticket:"))
	h.Write([]byte(ticket))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
