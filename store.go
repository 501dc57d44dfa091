package tourguard

import (
	"context"
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	AvatarURL string `json:"photo,omitempty"`

	// Federated linkage; both empty for local-only accounts.
	Provider        string `json:"provider,omitempty"`
	ProviderSubject string `json:"-"`

	PasswordHash      string    `json:"-"`
	PasswordChangedAt time.Time `json:"-"`

	// Set only while a reset is pending.
	ResetTicketHash string    `json:"-"`
	ResetExpiresAt  time.Time `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasPassword reports whether credential login is available for the account.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// ChangedPasswordAfter reports whether the password changed after t.
func (u *User) ChangedPasswordAfter(t time.Time) bool {
	return !u.PasswordChangedAt.IsZero() && t.Before(u.PasswordChangedAt)
}

// ResetPending reports whether an unexpired reset ticket exists at now.
func (u *User) ResetPending(now time.Time) bool {
	return u.ResetTicketHash != "" && now.Before(u.ResetExpiresAt)
}

// PasswordChange is a conditional credential update. The store applies it only
// while the record still matches the precondition fields, and clears any
// pending reset ticket in the same write.
type PasswordChange struct {
	UserID            string
	PasswordHash      string
	PasswordChangedAt time.Time

	// Exactly one precondition is set.
	ExpectedHash       string    // current hash must still equal this
	ExpectedTicketHash string    // pending ticket must still equal this
	Now                time.Time // and must expire after Now
}

// UserStore abstracts DB operations so you can swap implementations.
// Lookups return (nil, nil) when nothing matches.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByProvider(ctx context.Context, provider, subject string) (*User, error)
	// GetUserByResetTicket only matches tickets that expire after now.
	GetUserByResetTicket(ctx context.Context, ticketHash string, now time.Time) (*User, error)

	// CreateUser assigns ID and timestamps. Returns ErrDuplicateEmail or
	// ErrDuplicateLinkage on conflicts.
	CreateUser(ctx context.Context, u *User) error
	// UpdateProfile writes name, email and avatar.
	UpdateProfile(ctx context.Context, u *User) error
	// LinkProvider attaches a federated linkage to an existing user.
	LinkProvider(ctx context.Context, userID, provider, subject string) error

	SetResetTicket(ctx context.Context, userID, ticketHash string, expiresAt time.Time) error
	ClearResetTicket(ctx context.Context, userID string) error
	// ChangePassword returns ErrPreconditionFailed when the precondition no
	// longer holds.
	ChangePassword(ctx context.Context, c PasswordChange) error
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
