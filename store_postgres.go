package tourguard

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, name, email, role, avatar_url, provider, provider_subject,
        password_hash, password_changed_at, reset_token_hash, reset_expires_at, created_at, updated_at`

// ============================================================================
// Lookups
// ============================================================================

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, NormalizeEmail(email))
}

func (s *PostgresStore) GetUserByProvider(ctx context.Context, provider, subject string) (*User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE provider = $1 AND provider_subject = $2`, provider, subject)
}

func (s *PostgresStore) GetUserByResetTicket(ctx context.Context, ticketHash string, now time.Time) (*User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE reset_token_hash = $1 AND reset_expires_at > $2`, ticketHash, now)
}

func (s *PostgresStore) getUser(ctx context.Context, query string, args ...any) (*User, error) {
	row := s.db.QueryRowContext(ctx, query, args...)

	u := &User{}
	var (
		role                      string
		provider, subject, reset  sql.NullString
		changedAt, resetExpiresAt sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &u.AvatarURL, &provider, &subject,
		&u.PasswordHash, &changedAt, &reset, &resetExpiresAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = Role(role)
	u.Provider = provider.String
	u.ProviderSubject = subject.String
	u.PasswordChangedAt = changedAt.Time
	u.ResetTicketHash = reset.String
	u.ResetExpiresAt = resetExpiresAt.Time
	return u, nil
}

// ============================================================================
// Writes
// ============================================================================

func (s *PostgresStore) CreateUser(ctx context.Context, u *User) error {
	u.ID = uuid.NewString()
	u.Email = NormalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = RoleUser
	}

	err := s.db.QueryRowContext(ctx, `
        INSERT INTO users (id, name, email, role, avatar_url, provider, provider_subject, password_hash, password_changed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING created_at, updated_at
    `, u.ID, u.Name, u.Email, string(u.Role), u.AvatarURL, nullString(u.Provider), nullString(u.ProviderSubject),
		u.PasswordHash, nullTime(u.PasswordChangedAt)).Scan(&u.CreatedAt, &u.UpdatedAt)

	switch {
	case isUniqueViolation(err, "idx_users_email"):
		return ErrDuplicateEmail
	case isUniqueViolation(err, "idx_users_provider_subject"):
		return ErrDuplicateLinkage
	case err != nil:
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, u *User) error {
	u.Email = NormalizeEmail(u.Email)
	err := s.db.QueryRowContext(ctx, `
        UPDATE users
        SET name = $1,
            email = $2,
            avatar_url = $3,
            updated_at = now()
        WHERE id = $4
        RETURNING updated_at
    `, u.Name, u.Email, u.AvatarURL, u.ID).Scan(&u.UpdatedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrPreconditionFailed
	case isUniqueViolation(err, "idx_users_email"):
		return ErrDuplicateEmail
	case err != nil:
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (s *PostgresStore) LinkProvider(ctx context.Context, userID, provider, subject string) error {
	result, err := s.db.ExecContext(ctx, `
        UPDATE users
        SET provider = $1,
            provider_subject = $2,
            updated_at = now()
        WHERE id = $3
    `, provider, subject, userID)
	if isUniqueViolation(err, "idx_users_provider_subject") {
		return ErrDuplicateLinkage
	}
	return expectOneRow(result, err)
}

func (s *PostgresStore) SetResetTicket(ctx context.Context, userID, ticketHash string, expiresAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
        UPDATE users
        SET reset_token_hash = $1,
            reset_expires_at = $2
        WHERE id = $3
    `, ticketHash, expiresAt, userID)
	return expectOneRow(result, err)
}

func (s *PostgresStore) ClearResetTicket(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE users
        SET reset_token_hash = NULL,
            reset_expires_at = NULL
        WHERE id = $1
    `, userID)
	return err
}

// ChangePassword is a single conditional UPDATE, so the precondition check and
// the write cannot be interleaved by a concurrent request.
func (s *PostgresStore) ChangePassword(ctx context.Context, c PasswordChange) error {
	var (
		result sql.Result
		err    error
	)
	if c.ExpectedTicketHash != "" {
		result, err = s.db.ExecContext(ctx, `
            UPDATE users
            SET password_hash = $1,
                password_changed_at = $2,
                reset_token_hash = NULL,
                reset_expires_at = NULL,
                updated_at = now()
            WHERE id = $3 AND reset_token_hash = $4 AND reset_expires_at > $5
        `, c.PasswordHash, c.PasswordChangedAt, c.UserID, c.ExpectedTicketHash, c.Now)
	} else {
		result, err = s.db.ExecContext(ctx, `
            UPDATE users
            SET password_hash = $1,
                password_changed_at = $2,
                reset_token_hash = NULL,
                reset_expires_at = NULL,
                updated_at = now()
            WHERE id = $3 AND password_hash = $4
        `, c.PasswordHash, c.PasswordChangedAt, c.UserID, c.ExpectedHash)
	}
	return expectOneRow(result, err)
}

// ============================================================================
// Utility Functions
// ============================================================================

func expectOneRow(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrPreconditionFailed
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// hashToken hashes an opaque bearer value so we don't store it in plaintext.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// isUniqueViolation checks if the error is a Postgres unique constraint violation
// for the specified index name.
func isUniqueViolation(err error, indexName string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == indexName
}

// gooseUp is a seam for testing Migrate without a database.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// Migrate applies the embedded migrations for the users schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUp(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
