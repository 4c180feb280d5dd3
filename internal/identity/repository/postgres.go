package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"pawsit/agent/internal/identity/domain"
)

// PostgresAccountRepository stores accounts in the accounts table.
type PostgresAccountRepository struct {
	db *sql.DB
}

// NewPostgresAccountRepository returns an account repository that uses the given db for persistence.
func NewPostgresAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

const accountColumns = `id, email, password_hash, admin, status, created_at, updated_at`

// GetByID returns the account for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetByEmail returns the account for email, or nil if not found.
func (r *PostgresAccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

// List returns accounts ordered by creation time.
func (r *PostgresAccountRepository) List(ctx context.Context, limit, offset int32) ([]*domain.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Create persists the account. The account must have ID set.
// Returns ErrDuplicateEmail when the email is already taken.
func (r *PostgresAccountRepository) Create(ctx context.Context, a *domain.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.Email, a.PasswordHash, a.Admin, string(a.Status), a.CreatedAt, a.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

// SetAdmin sets or clears the administrative flag.
func (r *PostgresAccountRepository) SetAdmin(ctx context.Context, id string, admin bool) error {
	return execOne(ctx, r.db, `UPDATE accounts SET admin = $2, updated_at = $3 WHERE id = $1`, id, admin, time.Now().UTC())
}

// UpdatePasswordHash replaces the stored password hash.
func (r *PostgresAccountRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	return execOne(ctx, r.db, `UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, passwordHash, time.Now().UTC())
}

// PostgresSessionRepository stores refresh sessions in the refresh_sessions table.
type PostgresSessionRepository struct {
	db *sql.DB
}

// NewPostgresSessionRepository returns a refresh session repository that uses the given db for persistence.
func NewPostgresSessionRepository(db *sql.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

// GetByID returns the session for id, or nil if not found.
func (r *PostgresSessionRepository) GetByID(ctx context.Context, id string) (*domain.RefreshSession, error) {
	var s domain.RefreshSession
	var revokedAt, lastSeenAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, refresh_jti, refresh_token_hash, expires_at, revoked_at, last_seen_at, created_at
		 FROM refresh_sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.AccountID, &s.RefreshJTI, &s.RefreshTokenHash, &s.ExpiresAt, &revokedAt, &lastSeenAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.RevokedAt = nullTimeToPtr(revokedAt)
	s.LastSeenAt = nullTimeToPtr(lastSeenAt)
	return &s, nil
}

// Create persists the session. The session must have ID set.
func (r *PostgresSessionRepository) Create(ctx context.Context, s *domain.RefreshSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_sessions (id, account_id, refresh_jti, refresh_token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.AccountID, s.RefreshJTI, s.RefreshTokenHash, s.ExpiresAt, s.CreatedAt)
	return err
}

// Revoke marks the session revoked. Revoking an already revoked session is a no-op.
func (r *PostgresSessionRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, time.Now().UTC())
	return err
}

// RevokeAllByAccount revokes every live session of the account.
func (r *PostgresSessionRepository) RevokeAllByAccount(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_sessions SET revoked_at = $2 WHERE account_id = $1 AND revoked_at IS NULL`, accountID, time.Now().UTC())
	return err
}

// UpdateRefreshToken records the jti and hash of the newly rotated refresh token.
func (r *PostgresSessionRepository) UpdateRefreshToken(ctx context.Context, id, jti, refreshTokenHash string) error {
	return execOne(ctx, r.db,
		`UPDATE refresh_sessions SET refresh_jti = $2, refresh_token_hash = $3 WHERE id = $1`, id, jti, refreshTokenHash)
}

// UpdateLastSeen sets last_seen_at.
func (r *PostgresSessionRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_sessions SET last_seen_at = $2 WHERE id = $1`, id, at)
	return err
}

// PostgresActionCodeRepository stores one-time codes in the action_codes table.
type PostgresActionCodeRepository struct {
	db *sql.DB
}

// NewPostgresActionCodeRepository returns an action code repository that uses the given db for persistence.
func NewPostgresActionCodeRepository(db *sql.DB) *PostgresActionCodeRepository {
	return &PostgresActionCodeRepository{db: db}
}

// GetByHash returns the code with the given purpose and hash, or nil if not found.
func (r *PostgresActionCodeRepository) GetByHash(ctx context.Context, purpose domain.ActionPurpose, codeHash string) (*domain.ActionCode, error) {
	var c domain.ActionCode
	var purposeStr string
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, purpose, code_hash, expires_at, used_at, created_at
		 FROM action_codes WHERE purpose = $1 AND code_hash = $2`, string(purpose), codeHash).
		Scan(&c.ID, &c.AccountID, &purposeStr, &c.CodeHash, &c.ExpiresAt, &usedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.Purpose = domain.ActionPurpose(purposeStr)
	c.UsedAt = nullTimeToPtr(usedAt)
	return &c, nil
}

// Create persists the code. The code must have ID set.
func (r *PostgresActionCodeRepository) Create(ctx context.Context, c *domain.ActionCode) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO action_codes (id, account_id, purpose, code_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.AccountID, string(c.Purpose), c.CodeHash, c.ExpiresAt, c.CreatedAt)
	return err
}

// MarkUsed consumes the code. It reports false if the code was already used.
func (r *PostgresActionCodeRepository) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE action_codes SET used_at = $2 WHERE id = $1 AND used_at IS NULL`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	var status string
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Admin, &status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.Status = domain.AccountStatus(status)
	return &a, nil
}

// execOne runs an UPDATE and returns sql.ErrNoRows when it matched nothing.
func execOne(ctx context.Context, db *sql.DB, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func nullTimeToPtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
