package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"pawsit/agent/internal/profile/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a profile repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByUserID returns the profile for userID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
// A stored role other than owner or sitter is returned as RoleUnknown.
func (r *PostgresRepository) GetByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	var p domain.Profile
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, role, display_name, created_at, updated_at FROM profiles WHERE user_id = $1`, userID).
		Scan(&p.UserID, &role, &p.DisplayName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.Role = domain.ParseRole(role)
	return &p, nil
}

// Create persists the profile. Returns ErrProfileExists if the user already has one.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, role, display_name, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		p.UserID, string(p.Role), p.DisplayName, p.CreatedAt, p.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrProfileExists
	}
	return err
}

// UpdateRole changes the stored role. Returns sql.ErrNoRows if the profile does not exist.
func (r *PostgresRepository) UpdateRole(ctx context.Context, userID string, role domain.Role) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET role = $2, updated_at = $3 WHERE user_id = $1`, userID, string(role), time.Now().UTC())
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
