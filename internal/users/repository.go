package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/greengold/nexus/internal/auth"
	"github.com/greengold/nexus/internal/platform/db"
	"github.com/greengold/nexus/internal/shared"
)

// PGRepository lists and updates staff accounts.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

// ListUsers returns all accounts ordered by email.
func (r *PGRepository) ListUsers(ctx context.Context) ([]auth.User, error) {
	rows, err := r.db.Query(ctx, `SELECT id, email, name, role, is_active, created_at, updated_at FROM users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (auth.User, error) {
		var (
			u    auth.User
			role string
		)
		err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
		u.Role = shared.Role(role)
		return u, err
	})
}

// UpdateAccess sets the role and active flag of id.
func (r *PGRepository) UpdateAccess(ctx context.Context, id uuid.UUID, role shared.Role, active bool, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET role = $2, is_active = $3, updated_at = $4 WHERE id = $1`, id, string(role), active, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// CountActiveAdmins counts enabled admin accounts.
func (r *PGRepository) CountActiveAdmins(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = $1 AND is_active`, string(shared.RoleAdmin)).Scan(&n)
	return n, err
}
