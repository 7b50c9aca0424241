package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"clientdesk/internal/types"
)

// UserRepository provides read access to the users table. Billing only needs
// the identity a processor customer is created for.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given
// database connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns the active user with the given ID, or ErrCodeNotFoundUser.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	var (
		u    types.User
		name *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, email, name, created_at
		 FROM users
		 WHERE id = $1 AND deleted_at IS NULL`,
		id,
	).Scan(&u.ID, &u.Email, &name, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	u.Name = derefString(name)
	return &u, nil
}
