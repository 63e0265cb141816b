package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-portal-api/internal/models"
)

// UserRepository reads the portal profile fields that purchase requests fall
// back to when the caller omits contact details.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID returns a profile. It reports sql.ErrNoRows unwrapped so callers
// can treat a missing profile as "no fallback".
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.UserProfile, error) {
	const query = `SELECT id, TRIM(email) AS email, TRIM(full_name) AS full_name, role, created_at FROM users WHERE id = $1`
	var user models.UserProfile
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user %s: %w", id, err)
	}
	return &user, nil
}
