package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/cqmail/internal/models"
)

var (
	// ErrInvalidUserID is returned when a user id is not a UUID.
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrUserEmailTaken is returned when the address already belongs to another user.
	ErrUserEmailTaken = errors.New("email belongs to another user")
)

// GetOrCreateUser returns the user registered under email, creating it if needed.
func GetOrCreateUser(ctx context.Context, pool *pgxpool.Pool, email string) (*models.User, error) {
	var user models.User
	err := pool.QueryRow(ctx, `
		INSERT INTO users (email)
		VALUES ($1)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id::text, email, created_at, updated_at
	`, email).Scan(&user.ID, &user.Email, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to get or create user: %w", err)
	}

	return &user, nil
}

// EnsureUser makes sure a user row exists for the token subject userID.
// The stored email follows the latest token.
func EnsureUser(ctx context.Context, pool *pgxpool.Pool, userID, email string) (*models.User, error) {
	if !validUUIDs(userID) {
		return nil, ErrInvalidUserID
	}

	var user models.User
	err := pool.QueryRow(ctx, `
		INSERT INTO users (id, email)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			updated_at = CASE WHEN users.email = EXCLUDED.email THEN users.updated_at ELSE now() END
		RETURNING id::text, email, created_at, updated_at
	`, userID, email).Scan(&user.ID, &user.Email, &user.CreatedAt, &user.UpdatedAt)

	if isUniqueViolation(err) {
		return nil, ErrUserEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}

	return &user, nil
}
