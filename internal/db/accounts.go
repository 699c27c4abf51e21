package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/cqmail/internal/models"
)

// ErrEmailAccountNotFound is returned when an email account cannot be found for a user.
var ErrEmailAccountNotFound = errors.New("email account not found")

// GetEmailAccount returns the account with the given id if it belongs to the user.
func GetEmailAccount(ctx context.Context, pool *pgxpool.Pool, userID, accountID string) (*models.EmailAccount, error) {
	if !validUUIDs(userID, accountID) {
		return nil, ErrEmailAccountNotFound
	}

	var account models.EmailAccount
	err := pool.QueryRow(ctx, `
		SELECT
			id::text,
			user_id::text,
			email,
			encrypted_app_password,
			is_default,
			created_at,
			updated_at
		FROM email_accounts
		WHERE id = $1 AND user_id = $2
	`, accountID, userID).Scan(
		&account.ID,
		&account.UserID,
		&account.Email,
		&account.EncryptedAppPassword,
		&account.IsDefault,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEmailAccountNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get email account: %w", err)
	}

	return &account, nil
}

// SaveEmailAccount creates or updates the account identified by user and address.
func SaveEmailAccount(ctx context.Context, pool *pgxpool.Pool, account *models.EmailAccount) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO email_accounts (user_id, email, encrypted_app_password, is_default)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, email) DO UPDATE SET
			encrypted_app_password = EXCLUDED.encrypted_app_password,
			is_default = EXCLUDED.is_default,
			updated_at = now()
		RETURNING id::text, created_at, updated_at
	`,
		account.UserID,
		account.Email,
		account.EncryptedAppPassword,
		account.IsDefault,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to save email account: %w", err)
	}

	return nil
}

// ListEmailAccounts returns the user's accounts, default account first.
func ListEmailAccounts(ctx context.Context, pool *pgxpool.Pool, userID string) ([]*models.EmailAccount, error) {
	if !validUUIDs(userID) {
		return nil, nil
	}

	rows, err := pool.Query(ctx, `
		SELECT
			id::text,
			user_id::text,
			email,
			encrypted_app_password,
			is_default,
			created_at,
			updated_at
		FROM email_accounts
		WHERE user_id = $1
		ORDER BY is_default DESC, created_at, email
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list email accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.EmailAccount
	for rows.Next() {
		var account models.EmailAccount
		if err := rows.Scan(
			&account.ID,
			&account.UserID,
			&account.Email,
			&account.EncryptedAppPassword,
			&account.IsDefault,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan email account: %w", err)
		}
		accounts = append(accounts, &account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list email accounts: %w", err)
	}

	return accounts, nil
}
