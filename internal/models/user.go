package models

import (
	"time"
)

// User represents a cqmail user.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmailAccount is a mailbox a user can send from and sync. The app password is
// stored encrypted and only decrypted for the duration of a request.
type EmailAccount struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id"`
	Email                string    `json:"email"`
	EncryptedAppPassword []byte    `json:"-"`
	IsDefault            bool      `json:"is_default"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID    string
	AccountID string
	Email     string
}

// AccountRequest registers a mailbox address and its app password.
type AccountRequest struct {
	Email       string `json:"email"`
	AppPassword string `json:"app_password"`
	IsDefault   bool   `json:"is_default"`
}
