package api

import (
	"errors"
	"log"
	"net/http"
	"net/mail"
	"strings"

	"github.com/vdavid/cqmail/internal/db"
	"github.com/vdavid/cqmail/internal/models"
)

// CredentialSealer encrypts an app password for the account it belongs to.
// Implemented by crypto.CredentialCipher.
type CredentialSealer interface {
	Seal(password, accountEmail string) ([]byte, error)
}

// AccountHandler handles the /api/v1/accounts endpoints.
type AccountHandler struct {
	accounts db.AccountManager
	sealer   CredentialSealer
}

// NewAccountHandler creates a new AccountHandler instance.
func NewAccountHandler(accounts db.AccountManager, sealer CredentialSealer) *AccountHandler {
	return &AccountHandler{accounts: accounts, sealer: sealer}
}

// Create handles POST /api/v1/accounts. Posting an address that is already
// registered replaces its app password and default flag.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r, "AccountHandler")
	if !ok {
		return
	}

	var req models.AccountRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	address, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		http.Error(w, "A valid email address is required", http.StatusBadRequest)
		return
	}
	if req.AppPassword == "" {
		http.Error(w, "App password is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	if _, err := h.accounts.EnsureUser(ctx, identity.UserID, identity.Email); err != nil {
		switch {
		case errors.Is(err, db.ErrUserEmailTaken):
			http.Error(w, "Email belongs to another user", http.StatusConflict)
		case errors.Is(err, db.ErrInvalidUserID):
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		default:
			log.Printf("AccountHandler: Failed to ensure user: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	sealed, err := h.sealer.Seal(req.AppPassword, address.Address)
	if err != nil {
		log.Printf("AccountHandler: Failed to seal app password: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	account := &models.EmailAccount{
		UserID:               identity.UserID,
		Email:                address.Address,
		EncryptedAppPassword: sealed,
		IsDefault:            req.IsDefault,
	}
	if err := h.accounts.SaveEmailAccount(ctx, account); err != nil {
		log.Printf("AccountHandler: Failed to save account: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	log.Printf("AccountHandler: Saved account %s for user %s", account.ID, identity.UserID)
	writeJSON(w, http.StatusCreated, account)
}

// List handles GET /api/v1/accounts.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r, "AccountHandler")
	if !ok {
		return
	}

	accounts, err := h.accounts.ListEmailAccounts(r.Context(), identity.UserID)
	if err != nil {
		log.Printf("AccountHandler: Failed to list accounts: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []*models.EmailAccount{}
	}

	WriteJSONResponse(w, accounts)
}
