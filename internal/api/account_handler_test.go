package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/cqmail/internal/db"
	"github.com/vdavid/cqmail/internal/models"
	"github.com/vdavid/cqmail/internal/testutil"
)

type mockAccountManager struct {
	mock.Mock
}

func (m *mockAccountManager) EnsureUser(ctx context.Context, userID, email string) (*models.User, error) {
	args := m.Called(ctx, userID, email)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *mockAccountManager) SaveEmailAccount(ctx context.Context, account *models.EmailAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountManager) ListEmailAccounts(ctx context.Context, userID string) ([]*models.EmailAccount, error) {
	args := m.Called(ctx, userID)
	accounts, _ := args.Get(0).([]*models.EmailAccount)
	return accounts, args.Error(1)
}

func serveAccounts(handler *AccountHandler, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/accounts", handler.Create)
	mux.HandleFunc("GET /api/v1/accounts", handler.List)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestAccountHandler_Create(t *testing.T) {
	cipher := testutil.GetTestCipher(t)

	t.Run("seals the app password and saves the account", func(t *testing.T) {
		accounts := new(mockAccountManager)
		accounts.On("EnsureUser", mock.Anything, testIdentity.UserID, testIdentity.Email).
			Return(&models.User{ID: testIdentity.UserID, Email: testIdentity.Email}, nil)

		var saved *models.EmailAccount
		accounts.On("SaveEmailAccount", mock.Anything, mock.AnythingOfType("*models.EmailAccount")).
			Run(func(args mock.Arguments) {
				saved = args.Get(1).(*models.EmailAccount)
				saved.ID = "account-2"
			}).
			Return(nil)

		handler := NewAccountHandler(accounts, cipher)
		req := newAuthedRequest(http.MethodPost, "/api/v1/accounts",
			`{"email":"Work <work@example.com>","app_password":"secret","is_default":true}`)
		rr := serveAccounts(handler, req)

		require.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		accounts.AssertExpectations(t)

		require.NotNil(t, saved)
		assert.Equal(t, testIdentity.UserID, saved.UserID)
		assert.Equal(t, "work@example.com", saved.Email)
		assert.True(t, saved.IsDefault)

		password, err := cipher.Open(saved.EncryptedAppPassword, "work@example.com")
		require.NoError(t, err)
		assert.Equal(t, "secret", password)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "account-2", body["id"])
		assert.NotContains(t, rr.Body.String(), "secret")
	})

	t.Run("rejects an invalid address", func(t *testing.T) {
		accounts := new(mockAccountManager)
		handler := NewAccountHandler(accounts, cipher)

		req := newAuthedRequest(http.MethodPost, "/api/v1/accounts", `{"email":"not an address","app_password":"secret"}`)
		rr := serveAccounts(handler, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		accounts.AssertNotCalled(t, "SaveEmailAccount", mock.Anything, mock.Anything)
	})

	t.Run("rejects a missing app password", func(t *testing.T) {
		accounts := new(mockAccountManager)
		handler := NewAccountHandler(accounts, cipher)

		req := newAuthedRequest(http.MethodPost, "/api/v1/accounts", `{"email":"work@example.com"}`)
		rr := serveAccounts(handler, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		accounts.AssertNotCalled(t, "EnsureUser", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("address owned by another user is a conflict", func(t *testing.T) {
		accounts := new(mockAccountManager)
		accounts.On("EnsureUser", mock.Anything, testIdentity.UserID, testIdentity.Email).
			Return(nil, db.ErrUserEmailTaken)
		handler := NewAccountHandler(accounts, cipher)

		req := newAuthedRequest(http.MethodPost, "/api/v1/accounts", `{"email":"work@example.com","app_password":"secret"}`)
		rr := serveAccounts(handler, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
		accounts.AssertNotCalled(t, "SaveEmailAccount", mock.Anything, mock.Anything)
	})

	t.Run("store failure is a 500", func(t *testing.T) {
		accounts := new(mockAccountManager)
		accounts.On("EnsureUser", mock.Anything, mock.Anything, mock.Anything).Return(&models.User{}, nil)
		accounts.On("SaveEmailAccount", mock.Anything, mock.Anything).Return(errors.New("db down"))
		handler := NewAccountHandler(accounts, cipher)

		req := newAuthedRequest(http.MethodPost, "/api/v1/accounts", `{"email":"work@example.com","app_password":"secret"}`)
		rr := serveAccounts(handler, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "db down")
	})

	t.Run("requires an identity", func(t *testing.T) {
		handler := NewAccountHandler(new(mockAccountManager), cipher)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts", nil)
		rr := serveAccounts(handler, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestAccountHandler_List(t *testing.T) {
	cipher := testutil.GetTestCipher(t)

	t.Run("lists the caller's accounts without passwords", func(t *testing.T) {
		accounts := new(mockAccountManager)
		accounts.On("ListEmailAccounts", mock.Anything, testIdentity.UserID).Return([]*models.EmailAccount{
			{ID: "account-1", UserID: testIdentity.UserID, Email: "alice@example.com", EncryptedAppPassword: []byte("sealed"), IsDefault: true},
		}, nil)
		handler := NewAccountHandler(accounts, cipher)

		rr := serveAccounts(handler, newAuthedRequest(http.MethodGet, "/api/v1/accounts", ""))

		require.Equal(t, http.StatusOK, rr.Code)
		var body []map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Len(t, body, 1)
		assert.Equal(t, "alice@example.com", body[0]["email"])
		assert.NotContains(t, body[0], "encrypted_app_password")
	})

	t.Run("no accounts is an empty list", func(t *testing.T) {
		accounts := new(mockAccountManager)
		accounts.On("ListEmailAccounts", mock.Anything, testIdentity.UserID).Return(nil, nil)
		handler := NewAccountHandler(accounts, cipher)

		rr := serveAccounts(handler, newAuthedRequest(http.MethodGet, "/api/v1/accounts", ""))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "[]\n", rr.Body.String())
	})
}
