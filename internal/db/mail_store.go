package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/cqmail/internal/models"
)

// MailStore is the message store used by threading and the mailbox service.
// This allows both to be tested with an in-memory implementation.
type MailStore interface {
	Insert(ctx context.Context, rec *models.MailRecord) error
	FindByMessageIDs(ctx context.Context, ids []string) ([]*models.MailRecord, error)
	FindFirstByMessageIDs(ctx context.Context, ids []string) (*models.MailRecord, error)
	ListForUser(ctx context.Context, userID string) ([]*models.MailRecord, error)
	ExistsByMessageIDs(ctx context.Context, ids []string) (bool, error)
	MarkTrashed(ctx context.Context, ids []string, userID, accountID string) (int64, error)
}

// AccountStore loads the email account a request acts on.
type AccountStore interface {
	GetEmailAccount(ctx context.Context, userID, accountID string) (*models.EmailAccount, error)
}

// AccountManager registers and lists the email accounts of a user.
type AccountManager interface {
	EnsureUser(ctx context.Context, userID, email string) (*models.User, error)
	SaveEmailAccount(ctx context.Context, account *models.EmailAccount) error
	ListEmailAccounts(ctx context.Context, userID string) ([]*models.EmailAccount, error)
}

// pgStore implements MailStore, AccountStore and AccountManager using a database pool.
type pgStore struct {
	pool *pgxpool.Pool
}

// NewMailStore creates a MailStore that uses the given database pool.
func NewMailStore(pool *pgxpool.Pool) MailStore {
	return &pgStore{pool: pool}
}

// NewAccountStore creates an AccountStore that uses the given database pool.
func NewAccountStore(pool *pgxpool.Pool) AccountStore {
	return &pgStore{pool: pool}
}

// NewAccountManager creates an AccountManager that uses the given database pool.
func NewAccountManager(pool *pgxpool.Pool) AccountManager {
	return &pgStore{pool: pool}
}

func (s *pgStore) Insert(ctx context.Context, rec *models.MailRecord) error {
	return InsertMailRecord(ctx, s.pool, rec)
}

func (s *pgStore) FindByMessageIDs(ctx context.Context, ids []string) ([]*models.MailRecord, error) {
	return FindMailRecordsByMessageIDs(ctx, s.pool, ids)
}

func (s *pgStore) FindFirstByMessageIDs(ctx context.Context, ids []string) (*models.MailRecord, error) {
	return FindFirstMailRecordByMessageIDs(ctx, s.pool, ids)
}

func (s *pgStore) ListForUser(ctx context.Context, userID string) ([]*models.MailRecord, error) {
	return ListMailRecordsForUser(ctx, s.pool, userID)
}

func (s *pgStore) ExistsByMessageIDs(ctx context.Context, ids []string) (bool, error) {
	return MailRecordExists(ctx, s.pool, ids)
}

func (s *pgStore) MarkTrashed(ctx context.Context, ids []string, userID, accountID string) (int64, error) {
	return MarkMailRecordsTrashed(ctx, s.pool, ids, userID, accountID)
}

func (s *pgStore) GetEmailAccount(ctx context.Context, userID, accountID string) (*models.EmailAccount, error) {
	return GetEmailAccount(ctx, s.pool, userID, accountID)
}

func (s *pgStore) EnsureUser(ctx context.Context, userID, email string) (*models.User, error) {
	return EnsureUser(ctx, s.pool, userID, email)
}

func (s *pgStore) SaveEmailAccount(ctx context.Context, account *models.EmailAccount) error {
	return SaveEmailAccount(ctx, s.pool, account)
}

func (s *pgStore) ListEmailAccounts(ctx context.Context, userID string) ([]*models.EmailAccount, error) {
	return ListEmailAccounts(ctx, s.pool, userID)
}
