// Package memstore provides an in-memory db.MailStore and db.AccountStore for tests
// that don't need Postgres. Like the emails table, it rejects a second record with
// the same message_id.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vdavid/cqmail/internal/db"
	"github.com/vdavid/cqmail/internal/models"
)

// Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	records  []*models.MailRecord
	accounts map[string]*models.EmailAccount
	nextID   int

	// FailWith, when set, is returned by every operation.
	FailWith error
}

// New returns an empty store.
func New() *Store {
	return &Store{accounts: make(map[string]*models.EmailAccount)}
}

var (
	_ db.MailStore    = (*Store)(nil)
	_ db.AccountStore = (*Store)(nil)
)

func (s *Store) Insert(_ context.Context, rec *models.MailRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	for _, existing := range s.records {
		if existing.MessageID == rec.MessageID {
			return db.ErrDuplicateMessage
		}
	}

	s.nextID++
	now := time.Now()
	rec.ID = fmt.Sprintf("rec-%d", s.nextID)
	rec.CreatedAt = now
	rec.UpdatedAt = now

	stored := *rec
	s.records = append(s.records, &stored)
	return nil
}

func (s *Store) FindByMessageIDs(_ context.Context, ids []string) ([]*models.MailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	return s.matching(ids), nil
}

func (s *Store) FindFirstByMessageIDs(_ context.Context, ids []string) (*models.MailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	matches := s.matching(ids)
	if len(matches) == 0 {
		return nil, db.ErrMessageNotFound
	}
	return matches[0], nil
}

func (s *Store) ListForUser(_ context.Context, userID string) ([]*models.MailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	var out []*models.MailRecord
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, copyRecord(rec))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SentAtOrZero().Before(out[j].SentAtOrZero())
	})
	return out, nil
}

func (s *Store) ExistsByMessageIDs(ctx context.Context, ids []string) (bool, error) {
	matches, err := s.FindByMessageIDs(ctx, ids)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

func (s *Store) MarkTrashed(_ context.Context, ids []string, userID, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return 0, s.FailWith
	}
	var n int64
	for _, rec := range s.records {
		if contains(ids, rec.MessageID) && rec.UserID == userID && rec.EmailAccountID == accountID {
			rec.IsDeleted = true
			rec.Folder = models.FolderTrash
			rec.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

// AddAccount registers an account for GetEmailAccount.
func (s *Store) AddAccount(account *models.EmailAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account
}

func (s *Store) GetEmailAccount(_ context.Context, userID, accountID string) (*models.EmailAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return nil, s.FailWith
	}
	account, ok := s.accounts[accountID]
	if !ok || account.UserID != userID {
		return nil, db.ErrEmailAccountNotFound
	}
	return account, nil
}

// Put stores rec as is, bypassing the unique check. Tests use it to seed
// records with hand-picked ids.
func (s *Store) Put(rec *models.MailRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *rec
	s.records = append(s.records, &stored)
}

// All returns copies of every stored record in insertion order.
func (s *Store) All() []*models.MailRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.MailRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, copyRecord(rec))
	}
	return out
}

// Get returns a copy of the record with the given message_id, or nil.
func (s *Store) Get(messageID string) *models.MailRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.MessageID == messageID {
			return copyRecord(rec)
		}
	}
	return nil
}

func (s *Store) matching(ids []string) []*models.MailRecord {
	var out []*models.MailRecord
	for _, rec := range s.records {
		if contains(ids, rec.MessageID) {
			out = append(out, copyRecord(rec))
		}
	}
	return out
}

func copyRecord(rec *models.MailRecord) *models.MailRecord {
	c := *rec
	return &c
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
