// Package mailbox bridges the live IMAP mailbox, SMTP submission and the message store.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/vdavid/cqmail/internal/config"
	"github.com/vdavid/cqmail/internal/db"
	"github.com/vdavid/cqmail/internal/imap"
	"github.com/vdavid/cqmail/internal/models"
	"github.com/vdavid/cqmail/internal/smtp"
	"github.com/vdavid/cqmail/internal/threading"
)

var (
	// ErrMessageNotFound is returned when the target message exists in neither the
	// live mailbox nor the store.
	ErrMessageNotFound = errors.New("message not found")

	// ErrOperationFailed hides transport and store failures from callers.
	ErrOperationFailed = errors.New("mail operation failed")

	// ErrInvalidRequest is returned for requests that cannot be carried out as given.
	ErrInvalidRequest = errors.New("invalid request")
)

// Event types published to the user's websocket connections.
const (
	EventSynced  = "mail.synced"
	EventSent    = "mail.sent"
	EventTrashed = "mail.trashed"
)

// Sender submits composed messages.
type Sender interface {
	Send(ctx context.Context, creds smtp.Credentials, msg *smtp.Message) (*smtp.Receipt, error)
}

// CredentialOpener decrypts stored app passwords.
type CredentialOpener interface {
	Open(sealed []byte, accountEmail string) (string, error)
}

// Notifier publishes events to a user's live connections.
type Notifier interface {
	Publish(userID, eventType string, data any)
}

// Options holds the mailbox settings from config.
type Options struct {
	InboxBatchSize int
	SentFolders    []string
	TrashFolders   []string
}

// OptionsFromConfig extracts the mailbox settings from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		InboxBatchSize: cfg.InboxBatchSize,
		SentFolders:    cfg.SentFolders,
		TrashFolders:   cfg.TrashFolders,
	}
}

// Service implements the mailbox operations. Every operation opens its own IMAP
// session and logs it out before returning.
type Service struct {
	imap     imap.Connector
	sender   Sender
	store    db.MailStore
	accounts db.AccountStore
	cipher   CredentialOpener
	notifier Notifier
	chains   *threading.ChainBuilder
	opts     Options
	now      func() time.Time
}

// NewService creates a Service. notifier may be nil.
func NewService(
	connector imap.Connector,
	sender Sender,
	store db.MailStore,
	accounts db.AccountStore,
	cipher CredentialOpener,
	notifier Notifier,
	opts Options,
) *Service {
	if opts.InboxBatchSize <= 0 {
		opts.InboxBatchSize = 20
	}
	if len(opts.SentFolders) == 0 {
		opts.SentFolders = []string{"Sent"}
	}
	if len(opts.TrashFolders) == 0 {
		opts.TrashFolders = []string{"Trash"}
	}
	return &Service{
		imap:     connector,
		sender:   sender,
		store:    store,
		accounts: accounts,
		cipher:   cipher,
		notifier: notifier,
		chains:   threading.NewChainBuilder(store),
		opts:     opts,
		now:      time.Now,
	}
}

// account loads the caller's email account and its decrypted app password.
func (s *Service) account(ctx context.Context, id models.Identity) (*models.EmailAccount, string, error) {
	account, err := s.accounts.GetEmailAccount(ctx, id.UserID, id.AccountID)
	if errors.Is(err, db.ErrEmailAccountNotFound) {
		return nil, "", fmt.Errorf("%w: no email account %s for user %s", ErrInvalidRequest, id.AccountID, id.UserID)
	}
	if err != nil {
		return nil, "", s.failed("load account", id.UserID, err)
	}

	password, err := s.cipher.Open(account.EncryptedAppPassword, account.Email)
	if err != nil {
		return nil, "", s.failed("decrypt app password", id.UserID, err)
	}

	return account, password, nil
}

// connect opens an IMAP session for the caller. The caller must Close it.
func (s *Service) connect(ctx context.Context, id models.Identity) (*models.EmailAccount, string, imap.Session, error) {
	account, password, err := s.account(ctx, id)
	if err != nil {
		return nil, "", nil, err
	}

	session, err := s.imap.Connect(ctx, account.Email, password)
	if err != nil {
		return nil, "", nil, s.failed("connect to IMAP", id.UserID, err)
	}

	return account, password, session, nil
}

// failed logs err and returns the generic error callers see.
func (s *Service) failed(op, userID string, err error) error {
	log.Printf("MailboxService: %s failed for user %s: %v", op, userID, err)
	return fmt.Errorf("%w: %s", ErrOperationFailed, op)
}

func (s *Service) publish(userID, eventType string, data any) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(userID, eventType, data)
}
