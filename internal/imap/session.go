package imap

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/vdavid/cqmail/internal/config"
)

// Dialer connects to a single IMAP server.
type Dialer struct {
	Address        string
	UseTLS         bool
	ConnectTimeout time.Duration
	LogoutTimeout  time.Duration
}

// NewDialer creates a Dialer from the server settings in cfg.
func NewDialer(cfg *config.Config) *Dialer {
	return &Dialer{
		Address:        cfg.IMAPAddress(),
		UseTLS:         cfg.IMAPSecurity == config.SecurityTLS,
		ConnectTimeout: cfg.IMAPConnectTimeout,
		LogoutTimeout:  cfg.IMAPLogoutTimeout,
	}
}

var _ Connector = (*Dialer)(nil)

type dialResult struct {
	client *client.Client
	err    error
}

// Connect dials the server and logs in. If the timeout or ctx fires first, the
// pending connection is dropped in the background as soon as it completes.
func (d *Dialer) Connect(ctx context.Context, username, password string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("IMAP connect to %s: %w", d.Address, err)
	}

	results := make(chan dialResult, 1)

	go func() {
		c, err := d.dial()
		if err == nil {
			if loginErr := c.Login(username, password); loginErr != nil {
				_ = c.Terminate()
				c, err = nil, fmt.Errorf("failed to authenticate: %w", loginErr)
			}
		}
		results <- dialResult{client: c, err: err}
	}()

	timer := time.NewTimer(d.ConnectTimeout)
	defer timer.Stop()

	select {
	case r := <-results:
		if r.err != nil {
			return nil, r.err
		}
		r.client.Timeout = d.ConnectTimeout
		return &session{client: r.client, logoutTimeout: d.LogoutTimeout}, nil
	case <-timer.C:
		go dropLate(results)
		return nil, fmt.Errorf("IMAP connect to %s timed out after %s", d.Address, d.ConnectTimeout)
	case <-ctx.Done():
		go dropLate(results)
		return nil, fmt.Errorf("IMAP connect to %s: %w", d.Address, ctx.Err())
	}
}

func (d *Dialer) dial() (*client.Client, error) {
	dialer := &net.Dialer{
		Timeout: d.ConnectTimeout,
	}

	if d.UseTLS {
		c, err := client.DialWithDialerTLS(dialer, d.Address, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to dial with TLS: %w", err)
		}
		return c, nil
	}

	c, err := client.DialWithDialer(dialer, d.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	return c, nil
}

func dropLate(results <-chan dialResult) {
	if r := <-results; r.client != nil {
		_ = r.client.Terminate()
	}
}

// session wraps a go-imap client. The mailbox lock serializes use of the selected
// folder; commands that don't depend on the selection don't take it.
type session struct {
	client        *client.Client
	mailboxLock   sync.Mutex
	logoutTimeout time.Duration
	closeOnce     sync.Once
}

func (s *session) ListFolders() ([]string, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- s.client.List("", "*", mailboxes)
	}()

	var folders []string
	for m := range mailboxes {
		folders = append(folders, m.Name)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	return folders, nil
}

func (s *session) Lock(folder string) (Mailbox, error) {
	s.mailboxLock.Lock()

	if _, err := s.client.Select(folder, false); err != nil {
		s.mailboxLock.Unlock()
		return nil, fmt.Errorf("failed to select folder %s: %w", folder, err)
	}

	return &mailbox{client: s.client, name: folder, unlock: s.mailboxLock.Unlock}, nil
}

func (s *session) Append(folder string, flags []string, date time.Time, raw []byte) error {
	if err := s.client.Append(folder, flags, date, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to append to %s: %w", folder, err)
	}
	return nil
}

func (s *session) Close() {
	s.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() {
			done <- s.client.Logout()
		}()

		timer := time.NewTimer(s.logoutTimeout)
		defer timer.Stop()

		select {
		case err := <-done:
			if err != nil {
				log.Printf("Warning: IMAP logout failed: %v", err)
			}
		case <-timer.C:
			log.Printf("Warning: IMAP logout timed out after %s, dropping connection", s.logoutTimeout)
			if err := s.client.Terminate(); err != nil {
				log.Printf("Warning: failed to terminate IMAP connection: %v", err)
			}
		}
	})
}

// mailbox is a folder selected under the session's mailbox lock.
type mailbox struct {
	client   *client.Client
	name     string
	unlock   func()
	released sync.Once
}

func (m *mailbox) Name() string {
	return m.name
}

func (m *mailbox) Release() {
	m.released.Do(m.unlock)
}
