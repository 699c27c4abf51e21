package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/vdavid/cqmail/internal/config"
)

// Credentials authenticate a submission.
type Credentials struct {
	Username string
	Password string
}

// Receipt describes a message the server accepted.
type Receipt struct {
	MessageID string
	Date      time.Time
	Raw       []byte
}

// Transport submits messages to one SMTP server.
type Transport struct {
	Address  string
	Security string
	Timeout  time.Duration

	// TLSConfig overrides the default TLS settings, mainly for tests.
	TLSConfig *tls.Config
}

// NewTransport creates a Transport from the server settings in cfg.
func NewTransport(cfg *config.Config) *Transport {
	return &Transport{
		Address:  cfg.SMTPAddress(),
		Security: cfg.SMTPSecurity,
		Timeout:  30 * time.Second,
	}
}

// Send composes msg and submits it. PLAIN authentication is used when the server
// advertises AUTH. Cancelling ctx aborts the submission by closing the connection.
func (t *Transport) Send(ctx context.Context, creds Credentials, msg *Message) (*Receipt, error) {
	composed, err := Compose(msg, time.Now())
	if err != nil {
		return nil, err
	}

	c, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	if ok, _ := c.Extension("AUTH"); ok && creds.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", creds.Username, creds.Password)); err != nil {
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := c.Mail(composed.From, nil); err != nil {
		return nil, fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range composed.Recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return nil, fmt.Errorf("failed to add recipient %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return nil, fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write(composed.Raw); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to submit message: %w", err)
	}

	// The message is already accepted; a failed QUIT doesn't change that.
	_ = c.Quit()

	return &Receipt{MessageID: composed.MessageID, Date: composed.Date, Raw: composed.Raw}, nil
}

func (t *Transport) dial(ctx context.Context) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: t.Timeout}

	host, _, err := net.SplitHostPort(t.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP address %s: %w", t.Address, err)
	}
	tlsConfig := t.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: host}
	}

	var conn net.Conn
	if t.Security == config.SecurityTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", t.Address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", t.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial SMTP server: %w", err)
	}

	var c *smtp.Client
	if t.Security == config.SecuritySTARTTLS {
		// NewClientStartTLS closes conn itself when the upgrade fails.
		c, err = smtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	} else {
		c = smtp.NewClient(conn)
	}
	c.CommandTimeout = t.Timeout
	c.SubmissionTimeout = t.Timeout

	return c, nil
}
