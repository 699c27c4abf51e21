package smtp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/cqmail/internal/config"
	"github.com/vdavid/cqmail/internal/testutil"
)

func newTestTransport(srv *testutil.TestSMTPServer) *Transport {
	return &Transport{Address: srv.Address, Security: config.SecurityNone, Timeout: 5 * time.Second}
}

func TestTransportSend(t *testing.T) {
	srv := testutil.NewTestSMTPServer(t)
	transport := newTestTransport(srv)
	creds := Credentials{Username: srv.Username(), Password: srv.Password()}

	t.Run("delivers to every recipient", func(t *testing.T) {
		msg := &Message{
			From:    "Alice <alice@example.com>",
			To:      []string{"Bob <bob@example.com>"},
			CC:      []string{"carol@example.com"},
			BCC:     []string{"dave@example.com"},
			Subject: "Hello",
			Text:    "Hi all",
		}

		receipt, err := transport.Send(context.Background(), creds, msg)
		require.NoError(t, err)
		assert.NotEmpty(t, receipt.MessageID)

		messages := srv.GetMessages()
		require.Len(t, messages, 1)
		assert.Equal(t, "alice@example.com", messages[0].From)
		assert.Equal(t, []string{"bob@example.com", "carol@example.com", "dave@example.com"}, messages[0].To)
		assert.Contains(t, string(messages[0].Data), receipt.MessageID)
		assert.Contains(t, srv.Backend.AuthenticatedUsers(), srv.Username())
	})

	t.Run("fails with wrong password", func(t *testing.T) {
		srv.Backend.ClearMessages()

		_, err := transport.Send(context.Background(), Credentials{Username: srv.Username(), Password: "wrong"}, &Message{
			From: "alice@example.com",
			To:   []string{"bob@example.com"},
			Text: "hi",
		})
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "authenticate"))
		assert.Empty(t, srv.GetMessages())
	})

	t.Run("fails without recipients before dialing", func(t *testing.T) {
		_, err := (&Transport{Address: "127.0.0.1:1", Timeout: time.Second}).Send(context.Background(), creds, &Message{From: "alice@example.com"})
		assert.ErrorIs(t, err, ErrNoRecipients)
	})

	t.Run("fails when server is unreachable", func(t *testing.T) {
		unreachable := &Transport{Address: "127.0.0.1:1", Security: config.SecurityNone, Timeout: time.Second}
		_, err := unreachable.Send(context.Background(), creds, &Message{From: "alice@example.com", To: []string{"bob@example.com"}})
		assert.Error(t, err)
	})
}

func TestTransportSendSTARTTLS(t *testing.T) {
	msg := &Message{From: "alice@example.com", To: []string{"bob@example.com"}, Subject: "Secure", Text: "hi"}

	t.Run("upgrades before authenticating", func(t *testing.T) {
		srv, clientTLS := testutil.NewTestSMTPServerWithSTARTTLS(t)
		transport := &Transport{Address: srv.Address, Security: config.SecuritySTARTTLS, Timeout: 5 * time.Second, TLSConfig: clientTLS}

		_, err := transport.Send(context.Background(), Credentials{Username: srv.Username(), Password: srv.Password()}, msg)
		require.NoError(t, err)

		require.Len(t, srv.GetMessages(), 1)
		assert.Equal(t, []string{srv.Username()}, srv.Backend.AuthenticatedUsers())
	})

	t.Run("fails when the server does not offer STARTTLS", func(t *testing.T) {
		srv := testutil.NewTestSMTPServer(t)
		transport := &Transport{Address: srv.Address, Security: config.SecuritySTARTTLS, Timeout: 5 * time.Second}

		_, err := transport.Send(context.Background(), Credentials{Username: srv.Username(), Password: srv.Password()}, msg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to start TLS")
		assert.Empty(t, srv.GetMessages())
	})
}

func TestNewTransport(t *testing.T) {
	cfg := &config.Config{SMTPHost: "smtp.example.com", SMTPPort: "587", SMTPSecurity: config.SecuritySTARTTLS}
	transport := NewTransport(cfg)
	assert.Equal(t, "smtp.example.com:587", transport.Address)
	assert.Equal(t, config.SecuritySTARTTLS, transport.Security)
	assert.Equal(t, 30*time.Second, transport.Timeout)
}
