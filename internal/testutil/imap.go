package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
)

// TestIMAPServer represents a test IMAP server instance.
type TestIMAPServer struct {
	Server   *server.Server
	Address  string
	Backend  *memory.Backend
	cleanup  func()
	username string
	password string
}

// NewTestIMAPServer creates a new test IMAP server with an in-memory backend.
// The memory backend creates a default user with username "username" and password "password".
// Its sample message is removed, so INBOX starts empty. Only INBOX exists.
// Mailboxes support MOVE.
func NewTestIMAPServer(t *testing.T) *TestIMAPServer {
	t.Helper()
	be := memory.New()
	return newTestIMAPServer(t, be, moveBackend{be})
}

// NewTestIMAPServerWithoutMove is like NewTestIMAPServer, but the server
// answers MOVE with an error even though it advertises the capability.
func NewTestIMAPServerWithoutMove(t *testing.T) *TestIMAPServer {
	t.Helper()
	be := memory.New()
	return newTestIMAPServer(t, be, be)
}

func newTestIMAPServer(t *testing.T, be *memory.Backend, served backend.Backend) *TestIMAPServer {
	t.Helper()

	s := server.New(served)
	s.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	go func() {
		// Serve returns the accept error once the listener is closed.
		if err := s.Serve(listener); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("IMAP test server: %v", err)
		}
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	srv := &TestIMAPServer{
		Server:  s,
		Address: listener.Addr().String(),
		Backend: be,
		cleanup: func() {
			_ = s.Close()
		},
		username: "username",
		password: "password",
	}
	t.Cleanup(srv.Close)

	srv.EmptyFolder(t, "INBOX")
	return srv
}

// moveBackend serves the memory backend with MOVE implemented as
// copy, flag \Deleted and expunge.
type moveBackend struct {
	*memory.Backend
}

func (b moveBackend) Login(conn *imap.ConnInfo, username, password string) (backend.User, error) {
	user, err := b.Backend.Login(conn, username, password)
	if err != nil {
		return nil, err
	}
	return moveUser{user}, nil
}

type moveUser struct {
	backend.User
}

func (u moveUser) ListMailboxes(subscribed bool) ([]backend.Mailbox, error) {
	mailboxes, err := u.User.ListMailboxes(subscribed)
	if err != nil {
		return nil, err
	}
	wrapped := make([]backend.Mailbox, len(mailboxes))
	for i, mbox := range mailboxes {
		wrapped[i] = moveMailbox{mbox}
	}
	return wrapped, nil
}

func (u moveUser) GetMailbox(name string) (backend.Mailbox, error) {
	mbox, err := u.User.GetMailbox(name)
	if err != nil {
		return nil, err
	}
	return moveMailbox{mbox}, nil
}

type moveMailbox struct {
	backend.Mailbox
}

func (m moveMailbox) MoveMessages(uid bool, seqSet *imap.SeqSet, dest string) error {
	if err := m.CopyMessages(uid, seqSet, dest); err != nil {
		return err
	}
	if err := m.UpdateMessagesFlags(uid, seqSet, imap.AddFlags, []string{imap.DeletedFlag}); err != nil {
		return err
	}
	return m.Expunge()
}

// Close shuts down the test IMAP server.
func (s *TestIMAPServer) Close() {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
}

// Username returns the default test username.
func (s *TestIMAPServer) Username() string {
	return s.username
}

// Password returns the default test password.
func (s *TestIMAPServer) Password() string {
	return s.password
}

// Connect creates a new IMAP client connection to the test server.
func (s *TestIMAPServer) Connect(t *testing.T) (*imapclient.Client, func()) {
	t.Helper()

	client, err := imapclient.Dial(s.Address)
	if err != nil {
		t.Fatalf("Failed to connect to test server: %v", err)
	}

	if err := client.Login(s.username, s.password); err != nil {
		_ = client.Logout()
		t.Fatalf("Failed to login: %v", err)
	}

	cleanup := func() {
		_ = client.Logout()
	}

	return client, cleanup
}

// CreateFolder creates the named folders.
func (s *TestIMAPServer) CreateFolder(t *testing.T, names ...string) {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	for _, name := range names {
		if err := client.Create(name); err != nil {
			t.Fatalf("Failed to create folder %s: %v", name, err)
		}
	}
}

// EmptyFolder deletes every message in the folder.
func (s *TestIMAPServer) EmptyFolder(t *testing.T, folder string) {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	mbox, err := client.Select(folder, false)
	if err != nil {
		t.Fatalf("Failed to select folder %s: %v", folder, err)
	}
	if mbox.Messages == 0 {
		return
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(1, mbox.Messages)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := client.Store(seqSet, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		t.Fatalf("Failed to flag messages in %s: %v", folder, err)
	}
	if err := client.Expunge(nil); err != nil {
		t.Fatalf("Failed to expunge %s: %v", folder, err)
	}
}

// TestMessage describes a message to place on the test server.
type TestMessage struct {
	MessageID  string
	InReplyTo  string
	References string
	Subject    string
	From       string
	To         string
	Date       time.Time
	Body       string
	Flags      []string
}

// Raw renders the message as RFC 5322 text.
func (m TestMessage) Raw() []byte {
	var b bytes.Buffer
	if m.MessageID != "" {
		fmt.Fprintf(&b, "Message-ID: %s\r\n", m.MessageID)
	}
	if m.InReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", m.InReplyTo)
	}
	if m.References != "" {
		fmt.Fprintf(&b, "References: %s\r\n", m.References)
	}
	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	body := m.Body
	if body == "" {
		body = "Test message body."
	}
	b.WriteString(body)
	b.WriteString("\r\n")
	return b.Bytes()
}

// AddMessage appends m to folder.
func (s *TestIMAPServer) AddMessage(t *testing.T, folder string, m TestMessage) {
	t.Helper()
	s.AppendRaw(t, folder, m.Flags, m.Raw())
}

// AppendRaw appends a raw message to folder.
func (s *TestIMAPServer) AppendRaw(t *testing.T, folder string, flags []string, raw []byte) {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	if err := client.Append(folder, flags, time.Now(), bytes.NewReader(raw)); err != nil {
		t.Fatalf("Failed to append message to %s: %v", folder, err)
	}
}

// MessageIDs returns the Message-ID of every message in folder, in server order.
func (s *TestIMAPServer) MessageIDs(t *testing.T, folder string) []string {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	mbox, err := client.Select(folder, true)
	if err != nil {
		t.Fatalf("Failed to select folder %s: %v", folder, err)
	}
	if mbox.Messages == 0 {
		return nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(1, mbox.Messages)

	messages := make(chan *imap.Message, mbox.Messages)
	if err := client.Fetch(seqSet, []imap.FetchItem{imap.FetchEnvelope}, messages); err != nil {
		t.Fatalf("Failed to fetch %s: %v", folder, err)
	}

	var ids []string
	for msg := range messages {
		if msg.Envelope != nil {
			ids = append(ids, msg.Envelope.MessageId)
		}
	}
	return ids
}

// RawMessages returns the full source of every message in folder.
func (s *TestIMAPServer) RawMessages(t *testing.T, folder string) []string {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	mbox, err := client.Select(folder, true)
	if err != nil {
		t.Fatalf("Failed to select folder %s: %v", folder, err)
	}
	if mbox.Messages == 0 {
		return nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(1, mbox.Messages)
	section := &imap.BodySectionName{Peek: true}

	messages := make(chan *imap.Message, mbox.Messages)
	if err := client.Fetch(seqSet, []imap.FetchItem{section.FetchItem()}, messages); err != nil {
		t.Fatalf("Failed to fetch %s: %v", folder, err)
	}

	var raws []string
	for msg := range messages {
		if body := msg.GetBody(section); body != nil {
			b, _ := io.ReadAll(body)
			raws = append(raws, strings.ReplaceAll(string(b), "\r\n", "\n"))
		}
	}
	return raws
}
