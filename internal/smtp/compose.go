// Package smtp composes outgoing messages and submits them over SMTP.
package smtp

import (
	"bytes"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"
	"github.com/vdavid/cqmail/internal/models"
	"github.com/vdavid/cqmail/internal/msgid"
)

// ErrNoRecipients is returned when a message has no To, Cc or Bcc address.
var ErrNoRecipients = errors.New("message has no recipients")

// DefaultSubject is used when a message is sent without a subject.
const DefaultSubject = "(No Subject)"

// Message is an outgoing message before composition.
type Message struct {
	From        string
	To          []string
	CC          []string
	BCC         []string
	Subject     string
	Text        string
	HTML        string
	Attachments []models.OutgoingAttachment

	// InReplyTo and References set the threading headers when non-empty.
	InReplyTo  string
	References []string

	// MessageID is generated by Compose when empty.
	MessageID string
}

// Composed is a message rendered to RFC 5322 text, plus its SMTP envelope.
type Composed struct {
	MessageID  string
	Date       time.Time
	Raw        []byte
	From       string
	Recipients []string
}

// Compose renders msg. The Message-ID is msg.MessageID when set, else a new one.
func Compose(msg *Message, now time.Time) (*Composed, error) {
	from, err := mail.ParseAddress(msg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", msg.From, err)
	}

	to, err := parseAddresses(msg.To)
	if err != nil {
		return nil, err
	}
	cc, err := parseAddresses(msg.CC)
	if err != nil {
		return nil, err
	}
	bcc, err := parseAddresses(msg.BCC)
	if err != nil {
		return nil, err
	}
	if len(to)+len(cc)+len(bcc) == 0 {
		return nil, ErrNoRecipients
	}

	subject := strings.TrimSpace(msg.Subject)
	if subject == "" {
		subject = DefaultSubject
	}

	messageID := msgid.Canonical(msg.MessageID)
	if messageID == "" {
		messageID = NewMessageID(from.Address)
	}

	builder := enmime.Builder().
		From(from.Name, from.Address).
		ToAddrs(to).
		CCAddrs(cc).
		BCCAddrs(bcc).
		Subject(subject).
		Date(now).
		Header("Message-ID", messageID)

	if parent := msgid.Canonical(msg.InReplyTo); parent != "" {
		builder = builder.Header("In-Reply-To", parent)
	}
	if refs := canonicalList(msg.References); len(refs) > 0 {
		builder = builder.Header("References", strings.Join(refs, " "))
	}

	if msg.HTML != "" {
		builder = builder.HTML([]byte(msg.HTML))
	}
	if msg.Text != "" || msg.HTML == "" {
		builder = builder.Text([]byte(msg.Text))
	}

	for _, att := range msg.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		builder = builder.AddAttachment(att.Content, contentType, att.Filename)
	}

	root, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}

	var buf bytes.Buffer
	if err := root.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	recipients := make([]string, 0, len(to)+len(cc)+len(bcc))
	for _, list := range [][]mail.Address{to, cc, bcc} {
		for _, addr := range list {
			recipients = append(recipients, addr.Address)
		}
	}

	return &Composed{
		MessageID:  messageID,
		Date:       now,
		Raw:        buf.Bytes(),
		From:       from.Address,
		Recipients: recipients,
	}, nil
}

// NewMessageID returns a wrapped, globally unique Message-ID in the sender's domain.
func NewMessageID(sender string) string {
	domain := "localhost"
	if at := strings.LastIndex(sender, "@"); at >= 0 && at < len(sender)-1 {
		domain = strings.Trim(sender[at+1:], "<> ")
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}

func parseAddresses(list []string) ([]mail.Address, error) {
	out := make([]mail.Address, 0, len(list))
	for _, raw := range list {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid recipient address %q: %w", raw, err)
		}
		out = append(out, *addr)
	}
	return out, nil
}

func canonicalList(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if c := msgid.Canonical(id); c != "" {
			out = append(out, c)
		}
	}
	return out
}
