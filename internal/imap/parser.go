package imap

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/vdavid/cqmail/internal/models"
	"github.com/vdavid/cqmail/internal/msgid"
)

// ParseMessage parses a raw RFC 5322 message.
func ParseMessage(raw []byte) (*models.ParsedMessage, error) {
	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse email body: %w", err)
	}

	parsed := &models.ParsedMessage{
		MessageID: msgid.Canonical(envelope.GetHeader("Message-Id")),
		InReplyTo: msgid.Canonical(firstMsgID(envelope.GetHeader("In-Reply-To"))),
		From:      addressList(envelope, "From"),
		To:        addressList(envelope, "To"),
		CC:        addressList(envelope, "Cc"),
		Subject:   envelope.GetHeader("Subject"),
		Text:      envelope.Text,
		HTML:      envelope.HTML,
	}

	if refs := envelope.GetHeader("References"); refs != "" {
		if ids, err := parseReferences(strings.NewReader("References: " + refs + "\r\n\r\n")); err == nil {
			parsed.References = ids
		}
	}

	if date, err := envelope.Date(); err == nil {
		parsed.Date = &date
	}

	for _, part := range envelope.Attachments {
		parsed.Attachments = append(parsed.Attachments, models.ParsedAttachment{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			ContentID:   part.ContentID,
			Content:     part.Content,
		})
	}

	return parsed, nil
}

func addressList(envelope *enmime.Envelope, key string) []string {
	addresses, err := envelope.AddressList(key)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		out = append(out, a.Address)
	}
	return out
}

// firstMsgID returns the first token of an In-Reply-To value, which some clients
// fill with more than one id.
func firstMsgID(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
