package imap

import (
	"bufio"
	"fmt"
	"io"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/vdavid/cqmail/internal/msgid"
)

// parseReferences reads a message header block and returns the References ids in
// canonical form, oldest first. A missing header yields no ids.
func parseReferences(r io.Reader) ([]string, error) {
	header, err := textproto.ReadHeader(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	return msgIDList(mail.Header{Header: message.Header{Header: header}}, "References"), nil
}

// msgIDList returns the ids of a msg-id list header, wrapped in angle brackets.
// Malformed lists yield whatever ids could be read before the error.
func msgIDList(h mail.Header, key string) []string {
	ids, _ := h.MsgIDList(key)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if c := msgid.Canonical(id); c != "" {
			out = append(out, c)
		}
	}
	return out
}
