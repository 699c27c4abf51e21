package imap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
)

// Flags the mailbox service reads and sets.
const (
	FlagSeen    = imap.SeenFlag
	FlagFlagged = imap.FlaggedFlag
)

// MessageInfo is the envelope-level view of a message on the server.
type MessageInfo struct {
	UID        uint32
	MessageID  string
	InReplyTo  string
	References []string
	Subject    string
	From       []string
	To         []string
	CC         []string
	Date       time.Time
	Flags      []string
}

// HasFlag reports whether the message carries flag.
func (i *MessageInfo) HasFlag(flag string) bool {
	for _, f := range i.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// FetchedMessage is a full message with its raw RFC 5322 source.
type FetchedMessage struct {
	MessageInfo
	InternalDate time.Time
	Raw          []byte
}

var headerSection = &imap.BodySectionName{
	BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier},
	Peek:         true,
}

var fullSection = &imap.BodySectionName{Peek: true}

func (m *mailbox) FetchInfos(uids []uint32) ([]*MessageInfo, error) {
	items := []imap.FetchItem{
		imap.FetchUid,
		imap.FetchFlags,
		imap.FetchEnvelope,
		headerSection.FetchItem(),
	}

	var infos []*MessageInfo
	err := m.fetch(uids, items, func(msg *imap.Message) error {
		info := newMessageInfo(msg)
		if header := msg.GetBody(headerSection); header != nil {
			refs, err := parseReferences(header)
			if err != nil {
				return fmt.Errorf("failed to read headers of UID %d: %w", msg.Uid, err)
			}
			info.References = refs
		}
		infos = append(infos, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

func (m *mailbox) FetchMessages(uids []uint32) ([]*FetchedMessage, error) {
	items := []imap.FetchItem{
		imap.FetchUid,
		imap.FetchFlags,
		imap.FetchEnvelope,
		imap.FetchInternalDate,
		fullSection.FetchItem(),
	}

	var messages []*FetchedMessage
	err := m.fetch(uids, items, func(msg *imap.Message) error {
		body := msg.GetBody(fullSection)
		if body == nil {
			return fmt.Errorf("server did not return the body of UID %d", msg.Uid)
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("failed to read body of UID %d: %w", msg.Uid, err)
		}
		fetched := &FetchedMessage{
			MessageInfo:  *newMessageInfo(msg),
			InternalDate: msg.InternalDate,
			Raw:          raw,
		}
		if refs, err := parseReferences(bytes.NewReader(raw)); err == nil {
			fetched.References = refs
		}
		messages = append(messages, fetched)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// fetch runs a UID FETCH and hands each message to handle. The channel is always
// drained so the client is left in a usable state when handle fails.
func (m *mailbox) fetch(uids []uint32, items []imap.FetchItem, handle func(*imap.Message) error) error {
	if len(uids) == 0 {
		return nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- m.client.UidFetch(seqSet, items, messages)
	}()

	var handleErr error
	for msg := range messages {
		if handleErr != nil {
			continue
		}
		handleErr = handle(msg)
	}

	if err := <-done; err != nil {
		return fmt.Errorf("failed to fetch messages from %s: %w", m.name, err)
	}

	return handleErr
}

func (m *mailbox) Move(uids []uint32, dest string) error {
	if len(uids) == 0 {
		return nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	moveErr := m.client.UidMove(seqSet, dest)
	if moveErr == nil {
		return nil
	}

	// Some servers advertise MOVE but reject it; copy, flag and expunge instead.
	if err := m.moveByCopy(seqSet, dest); err != nil {
		return fmt.Errorf("failed to move messages from %s to %s: %w", m.name, dest, errors.Join(moveErr, err))
	}
	return nil
}

func (m *mailbox) moveByCopy(seqSet *imap.SeqSet, dest string) error {
	if err := m.client.UidCopy(seqSet, dest); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := m.client.UidStore(seqSet, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		return fmt.Errorf("flag deleted: %w", err)
	}
	if err := m.client.Expunge(nil); err != nil {
		return fmt.Errorf("expunge: %w", err)
	}
	return nil
}

func newMessageInfo(msg *imap.Message) *MessageInfo {
	info := &MessageInfo{
		UID:   msg.Uid,
		Flags: msg.Flags,
	}

	if env := msg.Envelope; env != nil {
		info.MessageID = env.MessageId
		info.InReplyTo = env.InReplyTo
		info.Subject = env.Subject
		info.From = formatAddressList(env.From)
		info.To = formatAddressList(env.To)
		info.CC = formatAddressList(env.Cc)
		info.Date = env.Date
	}

	return info
}

// formatAddress formats an IMAP address to a string.
func formatAddress(address *imap.Address) string {
	if address == nil {
		return ""
	}

	if address.MailboxName == "" && address.HostName == "" {
		return ""
	}

	if address.PersonalName != "" {
		return fmt.Sprintf("%s <%s@%s>", address.PersonalName, address.MailboxName, address.HostName)
	}

	return fmt.Sprintf("%s@%s", address.MailboxName, address.HostName)
}

// formatAddressList formats a list of IMAP addresses.
func formatAddressList(addresses []*imap.Address) []string {
	result := make([]string, 0, len(addresses))
	for _, address := range addresses {
		formatted := formatAddress(address)
		if formatted != "" {
			result = append(result, formatted)
		}
	}
	return result
}
