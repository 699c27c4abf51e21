package models

import "time"

// InboxItem is the lightweight projection returned by an inbox sync.
type InboxItem struct {
	MessageID   string    `json:"message_id"`
	Subject     string    `json:"subject"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Date        time.Time `json:"date"`
	Summary     string    `json:"summary"`
	HTMLContent string    `json:"html_content"`
	Attachments []string  `json:"attachments"`
}

// FolderMessage is one message of a live Sent or Trash folder listing.
type FolderMessage struct {
	MessageID   string           `json:"message_id"`
	Subject     string           `json:"subject"`
	From        string           `json:"from"`
	To          string           `json:"to"`
	Date        time.Time        `json:"date"`
	Body        string           `json:"body"`
	Attachments []AttachmentInfo `json:"attachments"`
	Flags       []string         `json:"flags"`
	IsRead      bool             `json:"is_read"`
	Folder      string           `json:"folder"`
	UID         uint32           `json:"uid"`
}

// ParsedMessage is the structured form of a raw RFC 5322 message.
type ParsedMessage struct {
	MessageID   string
	InReplyTo   string
	References  []string
	From        []string
	To          []string
	CC          []string
	Subject     string
	Text        string
	HTML        string
	Attachments []ParsedAttachment
	Date        *time.Time
}

// FirstFrom returns the first sender address, or an empty string.
func (m *ParsedMessage) FirstFrom() string {
	if len(m.From) == 0 {
		return ""
	}
	return m.From[0]
}

// ParsedAttachment is an attachment extracted from a parsed message.
type ParsedAttachment struct {
	Filename    string
	ContentType string
	ContentID   string
	Content     []byte
}

// OutgoingAttachment is an attachment supplied by the caller of send.
// Content is base64 in JSON.
type OutgoingAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// SendRequest is the payload of a new outgoing message.
type SendRequest struct {
	To          []string             `json:"to"`
	CC          []string             `json:"cc"`
	BCC         []string             `json:"bcc"`
	Subject     string               `json:"subject"`
	Text        string               `json:"text"`
	HTML        string               `json:"html"`
	Attachments []OutgoingAttachment `json:"attachments"`
	InReplyTo   string               `json:"in_reply_to"`
	References  []string             `json:"references"`
	IsStarred   bool                 `json:"is_starred"`
	IsImportant bool                 `json:"is_important"`
}

// SendResult is returned after a successful send.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
}

// ReplyRequest is the payload of a reply. An empty subject is derived from the
// message being replied to.
type ReplyRequest struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// ReplyResult is returned after a successful reply.
type ReplyResult struct {
	Success    bool     `json:"success"`
	SentTo     string   `json:"sent_to"`
	MessageID  string   `json:"message_id"`
	RepliedTo  string   `json:"replied_to"`
	References []string `json:"references"`
	ThreadID   string   `json:"thread_id"`
}

// ForwardRequest is the payload of a forward.
type ForwardRequest struct {
	To      []string `json:"to"`
	CC      []string `json:"cc"`
	BCC     []string `json:"bcc"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html"`
}

// ForwardResult is returned after a successful forward.
type ForwardResult struct {
	Success       bool     `json:"success"`
	ForwardedTo   []string `json:"forwarded_to"`
	MessageID     string   `json:"message_id"`
	ForwardedFrom string   `json:"forwarded_from"`
}

// TrashResult reports which of the two trash paths succeeded.
type TrashResult struct {
	Success   bool   `json:"success"`
	IMAPMoved bool   `json:"imap_moved"`
	DBUpdated bool   `json:"db_updated"`
	Message   string `json:"message"`
}
