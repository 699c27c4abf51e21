package models

import "time"

// Store-side folder names. Live IMAP folder names are resolved separately.
const (
	FolderInbox = "INBOX"
	FolderSent  = "Sent"
	FolderTrash = "TRASH"
)

const (
	EmailTypeSent  = "sent"
	EmailTypeInbox = "inbox"

	StatusSent     = "sent"
	StatusReceived = "received"

	PriorityNormal = "Normal"
)

// MailRecord is the relational mirror of one email message, either sent from this
// backend or observed during an inbox sync.
type MailRecord struct {
	ID              string       `json:"id"`
	MessageID       string       `json:"message_id"`
	UserID          string       `json:"user_id"`
	EmailAccountID  string       `json:"email_account_id"`
	ThreadID        string       `json:"thread_id"`
	InReplyToID     *string      `json:"in_reply_to_id"`
	ParentMessageID *string      `json:"parent_message_id"`
	ReferencesIDs   ReferenceIDs `json:"references_ids"`
	FromEmail       string       `json:"from_email"`
	To              string       `json:"to"`
	CC              string       `json:"cc"`
	BCC             string       `json:"bcc"`
	Subject         string       `json:"subject"`
	Content         string       `json:"content"`
	HTMLContent     string       `json:"html_content"`
	Attachments     string       `json:"attachments"`
	EmailType       string       `json:"email_type"`
	Status          string       `json:"status"`
	Folder          string       `json:"folder"`
	IsRead          bool         `json:"is_read"`
	IsStarred       bool         `json:"is_starred"`
	IsImportant     bool         `json:"is_important"`
	IsDeleted       bool         `json:"is_deleted"`
	IsSpam          bool         `json:"is_spam"`
	Forwarded       bool         `json:"forwarded"`
	Metadata        string       `json:"metadata,omitempty"`
	Priority        *string      `json:"priority"`
	SentAt          *time.Time   `json:"sent_at"`
	DeliveredAt     *time.Time   `json:"delivered_at"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// SentAtOrZero returns the sent timestamp, or the zero time when it is unknown.
func (r *MailRecord) SentAtOrZero() time.Time {
	if r.SentAt == nil {
		return time.Time{}
	}
	return *r.SentAt
}

// AttachmentInfo describes an attachment without its content.
type AttachmentInfo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}
