package mailbox

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	sortthread "github.com/emersion/go-imap-sortthread"
	"github.com/vdavid/cqmail/internal/imap"
	"github.com/vdavid/cqmail/internal/models"
	"github.com/vdavid/cqmail/internal/msgid"
	"github.com/vdavid/cqmail/internal/smtp"
)

const summaryLength = 100

// replySubject returns "Re: " followed by the base subject of the original.
func replySubject(original string) string {
	return prefixedSubject("Re: ", original)
}

// forwardSubject returns "Fwd: " followed by the base subject of the original.
func forwardSubject(original string) string {
	return prefixedSubject("Fwd: ", original)
}

func prefixedSubject(prefix, original string) string {
	base, _ := sortthread.GetBaseSubject(original)
	if base == "" {
		base = smtp.DefaultSubject
	}
	return prefix + base
}

func subjectOrDefault(subject string) string {
	if strings.TrimSpace(subject) == "" {
		return smtp.DefaultSubject
	}
	return subject
}

// sentRecord builds the store record of a message this service submitted.
func sentRecord(account *models.EmailAccount, msg *smtp.Message, receipt *smtp.Receipt) *models.MailRecord {
	priority := models.PriorityNormal
	sentAt := receipt.Date
	return &models.MailRecord{
		MessageID:      receipt.MessageID,
		UserID:         account.UserID,
		EmailAccountID: account.ID,
		FromEmail:      account.Email,
		To:             strings.Join(msg.To, ", "),
		CC:             strings.Join(msg.CC, ", "),
		BCC:            strings.Join(msg.BCC, ", "),
		Subject:        subjectOrDefault(msg.Subject),
		Content:        msg.Text,
		HTMLContent:    msg.HTML,
		Attachments:    outgoingAttachmentsJSON(msg.Attachments),
		EmailType:      models.EmailTypeSent,
		Status:         models.StatusSent,
		Folder:         models.FolderSent,
		IsRead:         true,
		Priority:       &priority,
		SentAt:         &sentAt,
		DeliveredAt:    &sentAt,
	}
}

// inboxRecord builds the store record of a message observed in INBOX.
func inboxRecord(account *models.EmailAccount, parsed *models.ParsedMessage, msg *imap.FetchedMessage) *models.MailRecord {
	date := messageDate(parsed, &msg.MessageInfo, msg.InternalDate)
	names := attachmentNames(parsed.Attachments)

	var attachments string
	if len(names) > 0 {
		attachments = mustJSON(names)
	}

	return &models.MailRecord{
		MessageID:      parsed.MessageID,
		UserID:         account.UserID,
		EmailAccountID: account.ID,
		FromEmail:      parsed.FirstFrom(),
		To:             strings.Join(parsed.To, ", "),
		CC:             strings.Join(parsed.CC, ", "),
		Subject:        subjectOrDefault(parsed.Subject),
		Content:        parsed.Text,
		HTMLContent:    parsed.HTML,
		Attachments:    attachments,
		EmailType:      models.EmailTypeInbox,
		Status:         models.StatusReceived,
		Folder:         models.FolderInbox,
		IsRead:         msg.HasFlag(imap.FlagSeen),
		IsStarred:      msg.HasFlag(imap.FlagFlagged),
		SentAt:         &date,
		DeliveredAt:    &date,
	}
}

func inboxItem(parsed *models.ParsedMessage, msg *imap.FetchedMessage) models.InboxItem {
	return models.InboxItem{
		MessageID:   firstNonBlank(parsed.MessageID, msgid.Canonical(msg.MessageID)),
		Subject:     subjectOrDefault(parsed.Subject),
		From:        parsed.FirstFrom(),
		To:          strings.Join(parsed.To, ", "),
		Date:        messageDate(parsed, &msg.MessageInfo, msg.InternalDate),
		Summary:     summarize(parsed.Text),
		HTMLContent: parsed.HTML,
		Attachments: attachmentNames(parsed.Attachments),
	}
}

func folderMessage(folder string, parsed *models.ParsedMessage, msg *imap.FetchedMessage) models.FolderMessage {
	body := parsed.HTML
	if body == "" {
		body = parsed.Text
	}

	attachments := make([]models.AttachmentInfo, 0, len(parsed.Attachments))
	for _, a := range parsed.Attachments {
		attachments = append(attachments, models.AttachmentInfo{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        int64(len(a.Content)),
		})
	}

	flags := msg.Flags
	if flags == nil {
		flags = []string{}
	}

	return models.FolderMessage{
		MessageID:   firstNonBlank(parsed.MessageID, msgid.Canonical(msg.MessageID)),
		Subject:     subjectOrDefault(parsed.Subject),
		From:        parsed.FirstFrom(),
		To:          strings.Join(parsed.To, ", "),
		Date:        messageDate(parsed, &msg.MessageInfo, msg.InternalDate),
		Body:        body,
		Attachments: attachments,
		Flags:       flags,
		IsRead:      msg.HasFlag(imap.FlagSeen),
		Folder:      folder,
		UID:         msg.UID,
	}
}

// messageDate prefers the Date header, then the envelope date, then the server's
// internal date.
func messageDate(parsed *models.ParsedMessage, info *imap.MessageInfo, internal time.Time) time.Time {
	switch {
	case parsed != nil && parsed.Date != nil:
		return *parsed.Date
	case !info.Date.IsZero():
		return info.Date
	default:
		return internal
	}
}

// forwardBody appends the quoted original to the forwarder's own text and HTML.
func forwardBody(req *models.ForwardRequest, original *models.ParsedMessage, date time.Time) (string, string) {
	fields := [][2]string{
		{"From", strings.Join(original.From, ", ")},
		{"Date", date.Format(time.RFC1123Z)},
		{"Subject", subjectOrDefault(original.Subject)},
		{"To", strings.Join(original.To, ", ")},
	}
	if len(original.CC) > 0 {
		fields = append(fields, [2]string{"Cc", strings.Join(original.CC, ", ")})
	}

	var text strings.Builder
	text.WriteString(req.Text)
	text.WriteString("\n\n---------- Forwarded message ---------\n")
	for _, f := range fields {
		fmt.Fprintf(&text, "%s: %s\n", f[0], f[1])
	}
	text.WriteString("\n")
	text.WriteString(original.Text)

	var body strings.Builder
	if req.HTML != "" {
		body.WriteString(req.HTML)
	} else {
		body.WriteString(textToHTML(req.Text))
	}
	body.WriteString(`<br><br><div class="forwarded">---------- Forwarded message ---------<br>`)
	for _, f := range fields {
		fmt.Fprintf(&body, "<b>%s:</b> %s<br>", f[0], html.EscapeString(f[1]))
	}
	body.WriteString("<br>")
	if original.HTML != "" {
		body.WriteString(original.HTML)
	} else {
		body.WriteString(textToHTML(original.Text))
	}
	body.WriteString("</div>")

	return text.String(), body.String()
}

func textToHTML(text string) string {
	return strings.ReplaceAll(html.EscapeString(text), "\n", "<br>")
}

func forwardedAttachments(parsed []models.ParsedAttachment) []models.OutgoingAttachment {
	out := make([]models.OutgoingAttachment, 0, len(parsed))
	for _, a := range parsed {
		out = append(out, models.OutgoingAttachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     a.Content,
		})
	}
	return out
}

func outgoingAttachmentsJSON(attachments []models.OutgoingAttachment) string {
	if len(attachments) == 0 {
		return ""
	}
	infos := make([]models.AttachmentInfo, 0, len(attachments))
	for _, a := range attachments {
		infos = append(infos, models.AttachmentInfo{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        int64(len(a.Content)),
		})
	}
	return mustJSON(infos)
}

func attachmentNames(attachments []models.ParsedAttachment) []string {
	names := make([]string, 0, len(attachments))
	for _, a := range attachments {
		names = append(names, a.Filename)
	}
	return names
}

func summarize(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) > summaryLength {
		runes = runes[:summaryLength]
	}
	return string(runes)
}

// appendReference returns refs followed by id, skipping ids already present.
func appendReference(refs []string, id string) []string {
	out := make([]string, 0, len(refs)+1)
	for _, ref := range append(append([]string(nil), refs...), id) {
		if msgid.IsBlank(ref) {
			continue
		}
		duplicate := false
		for _, seen := range out {
			if msgid.Equal(seen, ref) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			out = append(out, msgid.Canonical(ref))
		}
	}
	return out
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if !msgid.IsBlank(v) {
			return v
		}
	}
	return ""
}

// mustJSON encodes values that cannot fail to marshal.
func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("mailbox: failed to encode %T: %v", v, err))
	}
	return string(data)
}
