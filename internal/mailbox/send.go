package mailbox

import (
	"context"
	"fmt"
	"log"

	"github.com/vdavid/cqmail/internal/imap"
	"github.com/vdavid/cqmail/internal/models"
	"github.com/vdavid/cqmail/internal/msgid"
	"github.com/vdavid/cqmail/internal/smtp"
)

// Send submits a new message, stores it in the Sent folder of the store and
// appends a copy to the live Sent folder. The append is best effort.
func (s *Service) Send(ctx context.Context, id models.Identity, req *models.SendRequest) (*models.SendResult, error) {
	if len(req.To)+len(req.CC)+len(req.BCC) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient is required", ErrInvalidRequest)
	}

	account, password, err := s.account(ctx, id)
	if err != nil {
		return nil, err
	}

	msg := &smtp.Message{
		From:        account.Email,
		To:          req.To,
		CC:          req.CC,
		BCC:         req.BCC,
		Subject:     req.Subject,
		Text:        req.Text,
		HTML:        req.HTML,
		Attachments: req.Attachments,
		InReplyTo:   req.InReplyTo,
		References:  req.References,
	}

	receipt, err := s.submit(ctx, account, password, msg)
	if err != nil {
		return nil, err
	}

	rec := sentRecord(account, msg, receipt)
	rec.IsStarred = req.IsStarred
	rec.IsImportant = req.IsImportant
	if len(req.References) > 0 {
		rec.Metadata = mustJSON(map[string][]string{"references": req.References})
	}
	s.chains.Build(ctx, receipt.MessageID, req.InReplyTo).Apply(rec)

	if err := s.store.Insert(ctx, rec); err != nil {
		return nil, s.failed("store sent message", id.UserID, err)
	}

	session, err := s.imap.Connect(ctx, account.Email, password)
	if err != nil {
		log.Printf("Warning: could not connect to IMAP to save sent message %s for user %s: %v", receipt.MessageID, id.UserID, err)
	} else {
		s.appendToSent(session, id.UserID, receipt)
		session.Close()
	}

	s.publish(id.UserID, EventSent, map[string]string{"message_id": rec.MessageID, "thread_id": rec.ThreadID})

	return &models.SendResult{Success: true, MessageID: rec.MessageID, ThreadID: rec.ThreadID}, nil
}

// Reply answers the newest INBOX message that is, or refers to, messageID.
func (s *Service) Reply(ctx context.Context, id models.Identity, messageID string, req *models.ReplyRequest) (*models.ReplyResult, error) {
	if msgid.IsBlank(messageID) {
		return nil, fmt.Errorf("%w: message id is required", ErrInvalidRequest)
	}

	account, password, session, err := s.connect(ctx, id)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	mbox, err := session.Lock(models.FolderInbox)
	if err != nil {
		return nil, s.failed("open INBOX", id.UserID, err)
	}
	defer mbox.Release()

	target, err := findLatestMention(mbox, messageID)
	if err != nil {
		return nil, s.failed("locate reply target", id.UserID, err)
	}
	mbox.Release()
	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, msgid.Canonical(messageID))
	}

	if len(target.From) == 0 {
		return nil, fmt.Errorf("%w: message %s has no sender to reply to", ErrInvalidRequest, msgid.Canonical(messageID))
	}
	recipient := target.From[0]

	parentID := firstNonBlank(msgid.Canonical(target.MessageID), msgid.Canonical(messageID))
	references := appendReference(target.References, parentID)

	subject := req.Subject
	if subject == "" {
		subject = replySubject(target.Subject)
	}

	msg := &smtp.Message{
		From:       account.Email,
		To:         []string{recipient},
		Subject:    subject,
		Text:       req.Text,
		HTML:       req.HTML,
		InReplyTo:  parentID,
		References: references,
	}

	receipt, err := s.submit(ctx, account, password, msg)
	if err != nil {
		return nil, err
	}

	rec := sentRecord(account, msg, receipt)
	rec.Metadata = mustJSON(map[string][]string{"references": references})
	s.chains.Build(ctx, receipt.MessageID, parentID).Apply(rec)

	if err := s.store.Insert(ctx, rec); err != nil {
		return nil, s.failed("store reply", id.UserID, err)
	}

	s.appendToSent(session, id.UserID, receipt)
	s.publish(id.UserID, EventSent, map[string]string{"message_id": rec.MessageID, "thread_id": rec.ThreadID})

	return &models.ReplyResult{
		Success:    true,
		SentTo:     recipient,
		MessageID:  rec.MessageID,
		RepliedTo:  parentID,
		References: references,
		ThreadID:   rec.ThreadID,
	}, nil
}

func (s *Service) submit(ctx context.Context, account *models.EmailAccount, password string, msg *smtp.Message) (*smtp.Receipt, error) {
	receipt, err := s.sender.Send(ctx, smtp.Credentials{Username: account.Email, Password: password}, msg)
	if err != nil {
		return nil, s.failed("send message", account.UserID, err)
	}
	return receipt, nil
}

// appendToSent saves a copy of a sent message in the resolved Sent folder, or the
// first candidate when none matches. Failures are logged.
func (s *Service) appendToSent(session imap.Session, userID string, receipt *smtp.Receipt) {
	folder := s.opts.SentFolders[0]
	if folders, err := session.ListFolders(); err != nil {
		log.Printf("Warning: failed to list folders for user %s, using %q: %v", userID, folder, err)
	} else if resolved, ok := imap.ResolveFolder(folders, s.opts.SentFolders); ok {
		folder = resolved
	}

	if err := session.Append(folder, []string{imap.FlagSeen}, receipt.Date, receipt.Raw); err != nil {
		log.Printf("Warning: failed to save sent message %s to %s for user %s: %v", receipt.MessageID, folder, userID, err)
	}
}

// appendToFirstSent tries every Sent candidate in order and stops at the first
// successful append. Failures are logged.
func (s *Service) appendToFirstSent(session imap.Session, userID string, receipt *smtp.Receipt) {
	folders, err := session.ListFolders()
	if err != nil {
		log.Printf("Warning: failed to list folders for user %s: %v", userID, err)
	}

	for _, folder := range imap.OrderedFolders(folders, s.opts.SentFolders) {
		err := session.Append(folder, []string{imap.FlagSeen}, receipt.Date, receipt.Raw)
		if err == nil {
			return
		}
		log.Printf("Warning: failed to save sent message %s to %s for user %s: %v", receipt.MessageID, folder, userID, err)
	}

	log.Printf("Warning: sent message %s was not saved to any Sent folder for user %s", receipt.MessageID, userID)
}

// findLatestMention returns the newest message whose Message-ID, In-Reply-To or
// References names messageID, or nil if there is none.
func findLatestMention(mbox imap.Mailbox, messageID string) (*imap.MessageInfo, error) {
	uids, err := mbox.SearchHeaders([]string{"Message-ID", "In-Reply-To", "References"}, msgid.Variants(messageID))
	if err != nil {
		return nil, err
	}

	infos, err := mbox.FetchInfos(uids)
	if err != nil {
		return nil, err
	}

	var latest *imap.MessageInfo
	for _, info := range infos {
		if !mentions(info, messageID) {
			continue
		}
		if latest == nil || info.Date.After(latest.Date) {
			latest = info
		}
	}
	return latest, nil
}

// Header search matches substrings, so hits are confirmed by exact id.
func mentions(info *imap.MessageInfo, messageID string) bool {
	if msgid.Equal(info.MessageID, messageID) || msgid.Equal(info.InReplyTo, messageID) {
		return true
	}
	for _, ref := range info.References {
		if msgid.Equal(ref, messageID) {
			return true
		}
	}
	return false
}
