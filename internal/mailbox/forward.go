package mailbox

import (
	"context"
	"fmt"
	"log"

	"github.com/vdavid/cqmail/internal/imap"
	"github.com/vdavid/cqmail/internal/models"
	"github.com/vdavid/cqmail/internal/msgid"
	"github.com/vdavid/cqmail/internal/smtp"
	"github.com/vdavid/cqmail/internal/threading"
	"golang.org/x/sync/errgroup"
)

// Forward sends the INBOX message messageID, quoted and with its attachments, to
// new recipients.
//
// Once the message is sent, releasing the mailbox and logging out happen in the
// background; their errors are only logged.
func (s *Service) Forward(ctx context.Context, id models.Identity, messageID string, req *models.ForwardRequest) (*models.ForwardResult, error) {
	if msgid.IsBlank(messageID) {
		return nil, fmt.Errorf("%w: message id is required", ErrInvalidRequest)
	}
	if len(req.To)+len(req.CC)+len(req.BCC) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient is required", ErrInvalidRequest)
	}

	account, password, session, err := s.connect(ctx, id)
	if err != nil {
		return nil, err
	}

	var mbox imap.Mailbox
	detach := false
	defer func() {
		cleanup := func() {
			if mbox != nil {
				mbox.Release()
			}
			session.Close()
		}
		if detach {
			go cleanup()
			return
		}
		cleanup()
	}()

	mbox, err = session.Lock(models.FolderInbox)
	if err != nil {
		return nil, s.failed("open INBOX", id.UserID, err)
	}

	original, err := findLatestByID(mbox, messageID)
	if err != nil {
		return nil, s.failed("locate forwarded message", id.UserID, err)
	}
	if original == nil {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, msgid.Canonical(messageID))
	}

	parsed, err := imap.ParseMessage(original.Raw)
	if err != nil {
		return nil, s.failed("parse forwarded message", id.UserID, err)
	}

	forwardedFrom := msgid.Canonical(messageID)
	subject := req.Subject
	if subject == "" {
		subject = forwardSubject(parsed.Subject)
	}
	text, html := forwardBody(req, parsed, messageDate(parsed, &original.MessageInfo, original.InternalDate))

	msg := &smtp.Message{
		From:        account.Email,
		To:          req.To,
		CC:          req.CC,
		BCC:         req.BCC,
		Subject:     subject,
		Text:        text,
		HTML:        html,
		Attachments: forwardedAttachments(parsed.Attachments),
		MessageID:   smtp.NewMessageID(account.Email),
	}

	// The new id is known up front, so the chain lookup runs alongside the send.
	var receipt *smtp.Receipt
	var chain threading.Chain
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		receipt, err = s.sender.Send(gctx, smtp.Credentials{Username: account.Email, Password: password}, msg)
		return err
	})
	g.Go(func() error {
		chain = s.chains.Build(gctx, msg.MessageID, forwardedFrom)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, s.failed("send forward", id.UserID, err)
	}

	rec := sentRecord(account, msg, receipt)
	rec.Forwarded = true
	rec.Metadata = mustJSON(map[string]string{"forwarded_from": forwardedFrom})
	chain.Apply(rec)

	if err := s.store.Insert(ctx, rec); err != nil {
		return nil, s.failed("store forward", id.UserID, err)
	}

	detach = true
	s.appendToFirstSent(session, id.UserID, receipt)
	s.publish(id.UserID, EventSent, map[string]string{"message_id": rec.MessageID, "thread_id": rec.ThreadID})

	log.Printf("MailboxService: forwarded %s as %s for user %s", forwardedFrom, rec.MessageID, id.UserID)

	return &models.ForwardResult{
		Success:       true,
		ForwardedTo:   req.To,
		MessageID:     rec.MessageID,
		ForwardedFrom: forwardedFrom,
	}, nil
}

// findLatestByID returns the newest full message whose Message-ID is messageID,
// matching either bracket form, or nil if there is none.
func findLatestByID(mbox imap.Mailbox, messageID string) (*imap.FetchedMessage, error) {
	uids, err := mbox.SearchHeaders([]string{"Message-ID"}, msgid.Variants(messageID))
	if err != nil {
		return nil, err
	}

	messages, err := mbox.FetchMessages(uids)
	if err != nil {
		return nil, err
	}

	var latest *imap.FetchedMessage
	for _, m := range messages {
		if !msgid.Equal(m.MessageID, messageID) {
			continue
		}
		if latest == nil || m.Date.After(latest.Date) {
			latest = m
		}
	}
	return latest, nil
}
