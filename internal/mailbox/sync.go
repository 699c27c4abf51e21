package mailbox

import (
	"context"
	"errors"
	"log"
	"sort"

	"github.com/vdavid/cqmail/internal/db"
	"github.com/vdavid/cqmail/internal/imap"
	"github.com/vdavid/cqmail/internal/models"
	"github.com/vdavid/cqmail/internal/msgid"
)

// SyncInbox fetches the newest messages of INBOX, stores the ones not seen before
// and returns a projection of every fetched message, newest first.
//
// Messages already in the store are skipped, so running it twice inserts nothing
// the second time. A fetch failure discards the whole batch.
func (s *Service) SyncInbox(ctx context.Context, id models.Identity) ([]models.InboxItem, error) {
	account, _, session, err := s.connect(ctx, id)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	mbox, err := session.Lock(models.FolderInbox)
	if err != nil {
		return nil, s.failed("open INBOX", id.UserID, err)
	}
	defer mbox.Release()

	uids, err := mbox.SearchAll()
	if err != nil {
		return nil, s.failed("search INBOX", id.UserID, err)
	}

	messages, err := mbox.FetchMessages(imap.LastUIDs(uids, s.opts.InboxBatchSize))
	if err != nil {
		return nil, s.failed("fetch INBOX", id.UserID, err)
	}
	mbox.Release()

	items := make([]models.InboxItem, 0, len(messages))
	inserted := 0
	for _, msg := range messages {
		parsed, err := imap.ParseMessage(msg.Raw)
		if err != nil {
			log.Printf("Warning: skipping unparsable INBOX message UID %d for user %s: %v", msg.UID, id.UserID, err)
			continue
		}
		if parsed.MessageID == "" {
			parsed.MessageID = msgid.Canonical(msg.MessageID)
		}

		stored, err := s.storeInboxMessage(ctx, account, parsed, msg)
		if err != nil {
			return nil, s.failed("store INBOX message", id.UserID, err)
		}
		if stored {
			inserted++
		}

		items = append(items, inboxItem(parsed, msg))
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Date.After(items[j].Date)
	})

	if inserted > 0 {
		log.Printf("MailboxService: stored %d new INBOX messages for user %s", inserted, id.UserID)
		s.publish(id.UserID, EventSynced, map[string]int{"count": inserted})
	}

	return items, nil
}

// storeInboxMessage inserts msg unless it is already stored. Reports whether a row
// was inserted. Losing an insert race to a concurrent sync is not an error.
func (s *Service) storeInboxMessage(ctx context.Context, account *models.EmailAccount, parsed *models.ParsedMessage, msg *imap.FetchedMessage) (bool, error) {
	if parsed.MessageID == "" {
		log.Printf("Warning: INBOX message UID %d has no Message-ID, not storing it", msg.UID)
		return false, nil
	}

	exists, err := s.store.ExistsByMessageIDs(ctx, msgid.Variants(parsed.MessageID))
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	rec := inboxRecord(account, parsed, msg)
	s.chains.Build(ctx, parsed.MessageID, parsed.InReplyTo).Apply(rec)

	err = s.store.Insert(ctx, rec)
	if errors.Is(err, db.ErrDuplicateMessage) {
		log.Printf("MailboxService: message %s was stored concurrently, skipping", parsed.MessageID)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}
