package mailbox

import (
	"context"
	"fmt"
	"log"

	"github.com/vdavid/cqmail/internal/imap"
	"github.com/vdavid/cqmail/internal/models"
	"github.com/vdavid/cqmail/internal/msgid"
)

// Trash deletes messageID along two independent paths: the stored record is marked
// deleted, and the live message is moved to the Trash folder. It succeeds when
// either path does.
func (s *Service) Trash(ctx context.Context, id models.Identity, messageID string) (*models.TrashResult, error) {
	if msgid.IsBlank(messageID) {
		return nil, fmt.Errorf("%w: message id is required", ErrInvalidRequest)
	}

	dbUpdated := false
	n, err := s.store.MarkTrashed(ctx, msgid.Variants(messageID), id.UserID, id.AccountID)
	if err != nil {
		log.Printf("Warning: failed to mark %s trashed in the store for user %s: %v", messageID, id.UserID, err)
	} else {
		dbUpdated = n > 0
	}

	imapMoved := s.trashLive(ctx, id, messageID)

	result := &models.TrashResult{Success: true, IMAPMoved: imapMoved, DBUpdated: dbUpdated}
	switch {
	case imapMoved && dbUpdated:
		result.Message = "Message moved to trash"
	case imapMoved:
		result.Message = "Message moved to trash on the mail server; it was not in the local store"
	case dbUpdated:
		result.Message = "Message marked as deleted; it was not found on the mail server"
	default:
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, msgid.Canonical(messageID))
	}

	s.publish(id.UserID, EventTrashed, map[string]any{
		"message_id": msgid.Canonical(messageID),
		"imap_moved": imapMoved,
		"db_updated": dbUpdated,
	})

	return result, nil
}

// trashLive moves the first live copy of messageID found outside Trash into Trash.
// Errors are logged and reported as not moved.
func (s *Service) trashLive(ctx context.Context, id models.Identity, messageID string) bool {
	_, _, session, err := s.connect(ctx, id)
	if err != nil {
		return false
	}
	defer session.Close()

	folders, err := session.ListFolders()
	if err != nil {
		log.Printf("Warning: failed to list folders for user %s: %v", id.UserID, err)
		return false
	}

	trash, ok := imap.ResolveFolder(folders, s.opts.TrashFolders)
	if !ok {
		log.Printf("Warning: no Trash folder among %v for user %s", folders, id.UserID)
		return false
	}

	for _, folder := range folders {
		if folder == trash {
			continue
		}
		if err := ctx.Err(); err != nil {
			log.Printf("Warning: trash scan for user %s cancelled: %v", id.UserID, err)
			return false
		}

		moved, err := moveToTrash(session, folder, trash, messageID)
		if err != nil {
			log.Printf("Warning: failed to scan %s for %s (user %s): %v", folder, messageID, id.UserID, err)
			continue
		}
		if moved {
			return true
		}
	}

	return false
}

// moveToTrash looks for messageID in folder, first by header search and then by
// scanning every envelope, and moves the matches to trash.
func moveToTrash(session imap.Session, folder, trash, messageID string) (bool, error) {
	mbox, err := session.Lock(folder)
	if err != nil {
		return false, err
	}
	defer mbox.Release()

	uids, err := mbox.SearchHeaders([]string{"Message-ID"}, msgid.Variants(messageID))
	if err != nil {
		return false, err
	}
	matches, err := matchingUIDs(mbox, uids, messageID)
	if err != nil {
		return false, err
	}

	if len(matches) == 0 {
		all, err := mbox.SearchAll()
		if err != nil {
			return false, err
		}
		if matches, err = matchingUIDs(mbox, all, messageID); err != nil {
			return false, err
		}
	}

	if len(matches) == 0 {
		return false, nil
	}

	if err := mbox.Move(matches, trash); err != nil {
		return false, err
	}
	return true, nil
}

func matchingUIDs(mbox imap.Mailbox, uids []uint32, messageID string) ([]uint32, error) {
	infos, err := mbox.FetchInfos(uids)
	if err != nil {
		return nil, err
	}

	var matches []uint32
	for _, info := range infos {
		if msgid.Equal(info.MessageID, messageID) {
			matches = append(matches, info.UID)
		}
	}
	return matches, nil
}
