package mailbox

import (
	"context"
	"log"
	"sort"

	"github.com/vdavid/cqmail/internal/imap"
	"github.com/vdavid/cqmail/internal/models"
)

// ListSent lists the live Sent folder, newest first. An account without a
// recognizable Sent folder has an empty listing.
func (s *Service) ListSent(ctx context.Context, id models.Identity) ([]models.FolderMessage, error) {
	return s.listFolder(ctx, id, s.opts.SentFolders)
}

// ListTrash lists the live Trash folder, newest first.
func (s *Service) ListTrash(ctx context.Context, id models.Identity) ([]models.FolderMessage, error) {
	return s.listFolder(ctx, id, s.opts.TrashFolders)
}

func (s *Service) listFolder(ctx context.Context, id models.Identity, candidates []string) ([]models.FolderMessage, error) {
	_, _, session, err := s.connect(ctx, id)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	folders, err := session.ListFolders()
	if err != nil {
		return nil, s.failed("list folders", id.UserID, err)
	}

	name, ok := imap.ResolveFolder(folders, candidates)
	if !ok {
		log.Printf("MailboxService: none of %v exists for user %s", candidates, id.UserID)
		return []models.FolderMessage{}, nil
	}

	mbox, err := session.Lock(name)
	if err != nil {
		return nil, s.failed("open "+name, id.UserID, err)
	}
	defer mbox.Release()

	uids, err := mbox.SearchAll()
	if err != nil {
		return nil, s.failed("search "+name, id.UserID, err)
	}

	messages, err := mbox.FetchMessages(uids)
	if err != nil {
		return nil, s.failed("fetch "+name, id.UserID, err)
	}

	out := make([]models.FolderMessage, 0, len(messages))
	for _, msg := range messages {
		parsed, err := imap.ParseMessage(msg.Raw)
		if err != nil {
			log.Printf("Warning: failed to parse UID %d in %s for user %s: %v", msg.UID, name, id.UserID, err)
			parsed = &models.ParsedMessage{Subject: msg.Subject, From: msg.From, To: msg.To, CC: msg.CC}
		}
		out = append(out, folderMessage(name, parsed, msg))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})

	return out, nil
}
