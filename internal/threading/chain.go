// Package threading assigns conversation identity to messages and reassembles
// conversations from the message store.
package threading

import (
	"context"
	"errors"
	"log"

	"github.com/vdavid/cqmail/internal/db"
	"github.com/vdavid/cqmail/internal/models"
	"github.com/vdavid/cqmail/internal/msgid"
)

// Chain is the ancestry computed for a message about to be stored.
type Chain struct {
	ThreadID        string
	InReplyToID     *string
	ParentMessageID *string
	References      models.ReferenceIDs
}

// Apply copies the chain onto rec.
func (c Chain) Apply(rec *models.MailRecord) {
	rec.ThreadID = c.ThreadID
	rec.InReplyToID = c.InReplyToID
	rec.ParentMessageID = c.ParentMessageID
	rec.ReferencesIDs = c.References
}

// ChainBuilder computes thread linkage for new messages from the store.
type ChainBuilder struct {
	store db.MailStore
}

// NewChainBuilder creates a ChainBuilder reading from store.
func NewChainBuilder(store db.MailStore) *ChainBuilder {
	return &ChainBuilder{store: store}
}

// Build returns the chain for the message newID replying to (or forwarding) parentID.
// An empty parentID starts a new thread. A parent that is not in the store, or a
// store that cannot be read, also starts a new thread; Build never fails.
//
// The parent is looked up across all owners, since the other side of a conversation
// may have been stored under a different mailbox.
func (b *ChainBuilder) Build(ctx context.Context, newID, parentID string) Chain {
	self := msgid.Canonical(newID)

	if msgid.IsBlank(parentID) {
		return Chain{
			ThreadID:   self,
			References: referencesOf(self),
		}
	}

	parentCanonical := msgid.Canonical(parentID)
	chain := Chain{ParentMessageID: &parentCanonical}

	parent, err := b.store.FindFirstByMessageIDs(ctx, msgid.Variants(parentID))
	if err != nil {
		if !errors.Is(err, db.ErrMessageNotFound) {
			log.Printf("Warning: ChainBuilder: failed to look up parent %s: %v", parentCanonical, err)
		}
		chain.ThreadID = self
		chain.References = models.NewReferenceIDs(parentCanonical)
		return chain
	}

	parentStoreID := parent.ID
	chain.InReplyToID = &parentStoreID
	chain.ThreadID = firstNonEmpty(parent.ThreadID, parent.MessageID, self)
	chain.References = models.NewReferenceIDs(appendUnique(parent.ReferencesIDs.List(), parentCanonical)...)
	return chain
}

func referencesOf(id string) models.ReferenceIDs {
	if id == "" {
		return models.NewReferenceIDs()
	}
	return models.NewReferenceIDs(id)
}

// appendUnique drops repeated ids (in any bracket form) from refs and then appends
// id unless it is already present.
func appendUnique(refs []string, id string) []string {
	seen := make(map[string]struct{}, len(refs)+1)
	out := make([]string, 0, len(refs)+1)
	for _, ref := range append(refs, id) {
		key := msgid.Strip(ref)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ref)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
