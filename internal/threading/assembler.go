package threading

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vdavid/cqmail/internal/db"
	"github.com/vdavid/cqmail/internal/models"
	"github.com/vdavid/cqmail/internal/msgid"
)

// ErrNotFoundOrDenied is returned when the message does not exist or belongs to
// another user. The two cases are indistinguishable to the caller.
var ErrNotFoundOrDenied = errors.New("message not found or access denied")

// Assembler rebuilds a user's view of a conversation.
type Assembler struct {
	store db.MailStore
}

// NewAssembler creates an Assembler reading from store.
func NewAssembler(store db.MailStore) *Assembler {
	return &Assembler{store: store}
}

// Thread is a conversation together with the record it was assembled from.
type Thread struct {
	Seed     *models.MailRecord
	Messages []*models.MailRecord
}

// ID returns the seed's thread id, or its message id for records stored
// without one.
func (t *Thread) ID() string {
	if t.Seed.ThreadID != "" {
		return t.Seed.ThreadID
	}
	return t.Seed.MessageID
}

// Conversation returns the user's records belonging to the thread of messageID,
// oldest first. See Thread.
func (a *Assembler) Conversation(ctx context.Context, messageID, userID string) ([]*models.MailRecord, error) {
	thread, err := a.Thread(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	return thread.Messages, nil
}

// Thread finds the user's record for messageID and collects its conversation,
// oldest first.
//
// A record belongs to the thread when its message_id is in the seed's ancestry
// (references, own id, thread id), when one of its references is, or when it shares
// the seed's thread_id. Membership is tested against the seed only; records reached
// through another member are not followed further.
func (a *Assembler) Thread(ctx context.Context, messageID, userID string) (*Thread, error) {
	variants := msgid.Variants(messageID)
	if len(variants) == 0 || userID == "" {
		return nil, ErrNotFoundOrDenied
	}

	matches, err := a.store.FindByMessageIDs(ctx, variants)
	if err != nil {
		return nil, fmt.Errorf("failed to find message: %w", err)
	}

	var seed *models.MailRecord
	for _, m := range matches {
		if m.UserID == userID {
			seed = m
			break
		}
	}
	if seed == nil {
		return nil, ErrNotFoundOrDenied
	}

	ancestry := make(map[string]struct{})
	addKey := func(id string) {
		if key := msgid.Strip(id); key != "" {
			ancestry[key] = struct{}{}
		}
	}
	for _, ref := range seed.ReferencesIDs.List() {
		addKey(ref)
	}
	addKey(seed.MessageID)
	addKey(seed.ThreadID)

	candidates, err := a.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	inAncestry := func(id string) bool {
		_, ok := ancestry[msgid.Strip(id)]
		return ok
	}

	messages := make([]*models.MailRecord, 0, len(candidates))
	for _, c := range candidates {
		if belongs(c, seed, inAncestry) {
			messages = append(messages, c)
		}
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].SentAtOrZero().Before(messages[j].SentAtOrZero())
	})

	return &Thread{Seed: seed, Messages: messages}, nil
}

func belongs(c, seed *models.MailRecord, inAncestry func(string) bool) bool {
	if inAncestry(c.MessageID) {
		return true
	}
	for _, ref := range c.ReferencesIDs.List() {
		if inAncestry(ref) {
			return true
		}
	}
	return seed.ThreadID != "" && c.ThreadID == seed.ThreadID
}
