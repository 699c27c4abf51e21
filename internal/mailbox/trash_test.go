package mailbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/cqmail/internal/models"
	"github.com/vdavid/cqmail/internal/testutil"
	"github.com/vdavid/cqmail/internal/testutil/memstore"
)

func storedInboxRecord(messageID string) *models.MailRecord {
	return &models.MailRecord{
		ID:             "rec-" + messageID,
		MessageID:      messageID,
		UserID:         "user-1",
		EmailAccountID: "account-1",
		Folder:         models.FolderInbox,
	}
}

func TestTrash(t *testing.T) {
	ctx := context.Background()

	t.Run("moves the live message and marks the record", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.imap.CreateFolder(t, "Archive", "Deleted Items")
		env.imap.AddMessage(t, "Archive", testutil.TestMessage{MessageID: "<t@x>", From: "bob@example.com", To: testEmail})
		env.imap.AddMessage(t, "Archive", testutil.TestMessage{MessageID: "<keep@x>", From: "bob@example.com", To: testEmail})
		env.store.Put(storedInboxRecord("<t@x>"))

		result, err := env.svc.Trash(ctx, env.id, "t@x")
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.True(t, result.IMAPMoved)
		assert.True(t, result.DBUpdated)
		assert.Equal(t, "Message moved to trash", result.Message)

		assert.Equal(t, []string{"<keep@x>"}, env.imap.MessageIDs(t, "Archive"))
		assert.Equal(t, []string{"<t@x>"}, env.imap.MessageIDs(t, "Deleted Items"))

		rec := env.store.Get("<t@x>")
		assert.True(t, rec.IsDeleted)
		assert.Equal(t, models.FolderTrash, rec.Folder)

		trashed := env.events.ofType(EventTrashed)
		require.Len(t, trashed, 1)
		assert.Equal(t, map[string]any{"message_id": "<t@x>", "imap_moved": true, "db_updated": true}, trashed[0].Data)
	})

	t.Run("store only", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.imap.CreateFolder(t, "Trash")
		env.store.Put(storedInboxRecord("<gone@x>"))

		result, err := env.svc.Trash(ctx, env.id, "<gone@x>")
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.False(t, result.IMAPMoved)
		assert.True(t, result.DBUpdated)
		assert.Contains(t, result.Message, "not found on the mail server")
	})

	t.Run("live only", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.imap.CreateFolder(t, "Trash")
		env.imap.AddMessage(t, "INBOX", testutil.TestMessage{MessageID: "<live@x>", From: "bob@example.com", To: testEmail})

		result, err := env.svc.Trash(ctx, env.id, "live@x")
		require.NoError(t, err)
		assert.True(t, result.IMAPMoved)
		assert.False(t, result.DBUpdated)
		assert.Contains(t, result.Message, "not in the local store")
		assert.Empty(t, env.imap.MessageIDs(t, "INBOX"))
	})

	t.Run("neither", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.imap.CreateFolder(t, "Trash")

		_, err := env.svc.Trash(ctx, env.id, "<missing@z>")
		assert.ErrorIs(t, err, ErrMessageNotFound)
		assert.Empty(t, env.events.ofType(EventTrashed))
	})

	t.Run("other user's record is untouched", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		other := storedInboxRecord("<theirs@x>")
		other.UserID = "user-2"
		env.store.Put(other)

		_, err := env.svc.Trash(ctx, env.id, "<theirs@x>")
		assert.ErrorIs(t, err, ErrMessageNotFound)
		assert.False(t, env.store.Get("<theirs@x>").IsDeleted)
	})

	t.Run("no trash folder falls back to the store", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.imap.AddMessage(t, "INBOX", testutil.TestMessage{MessageID: "<t@x>", From: "bob@example.com", To: testEmail})
		env.store.Put(storedInboxRecord("<t@x>"))

		result, err := env.svc.Trash(ctx, env.id, "<t@x>")
		require.NoError(t, err)
		assert.False(t, result.IMAPMoved)
		assert.True(t, result.DBUpdated)
		assert.Len(t, env.imap.MessageIDs(t, "INBOX"), 1)
	})

	t.Run("store failure still moves the live message", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.imap.CreateFolder(t, "Trash")
		env.imap.AddMessage(t, "INBOX", testutil.TestMessage{MessageID: "<t@x>", From: "bob@example.com", To: testEmail})

		// Account lookup shares the store, so fail only the update.
		env.svc.store = failingTrashStore{env.store}

		result, err := env.svc.Trash(ctx, env.id, "<t@x>")
		require.NoError(t, err)
		assert.True(t, result.IMAPMoved)
		assert.False(t, result.DBUpdated)
	})

	t.Run("blank id", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		_, err := env.svc.Trash(ctx, env.id, "  ")
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}

type failingTrashStore struct {
	*memstore.Store
}

func (failingTrashStore) MarkTrashed(context.Context, []string, string, string) (int64, error) {
	return 0, errors.New("deadlock detected")
}
