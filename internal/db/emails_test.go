package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/cqmail/internal/models"
	"github.com/vdavid/cqmail/internal/msgid"
	"github.com/vdavid/cqmail/internal/testutil"
)

func createAccount(t *testing.T, ctx context.Context, pool *pgxpool.Pool, email string) *models.EmailAccount {
	t.Helper()

	user, err := GetOrCreateUser(ctx, pool, email)
	require.NoError(t, err)

	account := &models.EmailAccount{
		UserID:               user.ID,
		Email:                email,
		EncryptedAppPassword: []byte("encrypted"),
		IsDefault:            true,
	}
	require.NoError(t, SaveEmailAccount(ctx, pool, account))
	return account
}

func newRecord(account *models.EmailAccount, messageID string, sentAt time.Time) *models.MailRecord {
	priority := models.PriorityNormal
	return &models.MailRecord{
		MessageID:      messageID,
		UserID:         account.UserID,
		EmailAccountID: account.ID,
		ThreadID:       messageID,
		ReferencesIDs:  models.NewReferenceIDs(messageID),
		FromEmail:      account.Email,
		To:             "bob@example.com",
		Subject:        "Hello",
		Content:        "Hi Bob",
		EmailType:      models.EmailTypeSent,
		Status:         models.StatusSent,
		Folder:         models.FolderSent,
		IsRead:         true,
		Priority:       &priority,
		SentAt:         &sentAt,
		DeliveredAt:    &sentAt,
	}
}

func TestInsertAndFindMailRecord(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	account := createAccount(t, ctx, pool, "alice@example.com")

	sentAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := newRecord(account, "<a@x>", sentAt)
	require.NoError(t, InsertMailRecord(ctx, pool, rec))
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	t.Run("finds by any id variant", func(t *testing.T) {
		for _, raw := range []string{"<a@x>", "a@x", " <a@x> "} {
			found, err := FindFirstMailRecordByMessageIDs(ctx, pool, msgid.Variants(raw))
			require.NoError(t, err, raw)
			assert.Equal(t, rec.ID, found.ID)
		}
	})

	t.Run("round-trips every column", func(t *testing.T) {
		found, err := FindFirstMailRecordByMessageIDs(ctx, pool, []string{"<a@x>"})
		require.NoError(t, err)

		assert.Equal(t, account.UserID, found.UserID)
		assert.Equal(t, account.ID, found.EmailAccountID)
		assert.Equal(t, "<a@x>", found.ThreadID)
		assert.Nil(t, found.InReplyToID)
		assert.Nil(t, found.ParentMessageID)
		assert.Equal(t, []string{"<a@x>"}, found.ReferencesIDs.List())
		assert.False(t, found.ReferencesIDs.IsEncoded())
		assert.Equal(t, "Hello", found.Subject)
		assert.Equal(t, "", found.CC)
		assert.Equal(t, models.FolderSent, found.Folder)
		assert.True(t, found.IsRead)
		require.NotNil(t, found.Priority)
		assert.Equal(t, models.PriorityNormal, *found.Priority)
		require.NotNil(t, found.SentAt)
		assert.True(t, sentAt.Equal(*found.SentAt))
	})

	t.Run("rejects duplicate message id", func(t *testing.T) {
		dup := newRecord(account, "<a@x>", sentAt)
		err := InsertMailRecord(ctx, pool, dup)
		assert.True(t, errors.Is(err, ErrDuplicateMessage))
	})

	t.Run("returns not found for unknown id", func(t *testing.T) {
		_, err := FindFirstMailRecordByMessageIDs(ctx, pool, msgid.Variants("<missing@z>"))
		assert.True(t, errors.Is(err, ErrMessageNotFound))
	})

	t.Run("blank id matches nothing", func(t *testing.T) {
		_, err := FindFirstMailRecordByMessageIDs(ctx, pool, msgid.Variants("  "))
		assert.True(t, errors.Is(err, ErrMessageNotFound))

		exists, err := MailRecordExists(ctx, pool, msgid.Variants(""))
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestReferencesIDsStoredAsEncodedString(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	account := createAccount(t, ctx, pool, "alice@example.com")

	rec := newRecord(account, "<b@x>", time.Now())
	require.NoError(t, InsertMailRecord(ctx, pool, rec))

	t.Run("decodes string-encoded array", func(t *testing.T) {
		_, err := pool.Exec(ctx, `UPDATE emails SET references_ids = to_jsonb($1::text) WHERE id = $2`,
			`["<a@x>","<b@x>"]`, rec.ID)
		require.NoError(t, err)

		found, err := FindFirstMailRecordByMessageIDs(ctx, pool, []string{"<b@x>"})
		require.NoError(t, err)
		assert.True(t, found.ReferencesIDs.IsEncoded())
		assert.Equal(t, []string{"<a@x>", "<b@x>"}, found.ReferencesIDs.List())
	})

	t.Run("malformed string decodes to empty list", func(t *testing.T) {
		_, err := pool.Exec(ctx, `UPDATE emails SET references_ids = to_jsonb($1::text) WHERE id = $2`,
			`[not json`, rec.ID)
		require.NoError(t, err)

		found, err := FindFirstMailRecordByMessageIDs(ctx, pool, []string{"<b@x>"})
		require.NoError(t, err)
		assert.Empty(t, found.ReferencesIDs.List())
	})

	t.Run("null decodes to empty list", func(t *testing.T) {
		_, err := pool.Exec(ctx, `UPDATE emails SET references_ids = NULL WHERE id = $1`, rec.ID)
		require.NoError(t, err)

		found, err := FindFirstMailRecordByMessageIDs(ctx, pool, []string{"<b@x>"})
		require.NoError(t, err)
		assert.Empty(t, found.ReferencesIDs.List())
	})
}

func TestListMailRecordsForUser(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	alice := createAccount(t, ctx, pool, "alice@example.com")
	bob := createAccount(t, ctx, pool, "bob@example.com")

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, InsertMailRecord(ctx, pool, newRecord(alice, "<2@x>", base.Add(time.Hour))))
	require.NoError(t, InsertMailRecord(ctx, pool, newRecord(alice, "<1@x>", base)))
	require.NoError(t, InsertMailRecord(ctx, pool, newRecord(bob, "<3@x>", base)))

	records, err := ListMailRecordsForUser(ctx, pool, alice.UserID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "<1@x>", records[0].MessageID)
	assert.Equal(t, "<2@x>", records[1].MessageID)

	records, err = ListMailRecordsForUser(ctx, pool, "not-a-uuid")
	require.NoError(t, err)
	assert.Empty(t, records)

	all, err := FindMailRecordsByMessageIDs(ctx, pool, []string{"<1@x>", "<3@x>"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMarkMailRecordsTrashed(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	alice := createAccount(t, ctx, pool, "alice@example.com")
	bob := createAccount(t, ctx, pool, "bob@example.com")

	require.NoError(t, InsertMailRecord(ctx, pool, newRecord(alice, "<t@x>", time.Now())))

	t.Run("other user cannot trash", func(t *testing.T) {
		n, err := MarkMailRecordsTrashed(ctx, pool, msgid.Variants("t@x"), bob.UserID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("owner trashes by unwrapped id", func(t *testing.T) {
		n, err := MarkMailRecordsTrashed(ctx, pool, msgid.Variants("t@x"), alice.UserID, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		found, err := FindFirstMailRecordByMessageIDs(ctx, pool, []string{"<t@x>"})
		require.NoError(t, err)
		assert.True(t, found.IsDeleted)
		assert.Equal(t, models.FolderTrash, found.Folder)
	})
}

func TestGetEmailAccount(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	alice := createAccount(t, ctx, pool, "alice@example.com")
	bob := createAccount(t, ctx, pool, "bob@example.com")

	t.Run("returns own account", func(t *testing.T) {
		account, err := GetEmailAccount(ctx, pool, alice.UserID, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", account.Email)
		assert.Equal(t, []byte("encrypted"), account.EncryptedAppPassword)
	})

	t.Run("hides other user's account", func(t *testing.T) {
		_, err := GetEmailAccount(ctx, pool, bob.UserID, alice.ID)
		assert.True(t, errors.Is(err, ErrEmailAccountNotFound))
	})

	t.Run("malformed ids are not found", func(t *testing.T) {
		_, err := GetEmailAccount(ctx, pool, "user", "account")
		assert.True(t, errors.Is(err, ErrEmailAccountNotFound))
	})

	t.Run("save updates existing account", func(t *testing.T) {
		updated := &models.EmailAccount{
			UserID:               alice.UserID,
			Email:                alice.Email,
			EncryptedAppPassword: []byte("rotated"),
			IsDefault:            true,
		}
		require.NoError(t, SaveEmailAccount(ctx, pool, updated))
		assert.Equal(t, alice.ID, updated.ID)
	})
}

func TestListEmailAccounts(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	primary := createAccount(t, ctx, pool, "primary@example.com")

	secondary := &models.EmailAccount{
		UserID:               primary.UserID,
		Email:                "secondary@example.com",
		EncryptedAppPassword: []byte("encrypted"),
	}
	require.NoError(t, SaveEmailAccount(ctx, pool, secondary))
	createAccount(t, ctx, pool, "stranger@example.com")

	t.Run("lists own accounts default first", func(t *testing.T) {
		accounts, err := ListEmailAccounts(ctx, pool, primary.UserID)
		require.NoError(t, err)
		require.Len(t, accounts, 2)
		assert.Equal(t, primary.ID, accounts[0].ID)
		assert.Equal(t, secondary.ID, accounts[1].ID)
	})

	t.Run("malformed user id lists nothing", func(t *testing.T) {
		accounts, err := ListEmailAccounts(ctx, pool, "user")
		require.NoError(t, err)
		assert.Empty(t, accounts)
	})
}
