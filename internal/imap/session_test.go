package imap

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/cqmail/internal/testutil"
)

func newTestDialer(address string) *Dialer {
	return &Dialer{
		Address:        address,
		ConnectTimeout: 2 * time.Second,
		LogoutTimeout:  time.Second,
	}
}

func connect(t *testing.T, server *testutil.TestIMAPServer) Session {
	t.Helper()
	sess, err := newTestDialer(server.Address).Connect(context.Background(), server.Username(), server.Password())
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	return sess
}

func TestConnect(t *testing.T) {
	server := testutil.NewTestIMAPServer(t)

	t.Run("rejects bad credentials", func(t *testing.T) {
		_, err := newTestDialer(server.Address).Connect(context.Background(), server.Username(), "wrong")
		assert.ErrorContains(t, err, "failed to authenticate")
	})

	t.Run("times out on a server that never greets", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer func() { _ = listener.Close() }()

		go func() {
			for {
				conn, err := listener.Accept()
				if err != nil {
					return
				}
				defer func() { _ = conn.Close() }()
			}
		}()

		dialer := newTestDialer(listener.Addr().String())
		dialer.ConnectTimeout = 200 * time.Millisecond

		start := time.Now()
		_, err = dialer.Connect(context.Background(), "u", "p")
		assert.Error(t, err)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		dialer := newTestDialer("10.255.255.1:993")
		dialer.ConnectTimeout = 5 * time.Second

		_, err := dialer.Connect(ctx, "u", "p")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		sess, err := newTestDialer(server.Address).Connect(context.Background(), server.Username(), server.Password())
		require.NoError(t, err)
		sess.Close()
		sess.Close()
	})
}

func TestSessionFoldersAndAppend(t *testing.T) {
	server := testutil.NewTestIMAPServer(t)
	server.CreateFolder(t, "Sent")
	sess := connect(t, server)

	folders, err := sess.ListFolders()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"INBOX", "Sent"}, folders)

	raw := testutil.TestMessage{MessageID: "<appended@x>", From: "a@x", To: "b@x", Subject: "s"}.Raw()
	require.NoError(t, sess.Append("Sent", []string{imap.SeenFlag}, time.Now(), raw))
	assert.Equal(t, []string{"<appended@x>"}, server.MessageIDs(t, "Sent"))

	assert.Error(t, sess.Append("Missing", nil, time.Now(), raw))

	_, err = sess.Lock("Missing")
	assert.Error(t, err)

	// A failed Lock must not keep the mailbox lock.
	mbox, err := sess.Lock("INBOX")
	require.NoError(t, err)
	mbox.Release()
	mbox.Release()
}

func TestMailboxSearchAndFetch(t *testing.T) {
	server := testutil.NewTestIMAPServer(t)
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	server.AddMessage(t, "INBOX", testutil.TestMessage{
		MessageID: "<root@x>", From: "Alice <alice@x>", To: "bob@x", Subject: "Plan", Date: base,
	})
	server.AddMessage(t, "INBOX", testutil.TestMessage{
		MessageID: "<reply@x>", InReplyTo: "<root@x>", References: "<root@x>",
		From: "bob@x", To: "alice@x", Subject: "Re: Plan", Date: base.Add(time.Hour),
		Flags: []string{imap.SeenFlag, imap.FlaggedFlag},
	})
	server.AddMessage(t, "INBOX", testutil.TestMessage{
		MessageID: "<other@x>", From: "carol@x", To: "alice@x", Subject: "Lunch", Date: base.Add(2 * time.Hour),
	})

	sess := connect(t, server)
	mbox, err := sess.Lock("INBOX")
	require.NoError(t, err)
	defer mbox.Release()
	assert.Equal(t, "INBOX", mbox.Name())

	all, err := mbox.SearchAll()
	require.NoError(t, err)
	require.Len(t, all, 3)

	t.Run("header search with OR", func(t *testing.T) {
		uids, err := mbox.SearchHeaders([]string{"Message-ID"}, []string{"<root@x>", "<other@x>"})
		require.NoError(t, err)
		assert.Equal(t, []uint32{all[0], all[2]}, uids)

		uids, err = mbox.SearchHeaders([]string{"Message-ID", "In-Reply-To", "References"}, []string{"<root@x>"})
		require.NoError(t, err)
		assert.Equal(t, []uint32{all[0], all[1]}, uids)

		uids, err = mbox.SearchHeaders([]string{"Message-ID"}, []string{""})
		require.NoError(t, err)
		assert.Empty(t, uids)
	})

	t.Run("fetch infos", func(t *testing.T) {
		infos, err := mbox.FetchInfos(all)
		require.NoError(t, err)
		require.Len(t, infos, 3)

		byID := map[string]*MessageInfo{}
		for _, info := range infos {
			byID[info.MessageID] = info
		}
		reply := byID["<reply@x>"]
		require.NotNil(t, reply)
		assert.Equal(t, "<root@x>", reply.InReplyTo)
		assert.Equal(t, []string{"<root@x>"}, reply.References)
		assert.Equal(t, "Re: Plan", reply.Subject)
		assert.True(t, reply.HasFlag(imap.FlaggedFlag))
		assert.True(t, base.Add(time.Hour).Equal(reply.Date))

		root := byID["<root@x>"]
		require.NotNil(t, root)
		assert.Equal(t, []string{"Alice <alice@x>"}, root.From)
		assert.Empty(t, root.References)
	})

	t.Run("fetch full messages", func(t *testing.T) {
		messages, err := mbox.FetchMessages(all[1:2])
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, "<reply@x>", messages[0].MessageID)
		assert.Equal(t, []string{"<root@x>"}, messages[0].References)
		assert.Contains(t, string(messages[0].Raw), "Test message body.")

		parsed, err := ParseMessage(messages[0].Raw)
		require.NoError(t, err)
		assert.Equal(t, "<reply@x>", parsed.MessageID)
	})

	t.Run("empty uid sets do nothing", func(t *testing.T) {
		infos, err := mbox.FetchInfos(nil)
		require.NoError(t, err)
		assert.Empty(t, infos)
		assert.NoError(t, mbox.Move(nil, "Trash"))
	})
}

func TestMailboxMove(t *testing.T) {
	server := testutil.NewTestIMAPServer(t)
	server.CreateFolder(t, "Trash")
	server.AddMessage(t, "INBOX", testutil.TestMessage{MessageID: "<keep@x>", From: "a@x", To: "b@x", Subject: "k"})
	server.AddMessage(t, "INBOX", testutil.TestMessage{MessageID: "<bin@x>", From: "a@x", To: "b@x", Subject: "b"})

	sess := connect(t, server)
	mbox, err := sess.Lock("INBOX")
	require.NoError(t, err)

	uids, err := mbox.SearchHeaders([]string{"Message-ID"}, []string{"<bin@x>"})
	require.NoError(t, err)
	require.Len(t, uids, 1)

	require.NoError(t, mbox.Move(uids, "Trash"))
	mbox.Release()

	assert.Equal(t, []string{"<keep@x>"}, server.MessageIDs(t, "INBOX"))
	assert.Equal(t, []string{"<bin@x>"}, server.MessageIDs(t, "Trash"))
}

func TestMailboxMoveFallsBackToCopy(t *testing.T) {
	server := testutil.NewTestIMAPServerWithoutMove(t)
	server.CreateFolder(t, "Trash")
	server.AddMessage(t, "INBOX", testutil.TestMessage{MessageID: "<keep@x>", From: "a@x", To: "b@x", Subject: "k"})
	server.AddMessage(t, "INBOX", testutil.TestMessage{MessageID: "<bin@x>", From: "a@x", To: "b@x", Subject: "b"})

	sess := connect(t, server)
	mbox, err := sess.Lock("INBOX")
	require.NoError(t, err)

	uids, err := mbox.SearchHeaders([]string{"Message-ID"}, []string{"<bin@x>"})
	require.NoError(t, err)
	require.Len(t, uids, 1)

	require.NoError(t, mbox.Move(uids, "Trash"))
	mbox.Release()

	assert.Equal(t, []string{"<keep@x>"}, server.MessageIDs(t, "INBOX"))
	assert.Equal(t, []string{"<bin@x>"}, server.MessageIDs(t, "Trash"))
}

func TestMailboxMoveMissingDestination(t *testing.T) {
	server := testutil.NewTestIMAPServerWithoutMove(t)
	server.AddMessage(t, "INBOX", testutil.TestMessage{MessageID: "<stay@x>", From: "a@x", To: "b@x", Subject: "s"})

	sess := connect(t, server)
	mbox, err := sess.Lock("INBOX")
	require.NoError(t, err)
	defer mbox.Release()

	uids, err := mbox.SearchHeaders([]string{"Message-ID"}, []string{"<stay@x>"})
	require.NoError(t, err)

	err = mbox.Move(uids, "Nowhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to move messages from INBOX to Nowhere")
}
