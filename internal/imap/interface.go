package imap

import (
	"context"
	"time"
)

// Connector opens authenticated IMAP sessions.
// This allows the mailbox service to be tested against other implementations.
type Connector interface {
	// Connect dials and logs in. The whole handshake is bounded by the connect timeout.
	Connect(ctx context.Context, username, password string) (Session, error)
}

// Session is one logged-in IMAP connection, used for the duration of a single request.
type Session interface {
	// ListFolders returns the names of all folders.
	ListFolders() ([]string, error)

	// Lock selects folder and holds the mailbox lock until Release is called on the
	// returned Mailbox. Only one mailbox can be held at a time.
	Lock(folder string) (Mailbox, error)

	// Append stores a raw message in folder.
	Append(folder string, flags []string, date time.Time, raw []byte) error

	// Close logs out, giving up after the logout timeout. Errors are logged, never returned.
	Close()
}

// Mailbox is a selected folder held under the session's mailbox lock.
type Mailbox interface {
	Name() string

	// SearchAll returns the UIDs of every message, ascending.
	SearchAll() ([]uint32, error)

	// SearchHeaders returns the UIDs of messages where any of the header fields
	// contains any of the values.
	SearchHeaders(fields []string, values []string) ([]uint32, error)

	// FetchInfos fetches envelopes, flags and threading headers.
	FetchInfos(uids []uint32) ([]*MessageInfo, error)

	// FetchMessages fetches full raw messages along with their envelope data.
	FetchMessages(uids []uint32) ([]*FetchedMessage, error)

	// Move moves messages to dest.
	Move(uids []uint32, dest string) error

	// Release gives up the mailbox lock. It is safe to call more than once.
	Release()
}
