package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/cqmail/internal/models"
)

// ErrMessageNotFound is returned when a requested message cannot be found.
var ErrMessageNotFound = errors.New("message not found")

// ErrDuplicateMessage is returned when a record with the same message_id already exists.
var ErrDuplicateMessage = errors.New("message already exists")

const uniqueViolation = "23505"

const mailRecordColumns = `
	id::text,
	message_id,
	user_id::text,
	email_account_id::text,
	COALESCE(thread_id, ''),
	in_reply_to_id,
	parent_message_id,
	references_ids,
	COALESCE(from_email, ''),
	COALESCE("to", ''),
	COALESCE(cc, ''),
	COALESCE(bcc, ''),
	COALESCE(subject, ''),
	COALESCE(content, ''),
	COALESCE(html_content, ''),
	COALESCE(attachments, ''),
	COALESCE(email_type, ''),
	COALESCE(status, ''),
	COALESCE(folder, ''),
	is_read,
	is_starred,
	is_important,
	is_deleted,
	is_spam,
	forwarded,
	COALESCE(metadata, ''),
	priority::text,
	sent_at,
	delivered_at,
	created_at,
	updated_at`

func scanMailRecord(row pgx.Row) (*models.MailRecord, error) {
	var rec models.MailRecord
	var references []byte
	err := row.Scan(
		&rec.ID,
		&rec.MessageID,
		&rec.UserID,
		&rec.EmailAccountID,
		&rec.ThreadID,
		&rec.InReplyToID,
		&rec.ParentMessageID,
		&references,
		&rec.FromEmail,
		&rec.To,
		&rec.CC,
		&rec.BCC,
		&rec.Subject,
		&rec.Content,
		&rec.HTMLContent,
		&rec.Attachments,
		&rec.EmailType,
		&rec.Status,
		&rec.Folder,
		&rec.IsRead,
		&rec.IsStarred,
		&rec.IsImportant,
		&rec.IsDeleted,
		&rec.IsSpam,
		&rec.Forwarded,
		&rec.Metadata,
		&rec.Priority,
		&rec.SentAt,
		&rec.DeliveredAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ReferencesIDs = models.DecodeReferenceIDs(references)
	return &rec, nil
}

func collectMailRecords(rows pgx.Rows) ([]*models.MailRecord, error) {
	defer rows.Close()

	var records []*models.MailRecord
	for rows.Next() {
		rec, err := scanMailRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emails: %w", err)
	}

	return records, nil
}

// InsertMailRecord inserts a new record and populates its ID and timestamps.
// Returns ErrDuplicateMessage if the message_id is already stored.
func InsertMailRecord(ctx context.Context, pool *pgxpool.Pool, rec *models.MailRecord) error {
	references, err := rec.ReferencesIDs.Bytes()
	if err != nil {
		return fmt.Errorf("failed to encode references: %w", err)
	}

	err = pool.QueryRow(ctx, `
		INSERT INTO emails (
			message_id,
			user_id,
			email_account_id,
			thread_id,
			in_reply_to_id,
			parent_message_id,
			references_ids,
			from_email,
			"to",
			cc,
			bcc,
			subject,
			content,
			html_content,
			attachments,
			email_type,
			status,
			folder,
			is_read,
			is_starred,
			is_important,
			is_deleted,
			is_spam,
			forwarded,
			metadata,
			priority,
			sent_at,
			delivered_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26::priority, $27, $28
		)
		RETURNING id::text, created_at, updated_at
	`,
		rec.MessageID,
		rec.UserID,
		rec.EmailAccountID,
		nullIfEmpty(rec.ThreadID),
		rec.InReplyToID,
		rec.ParentMessageID,
		references,
		nullIfEmpty(rec.FromEmail),
		nullIfEmpty(rec.To),
		nullIfEmpty(rec.CC),
		nullIfEmpty(rec.BCC),
		nullIfEmpty(rec.Subject),
		nullIfEmpty(rec.Content),
		nullIfEmpty(rec.HTMLContent),
		nullIfEmpty(rec.Attachments),
		nullIfEmpty(rec.EmailType),
		nullIfEmpty(rec.Status),
		nullIfEmpty(rec.Folder),
		rec.IsRead,
		rec.IsStarred,
		rec.IsImportant,
		rec.IsDeleted,
		rec.IsSpam,
		rec.Forwarded,
		nullIfEmpty(rec.Metadata),
		rec.Priority,
		rec.SentAt,
		rec.DeliveredAt,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)

	if isUniqueViolation(err) {
		return ErrDuplicateMessage
	}
	if err != nil {
		return fmt.Errorf("failed to insert email: %w", err)
	}

	return nil
}

// FindMailRecordsByMessageIDs returns every record whose message_id is one of ids,
// regardless of owner. An empty ids slice matches nothing.
func FindMailRecordsByMessageIDs(ctx context.Context, pool *pgxpool.Pool, ids []string) ([]*models.MailRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := pool.Query(ctx, `
		SELECT `+mailRecordColumns+`
		FROM emails
		WHERE message_id = ANY($1)
		ORDER BY created_at, id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to find emails: %w", err)
	}

	return collectMailRecords(rows)
}

// FindFirstMailRecordByMessageIDs returns the oldest record whose message_id is one of ids.
func FindFirstMailRecordByMessageIDs(ctx context.Context, pool *pgxpool.Pool, ids []string) (*models.MailRecord, error) {
	if len(ids) == 0 {
		return nil, ErrMessageNotFound
	}

	rec, err := scanMailRecord(pool.QueryRow(ctx, `
		SELECT `+mailRecordColumns+`
		FROM emails
		WHERE message_id = ANY($1)
		ORDER BY created_at, id
		LIMIT 1
	`, ids))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMessageNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find email: %w", err)
	}

	return rec, nil
}

// ListMailRecordsForUser returns all records owned by the user.
func ListMailRecordsForUser(ctx context.Context, pool *pgxpool.Pool, userID string) ([]*models.MailRecord, error) {
	if !validUUIDs(userID) {
		return nil, nil
	}

	rows, err := pool.Query(ctx, `
		SELECT `+mailRecordColumns+`
		FROM emails
		WHERE user_id = $1
		ORDER BY sent_at NULLS FIRST, created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}

	return collectMailRecords(rows)
}

// MailRecordExists reports whether any record has a message_id in ids.
func MailRecordExists(ctx context.Context, pool *pgxpool.Pool, ids []string) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}

	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM emails WHERE message_id = ANY($1))
	`, ids).Scan(&exists)

	if err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}

	return exists, nil
}

// MarkMailRecordsTrashed flags the matching records of one user and account as deleted
// and moves them to the trash folder. Returns the number of updated rows.
func MarkMailRecordsTrashed(ctx context.Context, pool *pgxpool.Pool, ids []string, userID, accountID string) (int64, error) {
	if len(ids) == 0 || !validUUIDs(userID, accountID) {
		return 0, nil
	}

	tag, err := pool.Exec(ctx, `
		UPDATE emails
		SET is_deleted = true, folder = $4, updated_at = now()
		WHERE message_id = ANY($1) AND user_id = $2 AND email_account_id = $3
	`, ids, userID, accountID, models.FolderTrash)

	if err != nil {
		return 0, fmt.Errorf("failed to trash email: %w", err)
	}

	return tag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// validUUIDs reports whether every id parses as a UUID. Ids from tokens are not
// trusted to be well-formed, and Postgres rejects malformed uuid parameters.
func validUUIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}
