package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mailminer/core/domain"
	"mailminer/core/port/out"
)

// EmailRepository implements out.EmailRepository on Postgres.
type EmailRepository struct {
	db *sqlx.DB
}

func NewEmailRepository(db *sqlx.DB) out.EmailRepository {
	return &EmailRepository{db: db}
}

type emailRow struct {
	ID             int64          `db:"id"`
	MessageID      string         `db:"message_id"`
	ThreadID       sql.NullString `db:"thread_id"`
	Subject        string         `db:"subject"`
	Sender         string         `db:"sender"`
	Recipients     pq.StringArray `db:"recipients"`
	RawContent     string         `db:"raw_content"`
	CleanedContent string         `db:"cleaned_content"`
	Timestamp      time.Time      `db:"timestamp"`
	ProcessedAt    time.Time      `db:"processed_at"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r emailRow) toDomain() *domain.EmailRecord {
	email := &domain.EmailRecord{
		ID:             r.ID,
		MessageID:      r.MessageID,
		Subject:        r.Subject,
		Sender:         domain.ParseAddress(r.Sender),
		RawContent:     r.RawContent,
		CleanedContent: r.CleanedContent,
		Timestamp:      r.Timestamp,
		ProcessedAt:    r.ProcessedAt,
		CreatedAt:      r.CreatedAt,
	}
	if r.ThreadID.Valid {
		email.ThreadID = r.ThreadID.String
	}
	for _, recipient := range r.Recipients {
		email.Recipients = append(email.Recipients, domain.ParseAddress(recipient))
	}
	return email
}

func (r *EmailRepository) Exists(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM emails WHERE message_id = $1)`
	if err := r.db.GetContext(ctx, &exists, query, messageID); err != nil {
		return false, fmt.Errorf("check email exists: %w", err)
	}
	return exists, nil
}

// SaveProcessed commits the email row, its action items, and their
// participant links in one transaction. Either the whole message lands
// or none of it does, so a retry never finds half-written state.
func (r *EmailRepository) SaveProcessed(ctx context.Context, email *domain.EmailRecord, items []*domain.ActionItem) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save processed message: %w", err)
	}
	defer tx.Rollback()

	if err := insertEmail(ctx, tx, email); err != nil {
		return err
	}
	for _, item := range items {
		if err := insertActionItem(ctx, tx, item); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save processed message: %w", err)
	}
	return nil
}

func insertEmail(ctx context.Context, tx *sqlx.Tx, email *domain.EmailRecord) error {
	recipients := make(pq.StringArray, 0, len(email.Recipients))
	for _, recipient := range email.Recipients {
		recipients = append(recipients, recipient.String())
	}

	query := `
		INSERT INTO emails (id, message_id, thread_id, subject, sender, recipients,
		                    raw_content, cleaned_content, timestamp, processed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`

	_, err := tx.ExecContext(ctx, query,
		email.ID,
		email.MessageID,
		nullString(email.ThreadID),
		email.Subject,
		email.Sender.String(),
		recipients,
		email.RawContent,
		email.CleanedContent,
		email.Timestamp,
		email.ProcessedAt,
	)
	if err != nil {
		return translateError(fmt.Errorf("save email: %w", err), "email")
	}
	return nil
}

func (r *EmailRepository) Get(ctx context.Context, messageID string) (*domain.EmailRecord, error) {
	query := `
		SELECT id, message_id, thread_id, subject, sender, recipients,
		       raw_content, cleaned_content, timestamp, processed_at, created_at
		FROM emails
		WHERE message_id = $1`

	var row emailRow
	if err := r.db.GetContext(ctx, &row, query, messageID); err != nil {
		return nil, translateError(fmt.Errorf("get email: %w", err), "email")
	}
	return row.toDomain(), nil
}

func (r *EmailRepository) List(ctx context.Context, filter domain.EmailFilter) ([]*domain.EmailRecord, error) {
	var conditions []string
	var args []interface{}
	argIdx := 1

	if filter.Since != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", argIdx))
		args = append(args, *filter.Since)
		argIdx++
	}

	query := `
		SELECT id, message_id, thread_id, subject, sender, recipients,
		       raw_content, cleaned_content, timestamp, processed_at, created_at
		FROM emails`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, filter.Offset)

	var rows []emailRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}

	emails := make([]*domain.EmailRecord, len(rows))
	for i, row := range rows {
		emails[i] = row.toDomain()
	}
	return emails, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
