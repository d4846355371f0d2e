package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mailminer/core/domain"
	"mailminer/core/port/out"
)

// ActionItemRepository implements out.ActionItemRepository on Postgres.
// Items are written through EmailRepository.SaveProcessed, inside the
// same transaction as their email row.
type ActionItemRepository struct {
	db *sqlx.DB
}

func NewActionItemRepository(db *sqlx.DB) out.ActionItemRepository {
	return &ActionItemRepository{db: db}
}

type actionItemRow struct {
	ID              int64          `db:"id"`
	ActionType      string         `db:"action_type"`
	Description     string         `db:"description"`
	DueDate         sql.NullTime   `db:"due_date"`
	ConfidenceScore float64        `db:"confidence_score"`
	SourceMessageID string         `db:"source_message_id"`
	Dismiss         bool           `db:"dismiss"`
	Metadata        sql.NullString `db:"metadata"`
	CreatedAt       time.Time      `db:"created_at"`
}

func (r actionItemRow) toDomain() *domain.ActionItem {
	item := &domain.ActionItem{
		ID:              r.ID,
		ActionType:      domain.ActionType(r.ActionType),
		Description:     r.Description,
		ConfidenceScore: r.ConfidenceScore,
		SourceMessageID: r.SourceMessageID,
		Dismiss:         r.Dismiss,
		CreatedAt:       r.CreatedAt,
	}
	if r.DueDate.Valid {
		due := r.DueDate.Time
		item.DueDate = &due
	}
	if r.Metadata.Valid && r.Metadata.String != "" {
		_ = json.Unmarshal([]byte(r.Metadata.String), &item.Metadata)
	}
	return item
}

// insertActionItem writes one item and its participant links inside
// the caller's transaction.
func insertActionItem(ctx context.Context, tx *sqlx.Tx, item *domain.ActionItem) error {
	var metadata sql.NullString
	if len(item.Metadata) > 0 {
		data, err := json.Marshal(item.Metadata)
		if err != nil {
			return fmt.Errorf("marshal action item metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO action_items (id, action_type, description, due_date,
		                          confidence_score, source_message_id, dismiss,
		                          metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`

	_, err := tx.ExecContext(ctx, query,
		item.ID,
		string(item.ActionType),
		item.Description,
		nullTime(item.DueDate),
		item.ConfidenceScore,
		item.SourceMessageID,
		item.Dismiss,
		metadata,
	)
	if err != nil {
		return translateError(fmt.Errorf("save action item: %w", err), "action item")
	}

	if err := linkParticipants(ctx, tx, item.ID, item.Owners, domain.RoleOwner); err != nil {
		return err
	}
	return linkParticipants(ctx, tx, item.ID, item.Waiters, domain.RoleWaiter)
}

func linkParticipants(ctx context.Context, tx *sqlx.Tx, itemID int64, aliases []string, role domain.ParticipantRole) error {
	for _, alias := range aliases {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO participants (alias) VALUES ($1) ON CONFLICT (alias) DO NOTHING`,
			alias,
		); err != nil {
			return fmt.Errorf("upsert participant: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO action_item_participants (action_item_id, alias, role)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (action_item_id, alias, role) DO NOTHING`,
			itemID, alias, string(role),
		); err != nil {
			return fmt.Errorf("link participant: %w", err)
		}
	}
	return nil
}

func (r *ActionItemRepository) Get(ctx context.Context, id int64) (*domain.ActionItem, error) {
	query := `
		SELECT id, action_type, description, due_date, confidence_score,
		       source_message_id, dismiss, metadata, created_at
		FROM action_items
		WHERE id = $1`

	var row actionItemRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, translateError(fmt.Errorf("get action item: %w", err), "action item")
	}

	item := row.toDomain()
	if err := r.loadParticipants(ctx, []*domain.ActionItem{item}); err != nil {
		return nil, err
	}
	return item, nil
}

func (r *ActionItemRepository) List(ctx context.Context, filter domain.ActionItemFilter) ([]*domain.ActionItem, error) {
	var conditions []string
	var args []interface{}
	argIdx := 1

	if filter.Dismissed != nil {
		conditions = append(conditions, fmt.Sprintf("dismiss = $%d", argIdx))
		args = append(args, *filter.Dismissed)
		argIdx++
	}
	if filter.DueBefore != nil {
		conditions = append(conditions, fmt.Sprintf("due_date IS NOT NULL AND due_date < $%d", argIdx))
		args = append(args, *filter.DueBefore)
		argIdx++
	}
	if filter.SourceMessageID != nil {
		conditions = append(conditions, fmt.Sprintf("source_message_id = $%d", argIdx))
		args = append(args, *filter.SourceMessageID)
		argIdx++
	}
	if filter.Owner != nil {
		conditions = append(conditions, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM action_item_participants p
			         WHERE p.action_item_id = action_items.id
			           AND p.role = 'owner' AND p.alias = $%d)`, argIdx))
		args = append(args, *filter.Owner)
		argIdx++
	}

	query := `
		SELECT id, action_type, description, due_date, confidence_score,
		       source_message_id, dismiss, metadata, created_at
		FROM action_items`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, filter.Offset)

	var rows []actionItemRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list action items: %w", err)
	}

	items := make([]*domain.ActionItem, len(rows))
	for i, row := range rows {
		items[i] = row.toDomain()
	}
	if err := r.loadParticipants(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ActionItemRepository) UpdateDismiss(ctx context.Context, id int64, dismiss bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE action_items SET dismiss = $1 WHERE id = $2`, dismiss, id)
	if err != nil {
		return fmt.Errorf("update dismiss: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update dismiss: %w", err)
	}
	if affected == 0 {
		return translateError(sql.ErrNoRows, "action item")
	}
	return nil
}

type participantRow struct {
	ActionItemID int64  `db:"action_item_id"`
	Alias        string `db:"alias"`
	Role         string `db:"role"`
}

func (r *ActionItemRepository) loadParticipants(ctx context.Context, items []*domain.ActionItem) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]int64, len(items))
	byID := make(map[int64]*domain.ActionItem, len(items))
	for i, item := range items {
		ids[i] = item.ID
		byID[item.ID] = item
	}

	var rows []participantRow
	query := `
		SELECT action_item_id, alias, role
		FROM action_item_participants
		WHERE action_item_id = ANY($1)`
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("load participants: %w", err)
	}

	for _, row := range rows {
		item := byID[row.ActionItemID]
		if item == nil {
			continue
		}
		switch domain.ParticipantRole(row.Role) {
		case domain.RoleOwner:
			item.Owners = append(item.Owners, row.Alias)
		case domain.RoleWaiter:
			item.Waiters = append(item.Waiters, row.Alias)
		}
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
