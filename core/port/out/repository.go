package out

import (
	"context"

	"mailminer/core/domain"
)

// EmailRepository persists processed emails keyed by provider message ID.
type EmailRepository interface {
	// Exists reports whether a message has already been processed.
	Exists(ctx context.Context, messageID string) (bool, error)
	// SaveProcessed writes the email row, its action items, and their
	// participant links as one atomic unit. A failed message leaves no
	// rows behind and is retried on the next run.
	SaveProcessed(ctx context.Context, email *domain.EmailRecord, items []*domain.ActionItem) error
	Get(ctx context.Context, messageID string) (*domain.EmailRecord, error)
	List(ctx context.Context, filter domain.EmailFilter) ([]*domain.EmailRecord, error)
}

// ActionItemRepository reads and updates action items. Writes happen
// only through EmailRepository.SaveProcessed so an item can never
// outlive a failed message write.
type ActionItemRepository interface {
	Get(ctx context.Context, id int64) (*domain.ActionItem, error)
	List(ctx context.Context, filter domain.ActionItemFilter) ([]*domain.ActionItem, error)
	UpdateDismiss(ctx context.Context, id int64, dismiss bool) error
}

// RunConfigurationRepository stores pipeline settings and the cursor.
type RunConfigurationRepository interface {
	// Active returns the current configuration, or nil when none exists yet.
	Active(ctx context.Context) (*domain.RunConfiguration, error)
	Save(ctx context.Context, cfg *domain.RunConfiguration) error
}

// ExecutionReportRepository stores the per-run audit records.
type ExecutionReportRepository interface {
	Save(ctx context.Context, report *domain.ExecutionReport) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.ExecutionReport, error)
}
