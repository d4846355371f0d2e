package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"mailminer/core/domain"
	"mailminer/core/port/out"
)

// RunConfigurationRepository stores the pipeline settings row and its
// incremental cursor.
type RunConfigurationRepository struct {
	db *sqlx.DB
}

func NewRunConfigurationRepository(db *sqlx.DB) out.RunConfigurationRepository {
	return &RunConfigurationRepository{db: db}
}

type runConfigurationRow struct {
	ID                  int64        `db:"id"`
	ConfidenceThreshold float64      `db:"confidence_threshold"`
	LastRunTime         sql.NullTime `db:"last_run_time"`
	CreatedAt           time.Time    `db:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at"`
}

func (r runConfigurationRow) toDomain() *domain.RunConfiguration {
	cfg := &domain.RunConfiguration{
		ID:                  r.ID,
		ConfidenceThreshold: r.ConfidenceThreshold,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
	if r.LastRunTime.Valid {
		last := r.LastRunTime.Time
		cfg.LastRunTime = &last
	}
	return cfg
}

// Active returns the newest configuration, or nil when none exists.
func (r *RunConfigurationRepository) Active(ctx context.Context) (*domain.RunConfiguration, error) {
	query := `
		SELECT id, confidence_threshold, last_run_time, created_at, updated_at
		FROM run_configurations
		ORDER BY created_at DESC
		LIMIT 1`

	var row runConfigurationRow
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active run configuration: %w", err)
	}
	return row.toDomain(), nil
}

func (r *RunConfigurationRepository) Save(ctx context.Context, cfg *domain.RunConfiguration) error {
	query := `
		INSERT INTO run_configurations (id, confidence_threshold, last_run_time, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET confidence_threshold = EXCLUDED.confidence_threshold,
		    last_run_time = EXCLUDED.last_run_time,
		    updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		cfg.ID,
		cfg.ConfidenceThreshold,
		nullTime(cfg.LastRunTime),
	)
	if err != nil {
		return fmt.Errorf("save run configuration: %w", err)
	}
	return nil
}

// ExecutionReportRepository stores the per-run audit records.
type ExecutionReportRepository struct {
	db *sqlx.DB
}

func NewExecutionReportRepository(db *sqlx.DB) out.ExecutionReportRepository {
	return &ExecutionReportRepository{db: db}
}

type executionReportRow struct {
	ID                   int64     `db:"id"`
	ConfigurationID      int64     `db:"configuration_id"`
	RunTime              time.Time `db:"run_time"`
	RunStatus            string    `db:"run_status"`
	RetrievedEmails      int       `db:"retrieved_emails"`
	GeneratedActionItems int       `db:"generated_action_items"`
	FailedEmails         int       `db:"failed_emails"`
	TotalExecutionMs     int64     `db:"total_execution_ms"`
}

func (r executionReportRow) toDomain() *domain.ExecutionReport {
	return &domain.ExecutionReport{
		ID:                   r.ID,
		ConfigurationID:      r.ConfigurationID,
		RunTime:              r.RunTime,
		Status:               domain.RunStatus(r.RunStatus),
		RetrievedEmails:      r.RetrievedEmails,
		GeneratedActionItems: r.GeneratedActionItems,
		FailedEmails:         r.FailedEmails,
		TotalExecutionTime:   time.Duration(r.TotalExecutionMs) * time.Millisecond,
	}
}

func (r *ExecutionReportRepository) Save(ctx context.Context, report *domain.ExecutionReport) (int64, error) {
	query := `
		INSERT INTO execution_reports (id, configuration_id, run_time, run_status,
		                               retrieved_emails, generated_action_items,
		                               failed_emails, total_execution_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		report.ID,
		report.ConfigurationID,
		report.RunTime,
		string(report.Status),
		report.RetrievedEmails,
		report.GeneratedActionItems,
		report.FailedEmails,
		report.TotalExecutionTime.Milliseconds(),
	)
	if err != nil {
		return 0, translateError(fmt.Errorf("save execution report: %w", err), "execution report")
	}
	return report.ID, nil
}

func (r *ExecutionReportRepository) ListRecent(ctx context.Context, limit int) ([]*domain.ExecutionReport, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, configuration_id, run_time, run_status, retrieved_emails,
		       generated_action_items, failed_emails, total_execution_ms
		FROM execution_reports
		ORDER BY run_time DESC
		LIMIT $1`

	var rows []executionReportRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list execution reports: %w", err)
	}

	reports := make([]*domain.ExecutionReport, len(rows))
	for i, row := range rows {
		reports[i] = row.toDomain()
	}
	return reports, nil
}
