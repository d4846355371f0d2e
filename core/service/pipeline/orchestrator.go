// Package pipeline orchestrates one incremental extraction run:
// fetch new messages, normalize, extract, gate, persist, report.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mailminer/core/domain"
	"mailminer/core/port/out"
	"mailminer/core/service/gate"
	"mailminer/core/service/normalize"
	"mailminer/pkg/apperr"
	"mailminer/pkg/logger"
	"mailminer/pkg/snowflake"
)

// Extractor produces action item candidates for one email.
type Extractor interface {
	Extract(ctx context.Context, email *domain.EmailRecord) ([]domain.Candidate, error)
}

// Options tunes run behavior that does not live in the run
// configuration row.
type Options struct {
	// DefaultThreshold seeds the run configuration when none exists.
	DefaultThreshold float64
	// Lookback bounds the first fetch when no cursor exists yet.
	Lookback time.Duration
	// Recipients narrows the provider fetch. Empty fetches everything.
	Recipients []string
}

// Orchestrator drives the run state machine. Failures of a single
// message never abort the run; only a fetch failure does.
type Orchestrator struct {
	provider  out.MailProvider
	emails    out.EmailRepository
	configs   out.RunConfigurationRepository
	reports   out.ExecutionReportRepository
	board     out.BoardSyncPort
	lock      out.RunLock
	extractor Extractor
	opts      Options
}

func NewOrchestrator(
	provider out.MailProvider,
	emails out.EmailRepository,
	configs out.RunConfigurationRepository,
	reports out.ExecutionReportRepository,
	board out.BoardSyncPort,
	lock out.RunLock,
	extractor Extractor,
	opts Options,
) *Orchestrator {
	if opts.Lookback <= 0 {
		opts.Lookback = 7 * 24 * time.Hour
	}
	return &Orchestrator{
		provider:  provider,
		emails:    emails,
		configs:   configs,
		reports:   reports,
		board:     board,
		lock:      lock,
		extractor: extractor,
		opts:      opts,
	}
}

// Run executes one pipeline run and returns its execution report.
// Exactly one report is written per run that acquires the claim; a
// rejected invocation returns ErrRunInProgress and writes nothing.
func (o *Orchestrator) Run(ctx context.Context) (*domain.ExecutionReport, error) {
	cfg, err := o.activeConfiguration(ctx)
	if err != nil {
		return nil, err
	}

	acquired, err := o.lock.Acquire(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, apperr.RunInProgress(cfg.ID)
	}
	defer func() {
		if err := o.lock.Release(context.WithoutCancel(ctx), cfg.ID); err != nil {
			logger.WithError(err).Error("failed to release run lock")
		}
	}()

	runID := uuid.NewString()
	ctx = logger.ContextWithRunID(ctx, runID)
	start := time.Now()
	log := logger.WithContext(ctx)
	log.Info("run started")

	since := start.Add(-o.opts.Lookback)
	if cfg.LastRunTime != nil {
		since = *cfg.LastRunTime
	}

	messages, err := o.provider.Fetch(ctx, since, out.FetchFilters{Recipients: o.opts.Recipients})
	if err != nil {
		fetchErr := apperr.FetchFailed(err)
		report := o.writeReport(ctx, cfg, start, domain.RunStatusFailure, 0, 0, 0)
		log.WithError(fetchErr).Error("run aborted: fetch failed")
		return report, fetchErr
	}

	var (
		retrieved int
		generated int
		failed    int
		maxTS     time.Time
		seen      = map[string]bool{}
	)

	for _, msg := range messages {
		if seen[msg.MessageID] {
			continue
		}
		seen[msg.MessageID] = true

		processed, err := o.emails.Exists(ctx, msg.MessageID)
		if err != nil {
			retrieved++
			failed++
			log.WithField("message_id", msg.MessageID).WithError(err).Error("processed check failed")
			continue
		}
		if processed {
			continue
		}
		retrieved++

		count, err := o.processMessage(ctx, cfg, msg, log)
		if err != nil {
			failed++
			log.WithField("message_id", msg.MessageID).WithError(err).Error("message failed")
			continue
		}

		generated += count
		if msg.Timestamp.After(maxTS) {
			maxTS = msg.Timestamp
		}
	}

	status := runStatus(retrieved, failed)

	// The cursor only moves when at least one message was fully
	// processed; a total failure leaves the batch fetchable again.
	if !maxTS.IsZero() {
		cfg.LastRunTime = &maxTS
		cfg.UpdatedAt = time.Now()
		if err := o.configs.Save(ctx, cfg); err != nil {
			log.WithError(err).Error("failed to advance cursor")
		}
	}

	report := o.writeReport(ctx, cfg, start, status, retrieved, generated, failed)
	log.WithDuration(time.Since(start)).
		WithFields(map[string]any{
			"status":    string(status),
			"retrieved": retrieved,
			"generated": generated,
			"failed":    failed,
		}).
		Info("run finished")
	return report, nil
}

// processMessage runs normalize, extract, gate, and persist for one
// message. The email row and its action items commit as one unit, so
// a failed message leaves nothing behind and the next run retries it
// from scratch. Returns the number of persisted action items.
func (o *Orchestrator) processMessage(ctx context.Context, cfg *domain.RunConfiguration, msg out.RawMessage, log *logger.Logger) (int, error) {
	email := &domain.EmailRecord{
		ID:             snowflake.ID(),
		MessageID:      msg.MessageID,
		ThreadID:       msg.ThreadID,
		Subject:        msg.Subject,
		Sender:         domain.ParseAddress(msg.Sender),
		RawContent:     msg.RawContent,
		CleanedContent: normalize.Clean(msg.RawContent),
		Timestamp:      msg.Timestamp,
		ProcessedAt:    time.Now(),
	}
	for _, r := range msg.Recipients {
		email.Recipients = append(email.Recipients, domain.ParseAddressList(r)...)
	}

	candidates, err := o.extractor.Extract(ctx, email)
	if err != nil {
		return 0, err
	}

	g := gate.New(cfg.ConfidenceThreshold)
	items := make([]*domain.ActionItem, 0, len(candidates))
	var accepted []*domain.ActionItem

	for _, c := range candidates {
		item := &domain.ActionItem{
			ID:              snowflake.ID(),
			ActionType:      c.ActionType,
			Description:     c.Description,
			DueDate:         c.DueDate,
			ConfidenceScore: c.Confidence,
			SourceMessageID: msg.MessageID,
			Dismiss:         !g.Accept(c),
			Owners:          c.Owners,
			Waiters:         c.Waiters,
		}
		items = append(items, item)
		if !item.Dismiss {
			accepted = append(accepted, item)
		}
	}

	if err := o.emails.SaveProcessed(ctx, email, items); err != nil {
		if apperr.IsDuplicateKey(err) {
			// Lost a race with a concurrent writer; the message is
			// recorded either way and nothing here was committed.
			log.WithField("message_id", msg.MessageID).Warn("message persisted concurrently")
			return 0, nil
		}
		return 0, err
	}

	// Board sync happens after the local commit and never feeds back
	// into run accounting.
	if o.board != nil {
		for _, item := range accepted {
			if err := o.board.Push(ctx, item); err != nil {
				log.WithField("message_id", msg.MessageID).WithError(err).Warn("board push failed")
			}
		}
	}

	return len(items), nil
}

func (o *Orchestrator) activeConfiguration(ctx context.Context) (*domain.RunConfiguration, error) {
	cfg, err := o.configs.Active(ctx)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}

	now := time.Now()
	cfg = &domain.RunConfiguration{
		ID:                  snowflake.ID(),
		ConfidenceThreshold: o.opts.DefaultThreshold,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := o.configs.Save(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *Orchestrator) writeReport(ctx context.Context, cfg *domain.RunConfiguration, start time.Time, status domain.RunStatus, retrieved, generated, failed int) *domain.ExecutionReport {
	report := &domain.ExecutionReport{
		ID:                   snowflake.ID(),
		ConfigurationID:      cfg.ID,
		RunTime:              start,
		Status:               status,
		RetrievedEmails:      retrieved,
		GeneratedActionItems: generated,
		FailedEmails:         failed,
		TotalExecutionTime:   time.Since(start),
	}
	if _, err := o.reports.Save(ctx, report); err != nil {
		logger.WithError(err).Error("failed to persist execution report")
	}
	return report
}

func runStatus(retrieved, failed int) domain.RunStatus {
	switch {
	case failed == 0:
		return domain.RunStatusSuccess
	case failed < retrieved:
		return domain.RunStatusPartialFailure
	default:
		return domain.RunStatusFailure
	}
}
