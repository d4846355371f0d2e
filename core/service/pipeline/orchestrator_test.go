package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"mailminer/core/domain"
	"mailminer/core/port/out"
	"mailminer/pkg/apperr"
	"mailminer/pkg/snowflake"
)

func init() {
	snowflake.Init(1)
}

type fakeProvider struct {
	messages []out.RawMessage
	err      error
	since    time.Time
}

func (f *fakeProvider) Fetch(ctx context.Context, since time.Time, filters out.FetchFilters) ([]out.RawMessage, error) {
	f.since = since
	if f.err != nil {
		return nil, f.err
	}
	return f.messages, nil
}

type fakeEmailRepo struct {
	byMessageID map[string]*domain.EmailRecord
	items       []*domain.ActionItem
	existsErr   error
	failFor     string
	failOnce    string
}

func newFakeEmailRepo() *fakeEmailRepo {
	return &fakeEmailRepo{byMessageID: map[string]*domain.EmailRecord{}}
}

func (f *fakeEmailRepo) Exists(ctx context.Context, messageID string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.byMessageID[messageID]
	return ok, nil
}

func (f *fakeEmailRepo) SaveProcessed(ctx context.Context, email *domain.EmailRecord, items []*domain.ActionItem) error {
	if f.failFor != "" && email.MessageID == f.failFor {
		return apperr.PersistenceFailed("save processed message", errors.New("disk full"))
	}
	if f.failOnce != "" && email.MessageID == f.failOnce {
		f.failOnce = ""
		return apperr.PersistenceFailed("save processed message", errors.New("connection reset"))
	}
	if _, ok := f.byMessageID[email.MessageID]; ok {
		return apperr.DuplicateKey("email")
	}
	f.byMessageID[email.MessageID] = email
	f.items = append(f.items, items...)
	return nil
}

func (f *fakeEmailRepo) Get(ctx context.Context, messageID string) (*domain.EmailRecord, error) {
	e, ok := f.byMessageID[messageID]
	if !ok {
		return nil, apperr.NotFound("email")
	}
	return e, nil
}

func (f *fakeEmailRepo) List(ctx context.Context, filter domain.EmailFilter) ([]*domain.EmailRecord, error) {
	var result []*domain.EmailRecord
	for _, e := range f.byMessageID {
		result = append(result, e)
	}
	return result, nil
}

// itemsFor returns the persisted items attributed to one message.
func (f *fakeEmailRepo) itemsFor(messageID string) []*domain.ActionItem {
	var result []*domain.ActionItem
	for _, it := range f.items {
		if it.SourceMessageID == messageID {
			result = append(result, it)
		}
	}
	return result
}

type fakeConfigRepo struct {
	cfg   *domain.RunConfiguration
	saves int
}

func (f *fakeConfigRepo) Active(ctx context.Context) (*domain.RunConfiguration, error) {
	return f.cfg, nil
}

func (f *fakeConfigRepo) Save(ctx context.Context, cfg *domain.RunConfiguration) error {
	f.cfg = cfg
	f.saves++
	return nil
}

type fakeReportRepo struct {
	reports []*domain.ExecutionReport
}

func (f *fakeReportRepo) Save(ctx context.Context, report *domain.ExecutionReport) (int64, error) {
	f.reports = append(f.reports, report)
	return report.ID, nil
}

func (f *fakeReportRepo) ListRecent(ctx context.Context, limit int) ([]*domain.ExecutionReport, error) {
	return f.reports, nil
}

type fakeLock struct {
	held     bool
	acquired int
	released int
}

func (f *fakeLock) Acquire(ctx context.Context, configurationID int64) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	f.acquired++
	return true, nil
}

func (f *fakeLock) Release(ctx context.Context, configurationID int64) error {
	f.held = false
	f.released++
	return nil
}

type fakeExtractor struct {
	byMessageID map[string][]domain.Candidate
	failFor     map[string]bool
}

func (f *fakeExtractor) Extract(ctx context.Context, email *domain.EmailRecord) ([]domain.Candidate, error) {
	if f.failFor[email.MessageID] {
		return nil, apperr.ExtractionFailed(email.MessageID, errors.New("malformed completion"))
	}
	return f.byMessageID[email.MessageID], nil
}

type fakeBoard struct {
	pushed []*domain.ActionItem
	err    error
}

func (f *fakeBoard) Push(ctx context.Context, item *domain.ActionItem) error {
	if f.err != nil {
		return f.err
	}
	f.pushed = append(f.pushed, item)
	return nil
}

type harness struct {
	provider  *fakeProvider
	emails    *fakeEmailRepo
	configs   *fakeConfigRepo
	reports   *fakeReportRepo
	board     *fakeBoard
	lock      *fakeLock
	extractor *fakeExtractor
}

func newHarness() *harness {
	return &harness{
		provider:  &fakeProvider{},
		emails:    newFakeEmailRepo(),
		configs:   &fakeConfigRepo{},
		reports:   &fakeReportRepo{},
		board:     &fakeBoard{},
		lock:      &fakeLock{},
		extractor: &fakeExtractor{byMessageID: map[string][]domain.Candidate{}, failFor: map[string]bool{}},
	}
}

func (h *harness) orchestrator(opts Options) *Orchestrator {
	return NewOrchestrator(
		h.provider, h.emails, h.configs, h.reports,
		h.board, h.lock, h.extractor, opts,
	)
}

func messageAt(id string, ts time.Time) out.RawMessage {
	return out.RawMessage{
		MessageID:  id,
		Subject:    "subject " + id,
		Sender:     "Alice <alice@example.com>",
		Recipients: []string{"bob@example.com"},
		RawContent: "body of " + id,
		Timestamp:  ts,
	}
}

func timePtr(t time.Time) *time.Time { return &t }

// Three unprocessed messages: one accepted item, one dismissed item,
// one with no candidates at all.
func TestRun_MixedBatch(t *testing.T) {
	h := newHarness()
	monday := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	friday := time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC)

	h.configs.cfg = &domain.RunConfiguration{ID: 100, ConfidenceThreshold: 0.7}
	h.provider.messages = []out.RawMessage{
		messageAt("msg-a", monday),
		messageAt("msg-b", monday.Add(time.Hour)),
		messageAt("msg-c", monday.Add(2*time.Hour)),
	}
	h.extractor.byMessageID["msg-a"] = []domain.Candidate{{
		ActionType:  domain.ActionTypeTask,
		Description: "Send report",
		DueDate:     timePtr(friday),
		Confidence:  0.9,
	}}
	h.extractor.byMessageID["msg-b"] = []domain.Candidate{{
		ActionType:  domain.ActionTypeInformation,
		Description: "Maybe a task",
		Confidence:  0.4,
	}}
	// msg-c extracts nothing

	report, err := h.orchestrator(Options{DefaultThreshold: 0.85}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Status != domain.RunStatusSuccess {
		t.Errorf("Status = %v, want success", report.Status)
	}
	if report.RetrievedEmails != 3 {
		t.Errorf("RetrievedEmails = %d, want 3", report.RetrievedEmails)
	}
	if report.GeneratedActionItems != 2 {
		t.Errorf("GeneratedActionItems = %d, want 2", report.GeneratedActionItems)
	}
	if report.FailedEmails != 0 {
		t.Errorf("FailedEmails = %d, want 0", report.FailedEmails)
	}

	if len(h.emails.items) != 2 {
		t.Fatalf("persisted items = %d, want 2", len(h.emails.items))
	}
	var accepted, dismissed *domain.ActionItem
	for _, it := range h.emails.items {
		if it.Dismiss {
			dismissed = it
		} else {
			accepted = it
		}
	}
	if accepted == nil || accepted.SourceMessageID != "msg-a" {
		t.Fatalf("accepted item = %+v, want from msg-a", accepted)
	}
	if accepted.DueDate == nil || !accepted.DueDate.Equal(friday) {
		t.Errorf("accepted DueDate = %v, want %v", accepted.DueDate, friday)
	}
	if dismissed == nil || dismissed.SourceMessageID != "msg-b" {
		t.Fatalf("dismissed item = %+v, want from msg-b", dismissed)
	}

	// All three messages marked processed, including the empty one
	for _, id := range []string{"msg-a", "msg-b", "msg-c"} {
		if _, ok := h.emails.byMessageID[id]; !ok {
			t.Errorf("message %s not marked processed", id)
		}
	}

	// Cursor advanced to the max processed timestamp
	if h.configs.cfg.LastRunTime == nil || !h.configs.cfg.LastRunTime.Equal(monday.Add(2*time.Hour)) {
		t.Errorf("LastRunTime = %v, want %v", h.configs.cfg.LastRunTime, monday.Add(2*time.Hour))
	}

	if len(h.reports.reports) != 1 {
		t.Errorf("reports written = %d, want exactly 1", len(h.reports.reports))
	}

	// Only the accepted item reaches the board
	if len(h.board.pushed) != 1 || h.board.pushed[0].SourceMessageID != "msg-a" {
		t.Errorf("board pushed = %+v, want only msg-a's item", h.board.pushed)
	}
}

// A re-delivered, already-processed message produces zero new records.
func TestRun_RedeliveredMessageIgnored(t *testing.T) {
	h := newHarness()
	ts := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	h.configs.cfg = &domain.RunConfiguration{ID: 100, ConfidenceThreshold: 0.7}
	h.provider.messages = []out.RawMessage{messageAt("msg-a", ts)}
	h.extractor.byMessageID["msg-a"] = []domain.Candidate{{
		ActionType: domain.ActionTypeTask, Description: "once", Confidence: 0.9,
	}}

	orch := h.orchestrator(Options{})
	if _, err := orch.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	report, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if report.RetrievedEmails != 0 {
		t.Errorf("RetrievedEmails = %d, want 0 on redelivery", report.RetrievedEmails)
	}
	if report.GeneratedActionItems != 0 {
		t.Errorf("GeneratedActionItems = %d, want 0", report.GeneratedActionItems)
	}
	if report.Status != domain.RunStatusSuccess {
		t.Errorf("Status = %v, want success for an empty batch", report.Status)
	}
	if len(h.emails.items) != 1 {
		t.Errorf("items = %d, want still 1", len(h.emails.items))
	}
	if len(h.emails.byMessageID) != 1 {
		t.Errorf("emails = %d, want still 1", len(h.emails.byMessageID))
	}
}

func TestRun_FetchFailure(t *testing.T) {
	h := newHarness()
	cursor := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	h.configs.cfg = &domain.RunConfiguration{
		ID: 100, ConfidenceThreshold: 0.7, LastRunTime: timePtr(cursor),
	}
	h.provider.err = errors.New("imap gateway down")

	report, err := h.orchestrator(Options{}).Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want fetch failure")
	}
	if !apperr.HasCode(err, apperr.CodeFetchFailed) {
		t.Errorf("error = %v, want FETCH_FAILED", err)
	}
	if report == nil || report.Status != domain.RunStatusFailure {
		t.Fatalf("report = %+v, want failure status", report)
	}
	if len(h.reports.reports) != 1 {
		t.Errorf("reports written = %d, want exactly 1", len(h.reports.reports))
	}
	if h.configs.cfg.LastRunTime == nil || !h.configs.cfg.LastRunTime.Equal(cursor) {
		t.Errorf("cursor = %v, want unchanged %v", h.configs.cfg.LastRunTime, cursor)
	}
	if h.lock.released != 1 {
		t.Errorf("lock released %d times, want 1", h.lock.released)
	}
}

// One failing message does not abort the batch; the cursor only covers
// the messages that succeeded.
func TestRun_PartialFailure(t *testing.T) {
	h := newHarness()
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	h.configs.cfg = &domain.RunConfiguration{ID: 100, ConfidenceThreshold: 0.7}
	h.provider.messages = []out.RawMessage{
		messageAt("msg-ok", base),
		messageAt("msg-bad", base.Add(time.Hour)),
	}
	h.extractor.byMessageID["msg-ok"] = []domain.Candidate{{
		ActionType: domain.ActionTypeTask, Description: "fine", Confidence: 0.9,
	}}
	h.extractor.failFor["msg-bad"] = true

	report, err := h.orchestrator(Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, want per-message isolation", err)
	}

	if report.Status != domain.RunStatusPartialFailure {
		t.Errorf("Status = %v, want partial_failure", report.Status)
	}
	if report.RetrievedEmails != 2 || report.FailedEmails != 1 || report.GeneratedActionItems != 1 {
		t.Errorf("report = %+v, want retrieved=2 failed=1 generated=1", report)
	}

	// The failed message stays unprocessed so the next run retries it
	if _, ok := h.emails.byMessageID["msg-bad"]; ok {
		t.Error("failed message was marked processed")
	}
	if h.configs.cfg.LastRunTime == nil || !h.configs.cfg.LastRunTime.Equal(base) {
		t.Errorf("cursor = %v, want %v (succeeded message only)", h.configs.cfg.LastRunTime, base)
	}
}

func TestRun_TotalFailureLeavesCursor(t *testing.T) {
	h := newHarness()
	cursor := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	h.configs.cfg = &domain.RunConfiguration{
		ID: 100, ConfidenceThreshold: 0.7, LastRunTime: timePtr(cursor),
	}
	h.provider.messages = []out.RawMessage{
		messageAt("msg-1", cursor.Add(time.Hour)),
		messageAt("msg-2", cursor.Add(2*time.Hour)),
	}
	h.extractor.failFor["msg-1"] = true
	h.extractor.failFor["msg-2"] = true

	report, err := h.orchestrator(Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Status != domain.RunStatusFailure {
		t.Errorf("Status = %v, want failure when nothing succeeded", report.Status)
	}
	if !h.configs.cfg.LastRunTime.Equal(cursor) {
		t.Errorf("cursor = %v, want unchanged %v", h.configs.cfg.LastRunTime, cursor)
	}
}

func TestRun_PersistenceFailureIsolated(t *testing.T) {
	h := newHarness()
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	h.configs.cfg = &domain.RunConfiguration{ID: 100, ConfidenceThreshold: 0.7}
	h.provider.messages = []out.RawMessage{
		messageAt("msg-store-fail", base),
		messageAt("msg-ok", base.Add(time.Hour)),
	}
	h.extractor.byMessageID["msg-store-fail"] = []domain.Candidate{{
		ActionType: domain.ActionTypeTask, Description: "won't persist", Confidence: 0.9,
	}}
	h.extractor.byMessageID["msg-ok"] = []domain.Candidate{{
		ActionType: domain.ActionTypeTask, Description: "persists", Confidence: 0.9,
	}}
	h.emails.failFor = "msg-store-fail"

	report, err := h.orchestrator(Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Status != domain.RunStatusPartialFailure {
		t.Errorf("Status = %v, want partial_failure", report.Status)
	}
	if report.GeneratedActionItems != 1 {
		t.Errorf("GeneratedActionItems = %d, want 1", report.GeneratedActionItems)
	}
	if _, ok := h.emails.byMessageID["msg-store-fail"]; ok {
		t.Error("message with failed write was marked processed")
	}
	if got := h.emails.itemsFor("msg-store-fail"); len(got) != 0 {
		t.Errorf("items for failed message = %d, want 0", len(got))
	}
}

// A write that fails mid-run commits nothing for that message, and the
// retry on the next run produces exactly one set of items, not two.
func TestRun_FailedWriteLeavesNoPartialState(t *testing.T) {
	h := newHarness()
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	h.configs.cfg = &domain.RunConfiguration{ID: 100, ConfidenceThreshold: 0.7}
	h.provider.messages = []out.RawMessage{messageAt("msg-flaky", base)}
	h.extractor.byMessageID["msg-flaky"] = []domain.Candidate{
		{ActionType: domain.ActionTypeTask, Description: "file the expense report", Confidence: 0.9},
		{ActionType: domain.ActionTypeMeeting, Description: "schedule the retro", Confidence: 0.8},
	}
	h.emails.failOnce = "msg-flaky"

	orch := h.orchestrator(Options{})
	report, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if report.Status != domain.RunStatusFailure {
		t.Errorf("first run Status = %v, want failure", report.Status)
	}
	if len(h.emails.items) != 0 {
		t.Fatalf("items after failed write = %d, want 0", len(h.emails.items))
	}
	if _, ok := h.emails.byMessageID["msg-flaky"]; ok {
		t.Fatal("failed message was marked processed")
	}

	report, err = orch.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if report.Status != domain.RunStatusSuccess {
		t.Errorf("second run Status = %v, want success", report.Status)
	}
	if got := h.emails.itemsFor("msg-flaky"); len(got) != 2 {
		t.Errorf("items after retry = %d, want exactly 2", len(got))
	}
	if _, ok := h.emails.byMessageID["msg-flaky"]; !ok {
		t.Error("retried message not marked processed")
	}
}

func TestRun_LockHeld(t *testing.T) {
	h := newHarness()
	h.configs.cfg = &domain.RunConfiguration{ID: 100, ConfidenceThreshold: 0.7}
	h.lock.held = true

	report, err := h.orchestrator(Options{}).Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want run-in-progress")
	}
	if !apperr.IsRunInProgress(err) {
		t.Errorf("error = %v, want RUN_IN_PROGRESS", err)
	}
	if report != nil {
		t.Errorf("report = %+v, want nil", report)
	}
	if len(h.reports.reports) != 0 {
		t.Errorf("reports written = %d, want 0", len(h.reports.reports))
	}
}

func TestRun_CreatesDefaultConfiguration(t *testing.T) {
	h := newHarness()

	_, err := h.orchestrator(Options{DefaultThreshold: 0.85}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if h.configs.cfg == nil {
		t.Fatal("no configuration created")
	}
	if h.configs.cfg.ConfidenceThreshold != 0.85 {
		t.Errorf("ConfidenceThreshold = %v, want 0.85", h.configs.cfg.ConfidenceThreshold)
	}
	if h.configs.cfg.ID == 0 {
		t.Error("configuration ID not assigned")
	}
}

func TestRun_CursorUsedAsFetchSince(t *testing.T) {
	h := newHarness()
	cursor := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	h.configs.cfg = &domain.RunConfiguration{
		ID: 100, ConfidenceThreshold: 0.7, LastRunTime: timePtr(cursor),
	}

	if _, err := h.orchestrator(Options{}).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !h.provider.since.Equal(cursor) {
		t.Errorf("fetch since = %v, want cursor %v", h.provider.since, cursor)
	}
}

func TestRun_BoardFailureDoesNotAffectStatus(t *testing.T) {
	h := newHarness()
	h.configs.cfg = &domain.RunConfiguration{ID: 100, ConfidenceThreshold: 0.7}
	h.provider.messages = []out.RawMessage{
		messageAt("msg-a", time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)),
	}
	h.extractor.byMessageID["msg-a"] = []domain.Candidate{{
		ActionType: domain.ActionTypeTask, Description: "x", Confidence: 0.9,
	}}
	h.board.err = errors.New("trello 500")

	report, err := h.orchestrator(Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Status != domain.RunStatusSuccess {
		t.Errorf("Status = %v, want success despite board failure", report.Status)
	}
}

func TestRun_LockReleasedAfterRun(t *testing.T) {
	h := newHarness()
	h.configs.cfg = &domain.RunConfiguration{ID: 100, ConfidenceThreshold: 0.7}

	for i := 0; i < 3; i++ {
		if _, err := h.orchestrator(Options{}).Run(context.Background()); err != nil {
			t.Fatalf("Run() #%d error = %v", i+1, err)
		}
	}
	if h.lock.acquired != 3 || h.lock.released != 3 {
		t.Errorf("lock acquired=%d released=%d, want 3/3", h.lock.acquired, h.lock.released)
	}
}

func TestRunStatus(t *testing.T) {
	tests := []struct {
		retrieved, failed int
		want              domain.RunStatus
	}{
		{3, 0, domain.RunStatusSuccess},
		{0, 0, domain.RunStatusSuccess},
		{3, 1, domain.RunStatusPartialFailure},
		{3, 3, domain.RunStatusFailure},
		{1, 1, domain.RunStatusFailure},
	}
	for _, tt := range tests {
		name := fmt.Sprintf("retrieved=%d failed=%d", tt.retrieved, tt.failed)
		t.Run(name, func(t *testing.T) {
			if got := runStatus(tt.retrieved, tt.failed); got != tt.want {
				t.Errorf("runStatus(%d, %d) = %v, want %v", tt.retrieved, tt.failed, got, tt.want)
			}
		})
	}
}
