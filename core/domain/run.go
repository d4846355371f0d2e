package domain

import "time"

// RunStatus is the terminal outcome of a pipeline run.
type RunStatus string

const (
	// RunStatusSuccess: every inspected message processed.
	RunStatusSuccess RunStatus = "success"
	// RunStatusPartialFailure: some messages processed, some failed.
	RunStatusPartialFailure RunStatus = "partial_failure"
	// RunStatusFailure: fetch failed or no message succeeded.
	RunStatusFailure RunStatus = "failure"
)

// RunConfiguration holds the tunable settings of the pipeline plus
// the incremental cursor. LastRunTime is nil before the first
// successful run; afterwards it is the max timestamp among messages
// that were fully processed.
type RunConfiguration struct {
	ID                  int64      `json:"id,string"`
	ConfidenceThreshold float64    `json:"confidence_threshold"`
	LastRunTime         *time.Time `json:"last_run_time,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// ExecutionReport is the audit record written once per run.
type ExecutionReport struct {
	ID                   int64         `json:"id,string"`
	ConfigurationID      int64         `json:"configuration_id,string"`
	RunTime              time.Time     `json:"run_time"`
	Status               RunStatus     `json:"run_status"`
	RetrievedEmails      int           `json:"retrieved_emails"`
	GeneratedActionItems int           `json:"generated_action_items"`
	FailedEmails         int           `json:"failed_emails"`
	TotalExecutionTime   time.Duration `json:"total_execution_ms"`
}
