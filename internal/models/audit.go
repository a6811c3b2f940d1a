package models

import "time"

// RunStatus tracks a migration run's terminal state.
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusFailed  RunStatus = "FAILED"
)

// MigrationRun is one execution of a migration script.
type MigrationRun struct {
	ID         string     `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Status     RunStatus  `db:"status" json:"status"`
	DryRun     bool       `db:"dry_run" json:"dry_run"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// RejectionRecord is one failed or skipped input row. Append-only.
type RejectionRecord struct {
	ID           string    `db:"id" json:"id"`
	RunID        string    `db:"run_id" json:"run_id"`
	Category     string    `db:"category" json:"category"`
	RecordID     string    `db:"record_id" json:"record_id"`
	Reason       string    `db:"reason" json:"reason"`
	ErrorDetails *string   `db:"error_details" json:"error_details,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// MigrationReport is the aggregate emitted when a run completes.
type MigrationReport struct {
	RunID       string         `json:"run_id"`
	Name        string         `json:"name"`
	DryRun      bool           `json:"dry_run"`
	InputStats  map[string]any `json:"input_stats,omitempty"`
	Successes   map[string]int `json:"successes"`
	Rejections  map[string]int `json:"rejections"`
	TotalInput  int            `json:"total_input"`
	TotalOK     int            `json:"total_ok"`
	TotalFailed int            `json:"total_failed"`
	SuccessRate float64        `json:"success_rate"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
}
