// Package audit gives every migration script one bookkeeping contract:
// declare your rejection categories up front, record each outcome, and
// emit a uniform report. The uniform shape is what makes heterogeneous
// one-off fixes reviewable under a single operational lens.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/models"
	appErrors "github.com/starkjeffrey/naga-monorepo-v1-final-sub013/pkg/errors"
)

// Store persists run bookkeeping. It must commit independently of any
// data transaction: rejections describe attempts, not outcomes, and
// survive a rolled-back batch.
type Store interface {
	CreateRun(ctx context.Context, run *models.MigrationRun) error
	CloseRun(ctx context.Context, runID string, status models.RunStatus, finishedAt time.Time) error
	AppendRejection(ctx context.Context, rec *models.RejectionRecord) error
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithStore persists run state and rejections through store.
func WithStore(store Store) Option {
	return func(r *Recorder) { r.store = store }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// WithClock overrides time for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// Recorder tracks one run's input scope, successes, and categorized
// rejections. Not safe for concurrent use; runs are single-threaded.
type Recorder struct {
	run        models.MigrationRun
	categories map[string]struct{}
	successes  map[string]int
	rejections []models.RejectionRecord
	inputStats map[string]any
	store      Store
	logger     *zap.Logger
	now        func() time.Time
}

// NewRecorder declares a run and its closed rejection-category set.
func NewRecorder(name string, dryRun bool, categories []string, opts ...Option) *Recorder {
	r := &Recorder{
		categories: make(map[string]struct{}, len(categories)),
		successes:  make(map[string]int),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, c := range categories {
		r.categories[c] = struct{}{}
	}
	for _, opt := range opts {
		opt(r)
	}
	r.run = models.MigrationRun{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    models.RunStatusRunning,
		DryRun:    dryRun,
		StartedAt: r.now().UTC(),
	}
	return r
}

// RunID returns the run identifier.
func (r *Recorder) RunID() string {
	return r.run.ID
}

// Begin persists the run row when a store is configured.
func (r *Recorder) Begin(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	return r.store.CreateRun(ctx, &r.run)
}

// RecordInputStats takes a one-time snapshot of the intended scope.
// A second call replaces nothing: the first snapshot stands.
func (r *Recorder) RecordInputStats(stats map[string]any) {
	if r.inputStats != nil {
		r.logger.Warn("input stats already recorded, ignoring", zap.String("run", r.run.Name))
		return
	}
	r.inputStats = stats
}

// RecordSuccess adds n to a success category tally. Success labels
// are free-form; the declared closed set governs rejections only.
func (r *Recorder) RecordSuccess(category string, n int) {
	r.successes[category] += n
}

// RecordRejection appends one immutable rejection. An undeclared
// category is a contract violation, never a silent no-op.
func (r *Recorder) RecordRejection(ctx context.Context, category, recordID, reason string, cause error) error {
	if _, ok := r.categories[category]; !ok {
		return appErrors.Clone(appErrors.ErrUndeclaredCategory,
			"rejection category "+category+" not declared for run "+r.run.Name)
	}

	rec := models.RejectionRecord{
		ID:        uuid.NewString(),
		RunID:     r.run.ID,
		Category:  category,
		RecordID:  recordID,
		Reason:    reason,
		CreatedAt: r.now().UTC(),
	}
	if cause != nil {
		details := cause.Error()
		rec.ErrorDetails = &details
	}
	r.rejections = append(r.rejections, rec)

	if r.store != nil {
		if err := r.store.AppendRejection(ctx, &rec); err != nil {
			// Bookkeeping failure must not mask the rejection itself.
			r.logger.Error("failed to persist rejection",
				zap.String("record_id", recordID), zap.Error(err))
		}
	}
	return nil
}

// Finalize closes the run and persists its terminal status.
func (r *Recorder) Finalize(ctx context.Context, status models.RunStatus) {
	finished := r.now().UTC()
	r.run.Status = status
	r.run.FinishedAt = &finished
	if r.store != nil {
		if err := r.store.CloseRun(ctx, r.run.ID, status, finished); err != nil {
			r.logger.Error("failed to close run", zap.String("run_id", r.run.ID), zap.Error(err))
		}
	}
}

// Report assembles the aggregate emitted at completion.
func (r *Recorder) Report() models.MigrationReport {
	totalOK := 0
	for _, n := range r.successes {
		totalOK += n
	}
	rejections := make(map[string]int, len(r.categories))
	for cat := range r.categories {
		rejections[cat] = 0
	}
	for _, rec := range r.rejections {
		rejections[rec.Category]++
	}
	totalFailed := len(r.rejections)
	total := totalOK + totalFailed

	rate := 0.0
	if total > 0 {
		rate = float64(totalOK) / float64(total)
	}

	finished := r.now().UTC()
	if r.run.FinishedAt != nil {
		finished = *r.run.FinishedAt
	}

	successes := make(map[string]int, len(r.successes))
	for cat, n := range r.successes {
		successes[cat] = n
	}

	return models.MigrationReport{
		RunID:       r.run.ID,
		Name:        r.run.Name,
		DryRun:      r.run.DryRun,
		InputStats:  r.inputStats,
		Successes:   successes,
		Rejections:  rejections,
		TotalInput:  total,
		TotalOK:     totalOK,
		TotalFailed: totalFailed,
		SuccessRate: rate,
		StartedAt:   r.run.StartedAt,
		FinishedAt:  finished,
	}
}
