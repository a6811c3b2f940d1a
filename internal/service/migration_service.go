// Package service orchestrates migration runs: ingest, decompose,
// watermark filtering, idempotent upsert, and audit bookkeeping.
package service

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/audit"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/decomposer"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/ingest"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/ledger"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/models"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/pkg/config"
	appErrors "github.com/starkjeffrey/naga-monorepo-v1-final-sub013/pkg/errors"
)

// Rejection categories declared by the standard enrollment run. Every
// category a run can emit must appear in the set it declares.
const (
	CategoryMalformedRow    = "malformed_row"
	CategoryInvalidLegacyID = "invalid_legacy_id"
	CategoryManualReview    = "manual_review"
	CategoryUpsertFailed    = "upsert_failed"
)

// StandardRejectionCategories is the closed set for enrollment runs.
var StandardRejectionCategories = []string{
	CategoryMalformedRow,
	CategoryInvalidLegacyID,
	CategoryManualReview,
	CategoryUpsertFailed,
}

// Upserter applies one decomposed record to the target schema on the
// given executor, which is the batch transaction during live runs.
// The surrounding application owns the entity-level create/update
// logic; the migration only requires the operation to be idempotent.
type Upserter interface {
	Upsert(ctx context.Context, ext sqlx.ExtContext, rec *models.RawLegacyRecord, parsed models.ParsedIdentifier) (created bool, err error)
}

// TxRunner scopes a batch to one transaction. fn receives the
// transaction as its executor so every write in the batch commits or
// rolls back together.
type TxRunner interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context, ext sqlx.ExtContext) error) error
}

// ReviewQueue receives LOW-confidence parses for manual handling.
type ReviewQueue interface {
	Enqueue(ctx context.Context, item *models.ReviewItem) error
	PendingCount(ctx context.Context) (int, error)
}

// SQLTxRunner implements TxRunner over sqlx.
type SQLTxRunner struct {
	db *sqlx.DB
}

// NewSQLTxRunner constructs a transaction runner.
func NewSQLTxRunner(db *sqlx.DB) *SQLTxRunner {
	return &SQLTxRunner{db: db}
}

// InTransaction begins, runs fn on the transaction, and commits; any
// error rolls back.
func (r *SQLTxRunner) InTransaction(ctx context.Context, fn func(ctx context.Context, ext sqlx.ExtContext) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch transaction: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch transaction: %w", err)
	}
	return nil
}

// Columns names the CSV columns the standard run consumes.
type Columns struct {
	Identifier string
	TimeHint   string
}

// RunResult pairs the audit report with pipeline-level counters the
// recorder does not track. PendingReview is the review queue depth
// after the run, across all runs, for surfacing in reports.
type RunResult struct {
	Report        models.MigrationReport
	Skipped       int
	PendingReview int
}

// MigrationService runs one migration end to end.
type MigrationService struct {
	cfg      config.MigrationConfig
	env      string
	columns  Columns
	ledger   *ledger.Ledger
	recorder *audit.Recorder
	upserter Upserter
	review   ReviewQueue
	tx       TxRunner
	logger   *zap.Logger
}

// NewMigrationService wires the pipeline.
func NewMigrationService(
	cfg config.MigrationConfig,
	env string,
	columns Columns,
	wm *ledger.Ledger,
	recorder *audit.Recorder,
	upserter Upserter,
	review ReviewQueue,
	tx TxRunner,
	logger *zap.Logger,
) *MigrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if columns.Identifier == "" {
		columns.Identifier = "classid"
	}
	return &MigrationService{
		cfg:      cfg,
		env:      env,
		columns:  columns,
		ledger:   wm,
		recorder: recorder,
		upserter: upserter,
		review:   review,
		tx:       tx,
		logger:   logger,
	}
}

type outcomeStatus int

const (
	outcomeSuccess outcomeStatus = iota
	outcomeSkipped
	outcomeRejected
)

// outcome is the per-record result value. Expected data-quality
// failures travel here; thrown errors are reserved for defects.
type outcome struct {
	status   outcomeStatus
	category string
	reason   string
	cause    error
	created  bool
	legacyID int64
}

// Run executes the migration over one input and returns the report.
// Fatal configuration problems surface as errors before any row is
// processed; everything after that is a per-record outcome.
func (s *MigrationService) Run(ctx context.Context, reader *ingest.Reader, inputStats map[string]any) (*RunResult, error) {
	if err := s.recorder.Begin(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.KindFatalConfig, "RUN_BOOKKEEPING", "create run record")
	}
	if inputStats != nil {
		s.recorder.RecordInputStats(inputStats)
	}

	if err := s.ledger.Init(ctx); err != nil {
		s.recorder.Finalize(ctx, models.RunStatusFailed)
		return nil, err
	}
	s.logger.Info("run starting",
		zap.String("run_id", s.recorder.RunID()),
		zap.Int64("watermark", s.ledger.Watermark()),
		zap.Bool("dry_run", s.cfg.DryRun))

	skipped := 0
	batch := make([]*models.RawLegacyRecord, 0, s.batchSize())

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.processBatch(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for {
		rec, rowErr, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.recorder.Finalize(ctx, models.RunStatusFailed)
			return nil, err
		}
		if rowErr != nil {
			if err := s.reject(ctx, outcome{
				status:   outcomeRejected,
				category: CategoryMalformedRow,
				reason:   rowErr.Reason,
				cause:    rowErr.Err,
			}, "line "+strconv.Itoa(rowErr.Line)); err != nil {
				s.recorder.Finalize(ctx, models.RunStatusFailed)
				return nil, err
			}
			continue
		}

		if !s.ledger.ShouldProcess(rec) && rec.IPKValid {
			skipped++
			continue
		}

		batch = append(batch, rec)
		if len(batch) >= s.batchSize() {
			if err := flush(); err != nil {
				s.recorder.Finalize(ctx, models.RunStatusFailed)
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		s.recorder.Finalize(ctx, models.RunStatusFailed)
		return nil, err
	}

	s.recorder.Finalize(ctx, models.RunStatusSuccess)
	report := s.recorder.Report()
	result := &RunResult{Report: report, Skipped: skipped}
	if s.review != nil {
		pending, err := s.review.PendingCount(ctx)
		if err != nil {
			s.logger.Warn("failed to read review queue depth", zap.Error(err))
		} else {
			result.PendingReview = pending
		}
	}
	s.logger.Info("run finished",
		zap.String("run_id", report.RunID),
		zap.Int("ok", report.TotalOK),
		zap.Int("failed", report.TotalFailed),
		zap.Int("skipped", skipped),
		zap.Int("pending_review", result.PendingReview))
	return result, nil
}

// processBatch runs one batch on one transaction; every upsert in the
// batch executes on that transaction and commits or rolls back with
// it. Audit writes go through the recorder's independent path
// regardless of the batch's fate. Dry runs bypass the transaction
// entirely.
func (s *MigrationService) processBatch(ctx context.Context, batch []*models.RawLegacyRecord) error {
	upserted := make([]int64, 0, len(batch))
	process := func(ctx context.Context, ext sqlx.ExtContext) error {
		for _, rec := range batch {
			out := s.processRecord(ctx, ext, rec)
			if err := s.recordOutcome(ctx, rec, out); err != nil {
				return err
			}
			if out.status == outcomeSuccess {
				upserted = append(upserted, rec.IPK)
			}
		}
		return nil
	}

	var err error
	if s.cfg.DryRun || s.tx == nil {
		err = process(ctx, nil)
	} else {
		err = s.tx.InTransaction(ctx, process)
	}
	if err != nil {
		return err
	}

	// Only ids whose upsert is now committed move the watermark; a
	// rejected high id must not shadow unprocessed lower ids.
	for _, id := range upserted {
		s.ledger.Advance(id)
	}
	return nil
}

func (s *MigrationService) processRecord(ctx context.Context, ext sqlx.ExtContext, rec *models.RawLegacyRecord) outcome {
	if !rec.IPKValid {
		return outcome{
			status:   outcomeRejected,
			category: CategoryInvalidLegacyID,
			reason:   "legacy id missing or not an integer",
		}
	}

	parsed := decomposer.Decompose(rec.Get(s.columns.Identifier), rec.Get(s.columns.TimeHint))

	if parsed.NeedsReview() {
		if s.review != nil && !s.cfg.DryRun {
			item := &models.ReviewItem{
				RunID:      s.recorder.RunID(),
				LegacyID:   rec.IPK,
				Identifier: parsed,
			}
			if err := s.review.Enqueue(ctx, item); err != nil {
				s.logger.Error("failed to enqueue review item",
					zap.Int64("legacy_id", rec.IPK), zap.Error(err))
			}
		}
		reason := "identifier confidence " + string(parsed.Confidence)
		if parsed.Err {
			reason = parsed.ErrMessage
		}
		return outcome{
			status:   outcomeRejected,
			category: CategoryManualReview,
			reason:   reason,
			legacyID: rec.IPK,
		}
	}

	created := true
	if !s.cfg.DryRun {
		var err error
		created, err = s.upserter.Upsert(ctx, ext, rec, parsed)
		if err != nil {
			return outcome{
				status:   outcomeRejected,
				category: CategoryUpsertFailed,
				reason:   "target upsert failed",
				cause:    err,
				legacyID: rec.IPK,
			}
		}
	}
	return outcome{status: outcomeSuccess, created: created, legacyID: rec.IPK}
}

func (s *MigrationService) recordOutcome(ctx context.Context, rec *models.RawLegacyRecord, out outcome) error {
	switch out.status {
	case outcomeSuccess:
		if out.created {
			s.recorder.RecordSuccess("created", 1)
		} else {
			s.recorder.RecordSuccess("updated", 1)
		}
		return nil
	case outcomeRejected:
		return s.reject(ctx, out, recordLabel(rec, out))
	default:
		return nil
	}
}

// reject records a rejection; an undeclared category is a contract
// violation that fails loudly in development and is contained (logged,
// run continues) in production.
func (s *MigrationService) reject(ctx context.Context, out outcome, recordID string) error {
	err := s.recorder.RecordRejection(ctx, out.category, recordID, out.reason, out.cause)
	if err == nil {
		return nil
	}
	if appErrors.IsContract(err) && s.env != config.EnvDevelopment {
		s.logger.Error("contract violation contained",
			zap.String("category", out.category),
			zap.String("record_id", recordID),
			zap.Error(err))
		return nil
	}
	return err
}

func (s *MigrationService) batchSize() int {
	if s.cfg.BatchSize > 0 {
		return s.cfg.BatchSize
	}
	return 500
}

func recordLabel(rec *models.RawLegacyRecord, out outcome) string {
	if out.legacyID > 0 {
		return "ipk " + strconv.FormatInt(out.legacyID, 10)
	}
	if rec != nil {
		return "line " + strconv.Itoa(rec.Line)
	}
	return "unknown"
}
