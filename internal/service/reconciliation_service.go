package service

import (
	"context"
	"io"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/audit"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/ingest"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/ledger"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/matcher"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/models"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/pkg/config"
	appErrors "github.com/starkjeffrey/naga-monorepo-v1-final-sub013/pkg/errors"
)

// Rejection categories specific to receipt reconciliation runs.
const (
	CategoryUnknownTerm    = "unknown_term"
	CategoryUnknownStudent = "unknown_student"
	CategoryInvalidAmount  = "invalid_amount"
	CategoryMatchFailed    = "match_failed"
)

// ReceiptRejectionCategories is the closed set for reconciliation runs.
var ReceiptRejectionCategories = []string{
	CategoryMalformedRow,
	CategoryInvalidLegacyID,
	CategoryUnknownTerm,
	CategoryUnknownStudent,
	CategoryInvalidAmount,
	CategoryMatchFailed,
}

type receiptTermSource interface {
	FindByCode(ctx context.Context, code string) (*models.Term, error)
}

type discountResolver interface {
	Resolve(ctx context.Context, txn matcher.Transaction) (*matcher.Resolution, error)
	Apply(ctx context.Context, ext sqlx.ExtContext, txn matcher.Transaction) (*matcher.Resolution, error)
}

// ReconciliationService reconstructs historical discount state from
// legacy receipt exports. It shares the ledger/audit contract with
// the enrollment run but resolves rules instead of upserting rows.
type ReconciliationService struct {
	cfg      config.MigrationConfig
	env      string
	ledger   *ledger.Ledger
	recorder *audit.Recorder
	terms    receiptTermSource
	students studentResolver
	matcher  discountResolver
	tx       TxRunner
	logger   *zap.Logger
}

// NewReconciliationService wires the reconciliation pipeline.
func NewReconciliationService(
	cfg config.MigrationConfig,
	env string,
	wm *ledger.Ledger,
	recorder *audit.Recorder,
	terms receiptTermSource,
	students studentResolver,
	m discountResolver,
	tx TxRunner,
	logger *zap.Logger,
) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{
		cfg:      cfg,
		env:      env,
		ledger:   wm,
		recorder: recorder,
		terms:    terms,
		students: students,
		matcher:  m,
		tx:       tx,
		logger:   logger,
	}
}

// Run reconciles one receipts export and returns the audit report.
func (s *ReconciliationService) Run(ctx context.Context, reader *ingest.Reader, inputStats map[string]any) (*RunResult, error) {
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
	s.logger.Info("reconciliation starting",
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
	s.logger.Info("reconciliation finished",
		zap.String("run_id", report.RunID),
		zap.Int("ok", report.TotalOK),
		zap.Int("failed", report.TotalFailed),
		zap.Int("skipped", skipped))
	return &RunResult{Report: report, Skipped: skipped}, nil
}

// processBatch mirrors the enrollment run: one transaction per batch,
// application inserts execute on it, and the watermark moves only for
// receipts whose resolution the commit made durable.
func (s *ReconciliationService) processBatch(ctx context.Context, batch []*models.RawLegacyRecord) error {
	reconciled := make([]int64, 0, len(batch))
	process := func(ctx context.Context, ext sqlx.ExtContext) error {
		for _, rec := range batch {
			out := s.processReceipt(ctx, ext, rec)
			if err := s.recordReceiptOutcome(ctx, rec, out); err != nil {
				return err
			}
			if out.status == outcomeSuccess {
				reconciled = append(reconciled, rec.IPK)
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

	for _, id := range reconciled {
		s.ledger.Advance(id)
	}
	return nil
}

func (s *ReconciliationService) processReceipt(ctx context.Context, ext sqlx.ExtContext, rec *models.RawLegacyRecord) outcome {
	if !rec.IPKValid {
		return outcome{status: outcomeRejected, category: CategoryInvalidLegacyID,
			reason: "legacy id missing or not an integer"}
	}

	term, err := s.terms.FindByCode(ctx, rec.Get("termid"))
	if err != nil {
		return outcome{status: outcomeRejected, category: CategoryUnknownTerm,
			reason: "term " + rec.Get("termid") + " not found", cause: err, legacyID: rec.IPK}
	}

	studentID, err := s.students.ResolveLegacyStudent(ctx, rec.Get("studentid"))
	if err != nil {
		return outcome{status: outcomeRejected, category: CategoryUnknownStudent,
			reason: "student " + rec.Get("studentid") + " not found", cause: err, legacyID: rec.IPK}
	}

	amount, err := decimal.NewFromString(rec.Get("amount"))
	if err != nil || amount.IsNegative() {
		return outcome{status: outcomeRejected, category: CategoryInvalidAmount,
			reason: "amount " + rec.Get("amount") + " is not a valid money value",
			cause:  err, legacyID: rec.IPK}
	}

	ipk := rec.IPK
	txn := matcher.Transaction{
		StudentID: studentID,
		Term:      *term,
		Cycle:     term.Cycle,
		Program:   rec.Get("program"),
		Amount:    amount,
		LegacyIPK: &ipk,
	}
	if receipt := rec.Get("receiptid"); receipt != "" {
		txn.LegacyReceiptID = &receipt
	}
	if paid, ok := rec.GetDate("paymentdate"); ok {
		txn.PaymentDate = paid
	}

	var resolution *matcher.Resolution
	if s.cfg.DryRun {
		resolution, err = s.matcher.Resolve(ctx, txn)
	} else {
		resolution, err = s.matcher.Apply(ctx, ext, txn)
	}
	if err != nil {
		return outcome{status: outcomeRejected, category: CategoryMatchFailed,
			reason: "rule resolution failed", cause: err, legacyID: rec.IPK}
	}

	// created doubles as "a discount actually applied" here.
	return outcome{status: outcomeSuccess, created: len(resolution.Matches) > 0, legacyID: rec.IPK}
}

func (s *ReconciliationService) recordReceiptOutcome(ctx context.Context, rec *models.RawLegacyRecord, out outcome) error {
	switch out.status {
	case outcomeSuccess:
		if out.created {
			s.recorder.RecordSuccess("discount_applied", 1)
		} else {
			s.recorder.RecordSuccess("no_discount", 1)
		}
		return nil
	case outcomeRejected:
		return s.reject(ctx, out, recordLabel(rec, out))
	default:
		return nil
	}
}

func (s *ReconciliationService) reject(ctx context.Context, out outcome, recordID string) error {
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

func (s *ReconciliationService) batchSize() int {
	if s.cfg.BatchSize > 0 {
		return s.cfg.BatchSize
	}
	return 500
}
