package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/audit"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/ingest"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/ledger"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/matcher"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/repository"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/service"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/pkg/config"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/pkg/database"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/pkg/export"
	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/pkg/logger"
)

func main() {
	var (
		inputPath string
		runType   string
		dryRun    bool
		report    string
		outPath   string
		batchSize int
	)

	flag.StringVar(&inputPath, "file", "", "Path to the legacy CSV export")
	flag.StringVar(&runType, "type", "enrollments", "Run type: enrollments or receipts")
	flag.BoolVar(&dryRun, "dry-run", false, "Resolve and report without writing targets")
	flag.StringVar(&report, "report", "", "Report format: text, csv, or pdf (default from env)")
	flag.StringVar(&outPath, "out", "", "Write the report to this file instead of stdout")
	flag.IntVar(&batchSize, "batch-size", 0, "Records per transaction (default from env)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if dryRun {
		cfg.Migration.DryRun = true
	}
	if batchSize > 0 {
		cfg.Migration.BatchSize = batchSize
	}
	if report == "" {
		report = cfg.Migration.ReportFormat
	}
	if report == "" {
		report = "text"
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if inputPath == "" {
		logr.Fatal("missing -file: a legacy CSV export is required")
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	if cfg.Migration.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Migration.RunTimeout)
		defer cancel()
	}

	result, err := run(ctx, cfg, logr, db, inputPath, runType)
	if err != nil {
		logr.Fatal("run aborted", zap.String("type", runType), zap.Error(err))
	}

	if err := writeReport(result, report, outPath); err != nil {
		logr.Fatal("failed to render report", zap.Error(err))
	}
	if result.Report.TotalFailed > 0 {
		os.Exit(2)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger, db *sqlx.DB, inputPath, runType string) (*service.RunResult, error) {
	switch runType {
	case "enrollments":
		return runEnrollments(ctx, cfg, logr, db, inputPath)
	case "receipts":
		return runReceipts(ctx, cfg, logr, db, inputPath)
	default:
		return nil, fmt.Errorf("unknown run type %q", runType)
	}
}

// newRecorder wires audit persistence over its own connection so run
// records survive batch rollbacks. Dry runs keep the recorder purely
// in memory.
func newRecorder(cfg *config.Config, logr *zap.Logger, name string, categories []string) (*audit.Recorder, func(), error) {
	opts := []audit.Option{audit.WithLogger(logr)}
	cleanup := func() {}
	if !cfg.Migration.DryRun {
		auditDB, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("audit connection: %w", err)
		}
		opts = append(opts, audit.WithStore(repository.NewMigrationAuditRepository(auditDB)))
		cleanup = func() { auditDB.Close() }
	}
	return audit.NewRecorder(name, cfg.Migration.DryRun, categories, opts...), cleanup, nil
}

func runEnrollments(ctx context.Context, cfg *config.Config, logr *zap.Logger, db *sqlx.DB, inputPath string) (*service.RunResult, error) {
	idField := cfg.Migration.LegacyIDField
	reader, closer, err := ingest.Open(inputPath, []string{idField, "classid", "studentid"}, idField)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	recorder, cleanup, err := newRecorder(cfg, logr, "legacy_enrollments", service.StandardRejectionCategories)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	wm := ledger.New("enrollments",
		[]ledger.TableRef{{Table: "enrollments", Column: "legacy_id"}},
		repository.NewWatermarkSourceRepository(db), logr)

	upserter := service.NewEnrollmentUpserter(
		repository.NewTermRepository(db),
		repository.NewEnrollmentRepository(db),
		repository.NewStudentRepository(db))

	var review service.ReviewQueue
	if cfg.Migration.ReviewQueue {
		review = repository.NewReviewQueueRepository(db)
	}

	svc := service.NewMigrationService(cfg.Migration, cfg.Env,
		service.Columns{Identifier: "classid", TimeHint: "timehint"},
		wm, recorder, upserter, review, service.NewSQLTxRunner(db), logr)

	return svc.Run(ctx, reader, inputStats(inputPath))
}

func runReceipts(ctx context.Context, cfg *config.Config, logr *zap.Logger, db *sqlx.DB, inputPath string) (*service.RunResult, error) {
	idField := cfg.Migration.LegacyIDField
	reader, closer, err := ingest.Open(inputPath, []string{idField, "studentid", "termid", "amount"}, idField)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	recorder, cleanup, err := newRecorder(cfg, logr, "legacy_receipts", service.ReceiptRejectionCategories)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	wm := ledger.New("receipts",
		[]ledger.TableRef{{Table: "discount_applications", Column: "legacy_ipk"}},
		repository.NewWatermarkSourceRepository(db), logr)

	m := matcher.New(
		repository.NewDiscountRuleRepository(db),
		repository.NewEnrollmentRepository(db),
		repository.NewDiscountApplicationRepository(db), logr)

	svc := service.NewReconciliationService(cfg.Migration, cfg.Env,
		wm, recorder,
		repository.NewTermRepository(db),
		repository.NewStudentRepository(db),
		m, service.NewSQLTxRunner(db), logr)

	return svc.Run(ctx, reader, inputStats(inputPath))
}

func inputStats(path string) map[string]any {
	stats := map[string]any{"file": path}
	if info, err := os.Stat(path); err == nil {
		stats["bytes"] = info.Size()
	}
	return stats
}

func writeReport(result *service.RunResult, format, outPath string) error {
	var rendered []byte
	switch format {
	case "text":
		if outPath == "" {
			return export.WriteText(os.Stdout, result.Report, result.Skipped, result.PendingReview)
		}
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		return export.WriteText(f, result.Report, result.Skipped, result.PendingReview)
	case "csv":
		out, err := export.NewCSVExporter().Render(export.ReportDataset(result.Report, result.Skipped, result.PendingReview))
		if err != nil {
			return err
		}
		rendered = out
	case "pdf":
		if outPath == "" {
			return fmt.Errorf("pdf reports require -out")
		}
		out, err := export.NewPDFExporter().Render(export.ReportDataset(result.Report, result.Skipped, result.PendingReview))
		if err != nil {
			return err
		}
		rendered = out
	default:
		return fmt.Errorf("unknown report format %q", format)
	}

	if outPath == "" {
		_, err := os.Stdout.Write(rendered)
		return err
	}
	return os.WriteFile(outPath, rendered, 0o644)
}
