package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/models"
	appErrors "github.com/starkjeffrey/naga-monorepo-v1-final-sub013/pkg/errors"
)

type storeStub struct {
	runs       []models.MigrationRun
	closed     []models.RunStatus
	rejections []models.RejectionRecord
	err        error
}

func (s *storeStub) CreateRun(ctx context.Context, run *models.MigrationRun) error {
	if s.err != nil {
		return s.err
	}
	s.runs = append(s.runs, *run)
	return nil
}

func (s *storeStub) CloseRun(ctx context.Context, runID string, status models.RunStatus, finishedAt time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.closed = append(s.closed, status)
	return nil
}

func (s *storeStub) AppendRejection(ctx context.Context, rec *models.RejectionRecord) error {
	if s.err != nil {
		return s.err
	}
	s.rejections = append(s.rejections, *rec)
	return nil
}

func TestRecorderAccumulatesSuccesses(t *testing.T) {
	r := NewRecorder("receipt_backfill", false, []string{"malformed_row"})

	r.RecordSuccess("created", 3)
	r.RecordSuccess("created", 2)
	r.RecordSuccess("updated", 1)

	report := r.Report()
	assert.Equal(t, 5, report.Successes["created"])
	assert.Equal(t, 1, report.Successes["updated"])
	assert.Equal(t, 6, report.TotalOK)
}

func TestRecorderRejectsUndeclaredCategory(t *testing.T) {
	r := NewRecorder("receipt_backfill", false, []string{"malformed_row"})

	err := r.RecordRejection(context.Background(), "surprise", "rec-1", "nope", nil)
	require.Error(t, err)
	assert.True(t, appErrors.IsContract(err))

	report := r.Report()
	assert.Equal(t, 0, report.TotalFailed)
}

func TestRecorderPersistsRejectionsThroughStore(t *testing.T) {
	store := &storeStub{}
	r := NewRecorder("receipt_backfill", false, []string{"malformed_row", "upsert_failed"}, WithStore(store))
	require.NoError(t, r.Begin(context.Background()))

	cause := errors.New("pq: duplicate key")
	require.NoError(t, r.RecordRejection(context.Background(), "upsert_failed", "rec-9", "insert failed", cause))

	require.Len(t, store.rejections, 1)
	rec := store.rejections[0]
	assert.Equal(t, "upsert_failed", rec.Category)
	assert.Equal(t, "rec-9", rec.RecordID)
	require.NotNil(t, rec.ErrorDetails)
	assert.Contains(t, *rec.ErrorDetails, "duplicate key")
	assert.Equal(t, r.RunID(), rec.RunID)
}

func TestRecorderInputStatsAreOneShot(t *testing.T) {
	r := NewRecorder("receipt_backfill", false, nil)

	r.RecordInputStats(map[string]any{"file": "receipts.csv", "rows": 100})
	r.RecordInputStats(map[string]any{"rows": 999})

	report := r.Report()
	assert.Equal(t, 100, report.InputStats["rows"])
}

func TestRecorderReportRates(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	r := NewRecorder("receipt_backfill", true, []string{"malformed_row"},
		WithClock(func() time.Time { return fixed }))

	r.RecordSuccess("created", 3)
	require.NoError(t, r.RecordRejection(context.Background(), "malformed_row", "rec-2", "bad row", nil))

	report := r.Report()
	assert.Equal(t, 4, report.TotalInput)
	assert.InDelta(t, 0.75, report.SuccessRate, 1e-9)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Rejections["malformed_row"])
}

func TestRecorderEmptyRunHasZeroRate(t *testing.T) {
	r := NewRecorder("noop", false, nil)
	report := r.Report()
	assert.Equal(t, 0, report.TotalInput)
	assert.Equal(t, 0.0, report.SuccessRate)
}

func TestRecorderFinalizeClosesRun(t *testing.T) {
	store := &storeStub{}
	r := NewRecorder("receipt_backfill", false, nil, WithStore(store))
	require.NoError(t, r.Begin(context.Background()))

	r.Finalize(context.Background(), models.RunStatusSuccess)

	require.Len(t, store.closed, 1)
	assert.Equal(t, models.RunStatusSuccess, store.closed[0])
}
