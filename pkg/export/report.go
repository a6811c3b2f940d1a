package export

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/models"
)

// ReportDataset flattens a migration report into one row per counter
// so every exporter renders the same content. pendingReview is the
// review queue depth after the run.
func ReportDataset(report models.MigrationReport, skipped, pendingReview int) Dataset {
	mode := "live"
	if report.DryRun {
		mode = "dry-run"
	}
	data := Dataset{
		Title:   fmt.Sprintf("%s migration report (%s)", report.Name, mode),
		Headers: []string{"section", "metric", "value"},
	}

	add := func(section, metric, value string) {
		data.Rows = append(data.Rows, map[string]string{
			"section": section,
			"metric":  metric,
			"value":   value,
		})
	}

	add("run", "run_id", report.RunID)
	add("run", "started_at", report.StartedAt.Format("2006-01-02 15:04:05"))
	add("run", "finished_at", report.FinishedAt.Format("2006-01-02 15:04:05"))
	for _, key := range sortedKeys(report.InputStats) {
		add("input", key, fmt.Sprint(report.InputStats[key]))
	}
	for _, key := range sortedCounterKeys(report.Successes) {
		add("successes", key, strconv.Itoa(report.Successes[key]))
	}
	for _, key := range sortedCounterKeys(report.Rejections) {
		add("rejections", key, strconv.Itoa(report.Rejections[key]))
	}
	add("totals", "input", strconv.Itoa(report.TotalInput))
	add("totals", "ok", strconv.Itoa(report.TotalOK))
	add("totals", "failed", strconv.Itoa(report.TotalFailed))
	add("totals", "skipped", strconv.Itoa(skipped))
	add("totals", "pending_review", strconv.Itoa(pendingReview))
	add("totals", "success_rate", fmt.Sprintf("%.1f%%", report.SuccessRate*100))
	return data
}

// WriteText renders the report for a terminal.
func WriteText(w io.Writer, report models.MigrationReport, skipped, pendingReview int) error {
	mode := "live"
	if report.DryRun {
		mode = "DRY RUN"
	}
	var err error
	p := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	p("=== %s (%s) ===\n", report.Name, mode)
	p("run %s, %s to %s\n", report.RunID,
		report.StartedAt.Format("2006-01-02 15:04:05"),
		report.FinishedAt.Format("2006-01-02 15:04:05"))
	for _, key := range sortedKeys(report.InputStats) {
		p("input %-22s %v\n", key, report.InputStats[key])
	}
	p("\nsuccesses:\n")
	for _, key := range sortedCounterKeys(report.Successes) {
		p("  %-24s %d\n", key, report.Successes[key])
	}
	p("rejections:\n")
	for _, key := range sortedCounterKeys(report.Rejections) {
		p("  %-24s %d\n", key, report.Rejections[key])
	}
	p("\ntotal input %d, ok %d, failed %d, skipped %d (%.1f%% success)\n",
		report.TotalInput, report.TotalOK, report.TotalFailed, skipped,
		report.SuccessRate*100)
	p("pending review queue %d\n", pendingReview)
	return err
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedCounterKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
