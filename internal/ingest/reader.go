// Package ingest reads legacy CSV exports into RawLegacyRecord values.
// The header contract is strict: a missing required column aborts the
// run before any row is touched. Individual rows are lenient: a
// malformed row becomes a per-row rejection, never a fatal error.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/models"
	appErrors "github.com/starkjeffrey/naga-monorepo-v1-final-sub013/pkg/errors"
)

// RowError describes one unreadable row.
type RowError struct {
	Line   int
	Reason string
	Err    error
}

// Reader streams RawLegacyRecords from a CSV export.
type Reader struct {
	csv           *csv.Reader
	header        []string
	legacyIDField string
	line          int
}

// Open opens a CSV file and validates its header.
func Open(path string, required []string, legacyIDField string) (*Reader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.KindFatalConfig,
			appErrors.ErrMissingInputFile.Code, "open "+path)
	}
	r, err := NewReader(f, required, legacyIDField)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return r, f, nil
}

// NewReader wraps an io.Reader and validates the header up front.
func NewReader(src io.Reader, required []string, legacyIDField string) (*Reader, error) {
	cr := csv.NewReader(src)
	cr.TrimLeadingSpace = true
	// Row-shape errors are handled per row, not by the csv package.
	cr.FieldsPerRecord = -1

	raw, err := cr.Read()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.KindFatalConfig,
			appErrors.ErrEmptyHeader.Code, "read header")
	}

	header := make([]string, len(raw))
	for i, col := range raw {
		header[i] = normalizeHeader(col)
	}

	present := make(map[string]bool, len(header))
	for _, col := range header {
		present[col] = true
	}
	for _, col := range required {
		if !present[col] {
			return nil, appErrors.Clone(appErrors.ErrMissingColumn,
				fmt.Sprintf("required column %q missing from header", col))
		}
	}

	return &Reader{csv: cr, header: header, legacyIDField: legacyIDField, line: 1}, nil
}

// Header returns the normalized header columns.
func (r *Reader) Header() []string {
	return r.header
}

// Read returns the next record, a per-row error, or io.EOF. Exactly
// one of record and rowErr is set on a non-EOF return.
func (r *Reader) Read() (*models.RawLegacyRecord, *RowError, error) {
	row, err := r.csv.Read()
	if err == io.EOF {
		return nil, nil, io.EOF
	}
	r.line++
	if err != nil {
		return nil, &RowError{Line: r.line, Reason: "unreadable row", Err: err}, nil
	}
	if len(row) != len(r.header) {
		return nil, &RowError{
			Line:   r.line,
			Reason: fmt.Sprintf("expected %d fields, got %d", len(r.header), len(row)),
		}, nil
	}

	fields := make(map[string]string, len(r.header))
	for i, col := range r.header {
		fields[col] = row[i]
	}

	rec := &models.RawLegacyRecord{Line: r.line, Fields: fields}
	if raw := strings.TrimSpace(fields[r.legacyIDField]); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			rec.IPK = id
			rec.IPKValid = true
		}
	}
	return rec, nil, nil
}

// normalizeHeader lower-cases, trims, and strips a UTF-8 BOM; the
// legacy exporter produced all three inconsistencies over the years.
func normalizeHeader(col string) string {
	col = strings.TrimPrefix(col, "\uFEFF")
	return strings.ToLower(strings.TrimSpace(col))
}
