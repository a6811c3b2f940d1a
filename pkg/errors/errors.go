package errors

import (
	"errors"
	"fmt"
)

// Kind classifies migration failures by how the run must react.
type Kind string

const (
	// KindFatalConfig aborts the run before any row is processed.
	KindFatalConfig Kind = "FATAL_CONFIG"
	// KindRejection is a recoverable per-record failure; the run continues.
	KindRejection Kind = "REJECTION"
	// KindContract marks a programming defect, not a data-quality problem.
	KindContract Kind = "CONTRACT"
)

// Error is a typed migration error carrying its reaction class.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrMissingInputFile     = New(KindFatalConfig, "MISSING_INPUT_FILE", "input file not found")
	ErrMissingColumn        = New(KindFatalConfig, "MISSING_REQUIRED_COLUMN", "required column missing from header")
	ErrEmptyHeader          = New(KindFatalConfig, "EMPTY_HEADER", "input file has no header row")
	ErrUndeclaredCategory   = New(KindContract, "UNDECLARED_CATEGORY", "rejection category was not declared for this run")
	ErrMalformedRow         = New(KindRejection, "MALFORMED_ROW", "row does not match the header shape")
	ErrInvalidLegacyID      = New(KindRejection, "INVALID_LEGACY_ID", "legacy id is not an integer")
	ErrRuleValidation       = New(KindContract, "INVALID_DISCOUNT_RULE", "discount rule configuration is invalid")
	ErrUpsertFailed         = New(KindRejection, "UPSERT_FAILED", "target upsert failed")
	ErrWatermarkUnavailable = New(KindFatalConfig, "WATERMARK_UNAVAILABLE", "could not compute watermark from target tables")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, KindRejection, "UNCLASSIFIED", "unclassified error")
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindFatalConfig
	}
	return false
}

// IsContract reports whether err is a programming defect.
func IsContract(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindContract
	}
	return false
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
