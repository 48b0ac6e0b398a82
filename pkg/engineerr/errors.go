// Package engineerr defines the cognitive memory engine's error taxonomy.
//
// Every operation wraps failures in an *Error carrying the operation name,
// a error kind from the closed taxonomy below, and a context blob with
// actionable details (offending field, elapsed time, cluster size, ...).
// This generalizes the shape of a typical MemoryError{Op, Err} wrapper
// with an explicit Kind and Context, so callers can branch with
// engineerr.Is on the Kind values (and errors.Is on the sentinel causes)
// while still getting a human-readable message.
package engineerr

import (
	"errors"
	"fmt"
)

// Kind is a sentinel identifying which bucket of the taxonomy an error
// belongs to. Kind is not an error; match it with engineerr.Is.
type Kind string

const (
	// KindValidation covers input bounds, missing required fields, bad
	// enums, and zero search criteria. Rejected before any I/O.
	KindValidation Kind = "validation"

	// KindNotFound covers an id not found, or not owned by the caller —
	// indistinguishable to the caller for privacy.
	KindNotFound Kind = "not_found"

	// KindForbidden covers ownership mismatch on a by-id operation where
	// revealing existence is acceptable.
	KindForbidden Kind = "forbidden"

	// KindConflict covers a concurrent update that would violate an
	// invariant; the caller may retry.
	KindConflict Kind = "conflict"

	// KindTransaction covers a partial write detected mid-transaction;
	// the engine rolled back and the caller should retry.
	KindTransaction Kind = "transaction"

	// KindTimeout covers an operation that exceeded its configured
	// deadline.
	KindTimeout Kind = "timeout"

	// KindStorage covers the underlying store being unavailable.
	KindStorage Kind = "storage"

	// KindConsolidation covers a cluster-specific consolidation failure.
	KindConsolidation Kind = "consolidation"
)

// Error wraps an underlying error with operation context.
//
// Example:
//
//	err := &Error{Op: "Repository.Create", Kind: KindValidation, Err: ErrContentTooShort}
//	// Error() returns: "memengine: Repository.Create: validation: content shorter than minimum length"
type Error struct {
	// Op is the name of the operation that failed, e.g. "Repository.Create".
	Op string

	// Kind identifies which bucket of the taxonomy this error belongs to.
	Kind Kind

	// Context carries actionable details specific to the failure (the
	// offending field, elapsed ms, centroid id, member count, ...).
	Context map[string]interface{}

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("memengine: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("memengine: %s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error, enabling errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new *Error. If err is nil, New still returns a non-nil
// *Error carrying only Op/Kind/Context — useful when the failure has no
// separate underlying cause (e.g. a bare validation rejection).
func New(op string, kind Kind, err error, context map[string]interface{}) error {
	return &Error{Op: op, Kind: kind, Err: err, Context: context}
}

// Is reports whether err (or any error it wraps) is an *Error of the given
// kind, enabling `errors.Is(err, engineerr.KindValidation)`-style checks
// via a thin adapter since Kind itself is not an error.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Sentinel underlying causes reused across packages so callers can also
// match on the specific failure, not just its Kind.
var (
	ErrContentTooShort      = errors.New("content shorter than minimum length")
	ErrContentTooLong       = errors.New("content longer than maximum length")
	ErrInvalidSector        = errors.New("invalid primary sector")
	ErrEmptyUpdate          = errors.New("update requires at least one field")
	ErrNoSearchCriteria     = errors.New("search requires at least one criterion")
	ErrInvalidWeights       = errors.New("strategy weights must be finite, non-negative, and sum to 1.0")
	ErrBatchTooLarge        = errors.New("batch exceeds the maximum allowed size")
	ErrSelfLoop             = errors.New("a link cannot connect a memory to itself")
	ErrDimensionMismatch    = errors.New("embedding dimension mismatch")
	ErrEmptyQuery           = errors.New("query is empty or whitespace-only")
	ErrQueryTooLong         = errors.New("query exceeds the maximum length")
	ErrUnbalancedGrouping   = errors.New("unbalanced parentheses in query")
	ErrInvalidFilterRange   = errors.New("filter range is inverted (min after max)")
)
