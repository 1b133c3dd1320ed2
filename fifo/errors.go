/*
errors.go - Centralized error types for the lot-matching engine

PURPOSE:
  All error types in one place. The engine distinguishes infrastructure
  failures, which propagate as errors, from business conditions such as
  shortfalls and integrity findings, which are reported data and never
  raised.

USAGE:
  if errors.Is(err, fifo.ErrLotNotFound) { ... }

SEE ALSO:
  - engine.go: surfaces structured results, not errors, for shortfalls
  - store.go:  persistence operations returning these errors
*/
package fifo

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrLotNotFound is returned when a referenced purchase lot does not exist.
	ErrLotNotFound = errors.New("purchase lot not found")

	// ErrConsumptionNotFound is returned when a referenced consumption record
	// does not exist.
	ErrConsumptionNotFound = errors.New("consumption record not found")

	// ErrAllocationNotFound is returned when a referenced allocation does not
	// exist.
	ErrAllocationNotFound = errors.New("allocation not found")

	// ErrBatchWriteFailed is returned when an atomic allocation batch cannot
	// be committed. Nothing from the batch is visible afterwards.
	ErrBatchWriteFailed = errors.New("allocation batch write failed")
)

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLotNotFound) ||
		errors.Is(err, ErrConsumptionNotFound) ||
		errors.Is(err, ErrAllocationNotFound)
}

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// BatchWriteError wraps the storage cause of a failed atomic batch write.
type BatchWriteError struct {
	Op    string // e.g. "apply", "remove", "reset"
	Cause error
}

func (e *BatchWriteError) Error() string {
	return fmt.Sprintf("allocation batch %s failed: %v", e.Op, e.Cause)
}

func (e *BatchWriteError) Unwrap() error { return ErrBatchWriteFailed }

// OverAllocatedLotError describes a lot whose allocations exceed its
// original quantity. Produced by targeted repair when removing every
// allocation still cannot bring the lot under its cap, which means the
// lot row itself is corrupt (e.g. a negative original quantity).
type OverAllocatedLotError struct {
	LotID     LotID
	Original  decimal.Decimal
	Allocated decimal.Decimal
}

func (e *OverAllocatedLotError) Error() string {
	return fmt.Sprintf("lot %s over-allocated: %s allocated against %s purchased",
		e.LotID, e.Allocated, e.Original)
}
