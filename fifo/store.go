/*
store.go - Persistence interface for the record store

PURPOSE:
  Defines the interface between the matching engine and durable storage.
  Purchases and consumption records are written by upstream data entry;
  allocations are written only here, in atomic batches, together with the
  lot balances they imply.

WRITE DISCIPLINE:
  - ApplyAllocationBatch:  the ONLY way allocation rows are created and
    lot balances decremented. All-or-nothing.
  - RemoveAllocationBatch: the ONLY way individual rows are destroyed
    (targeted repair). All-or-nothing.
  - ResetLedger:           full wipe + balance reset (full rebuild).
  No operation edits an allocation in place.

ORDERING CONTRACT:
  ListAllocations returns rows in creation/storage order (oldest first).
  Targeted repair relies on this to remove the NEWEST rows first, and the
  exception detector relies on it for chronology checks.

IMPLEMENTATIONS:
  - store/sqlite: production store
  - fifo/store:   in-memory store for tests and demos
*/
package fifo

import (
	"context"
	"time"
)

// AllocationFilter scopes ListAllocations. Nil fields are unconstrained;
// Window filters on the allocation's consumption month, at month
// granularity: a mid-month bound still covers that whole month.
type AllocationFilter struct {
	LotID         *LotID
	ConsumptionID *ConsumptionID
	Month         *MonthKey
	Window        Window
}

// Store is the record store the engine runs against.
type Store interface {
	// --- purchase lots ---

	SaveLot(ctx context.Context, lot PurchaseLot) error
	GetLot(ctx context.Context, id LotID) (*PurchaseLot, error)
	ListLots(ctx context.Context) ([]PurchaseLot, error)

	// ListLotsForVessel returns the vessel's lots with remaining quantity
	// > 0 and purchase date <= cutoff, ordered by (purchase date asc,
	// lot id asc). Empty slice, not an error, when none qualify.
	ListLotsForVessel(ctx context.Context, vessel VesselID, cutoff time.Time) ([]PurchaseLot, error)

	// --- consumption records ---

	SaveConsumption(ctx context.Context, rec ConsumptionRecord) error
	GetConsumption(ctx context.Context, id ConsumptionID) (*ConsumptionRecord, error)
	ListConsumption(ctx context.Context) ([]ConsumptionRecord, error)

	// ListUnresolvedConsumption returns records with zero associated
	// allocations, ordered by (month asc, vessel asc, date asc, id asc).
	ListUnresolvedConsumption(ctx context.Context) ([]ConsumptionRecord, error)

	// ListVesselsWithUnresolvedConsumption returns the distinct vessels
	// that currently have unresolved consumption, ordered by id.
	ListVesselsWithUnresolvedConsumption(ctx context.Context) ([]VesselID, error)

	// --- allocations ---

	ListAllocations(ctx context.Context, filter AllocationFilter) ([]Allocation, error)

	// ApplyAllocationBatch persists new allocation rows and the updated
	// remaining balances of touched lots as one atomic write. On error,
	// nothing from the batch is visible.
	ApplyAllocationBatch(ctx context.Context, newAllocations []Allocation, updatedLots []PurchaseLot) error

	// RemoveAllocationBatch deletes the given allocation rows and persists
	// corrected lot balances as one atomic write. ErrAllocationNotFound
	// when a referenced row does not exist; nothing is removed then.
	RemoveAllocationBatch(ctx context.Context, removed []AllocationID, updatedLots []PurchaseLot) error

	// ResetLedger deletes every allocation and restores every lot's
	// remaining quantity to its original quantity, atomically.
	ResetLedger(ctx context.Context) error
}
