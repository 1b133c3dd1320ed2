/*
recovery.go - Recovery orchestrator

PURPOSE:
  Remediates ledger drift that the verifier or detector surfaced. Two
  modes, both transactional and both idempotent:

  Full rebuild   Wipe every allocation, reset every lot to its original
                 quantity, and re-run the engine over all consumption as
                 a from-scratch pass. Used when drift is severe or
                 provenance is untrusted.

  Targeted repair  For lots whose allocations exceed the purchased
                 quantity, remove the NEWEST allocations (by creation/
                 storage order, not consumption date) until the excess is
                 gone, then recompute the remaining balance. Keeps the
                 historically earlier, presumably-correct rows intact.

Running either mode twice with no intervening data change is a no-op the
second time.

SEE ALSO:
  - engine.go: the rebuild delegates the matching itself to the engine
  - detect.go: finds the conditions repair remediates
*/
package fifo

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// RESULTS
// =============================================================================

// RebuildResult reports a full from-scratch rebuild.
type RebuildResult struct {
	FixedLots          int
	RemovedAllocations int
	CreatedAllocations int
	Shortfalls         []Shortfall
	Log                []string
}

// RepairResult reports a targeted repair of over-allocated lots.
type RepairResult struct {
	FixedLots          int
	RemovedAllocations int
	Log                []string
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator owns destructive ledger operations. Like the engine it
// assumes single-writer access for the duration of a call.
type Orchestrator struct {
	Store  Store
	Engine *Engine
	Logger zerolog.Logger
}

func NewOrchestrator(store Store) *Orchestrator {
	return &Orchestrator{Store: store, Engine: NewEngine(store), Logger: zerolog.Nop()}
}

// RebuildFromScratch wipes and regenerates the entire allocation history.
func (o *Orchestrator) RebuildFromScratch(ctx context.Context) (*RebuildResult, error) {
	existing, err := o.Store.ListAllocations(ctx, AllocationFilter{})
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	lots, err := o.Store.ListLots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}

	result := &RebuildResult{RemovedAllocations: len(existing)}
	for _, lot := range lots {
		if !lot.RemainingQuantity.Equal(lot.OriginalQuantity) {
			result.FixedLots++
		}
	}

	if err := o.Store.ResetLedger(ctx); err != nil {
		return nil, &BatchWriteError{Op: "reset", Cause: err}
	}
	result.Log = append(result.Log, fmt.Sprintf("removed %d allocations, reset %d lot balances",
		result.RemovedAllocations, result.FixedLots))

	o.Logger.Info().Int("removed", result.RemovedAllocations).Msg("ledger wiped, rebuilding")

	runResult, err := o.Engine.Run(ctx)
	if runResult != nil {
		result.CreatedAllocations = runResult.AllocationsCreated
		result.Shortfalls = runResult.Shortfalls
		result.Log = append(result.Log, runResult.Log...)
	}
	if err != nil {
		return result, err
	}

	result.Log = append(result.Log, fmt.Sprintf("rebuild complete: %d allocations created, %d shortfalls",
		result.CreatedAllocations, len(result.Shortfalls)))
	return result, nil
}

// RepairOverAllocatedLots trims excess allocations from lots holding more
// allocated quantity than was ever purchased, newest rows first, then
// recomputes remaining balances. One atomic write covers every repaired
// lot.
func (o *Orchestrator) RepairOverAllocatedLots(ctx context.Context) (*RepairResult, error) {
	lots, err := o.Store.ListLots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}

	result := &RepairResult{}
	var (
		removed     []AllocationID
		updatedLots []PurchaseLot
	)

	for _, lot := range lots {
		lotID := lot.ID
		allocs, err := o.Store.ListAllocations(ctx, AllocationFilter{LotID: &lotID})
		if err != nil {
			return nil, fmt.Errorf("list allocations for lot %s: %w", lotID, err)
		}

		allocated := decimal.Zero
		for _, a := range allocs {
			allocated = allocated.Add(a.Quantity)
		}
		if allocated.LessThanOrEqual(lot.OriginalQuantity.Add(VolumeTolerance)) {
			continue
		}

		result.Log = append(result.Log, fmt.Sprintf("lot %s over-allocated: %s L against %s L purchased",
			lotID, allocated.StringFixed(volumePrecision), lot.OriginalQuantity.StringFixed(volumePrecision)))

		// Drop from the tail (newest by creation order) until back under
		// the cap.
		trimmed := 0
		for i := len(allocs) - 1; i >= 0 && allocated.GreaterThan(lot.OriginalQuantity.Add(VolumeTolerance)); i-- {
			allocated = allocated.Sub(allocs[i].Quantity)
			removed = append(removed, allocs[i].ID)
			trimmed++
			result.Log = append(result.Log, fmt.Sprintf("  removing allocation %s (%s L)",
				allocs[i].ID, allocs[i].Quantity.StringFixed(volumePrecision)))
		}

		// Removing every row leaves zero allocated, so staying over the
		// cap means the lot row itself is bad (e.g. a negative original
		// quantity) and trimming cannot fix it.
		if allocated.GreaterThan(lot.OriginalQuantity.Add(VolumeTolerance)) {
			return nil, &OverAllocatedLotError{
				LotID:     lotID,
				Original:  lot.OriginalQuantity,
				Allocated: allocated,
			}
		}

		lot.RemainingQuantity = lot.OriginalQuantity.Sub(allocated)
		updatedLots = append(updatedLots, lot)
		result.FixedLots++
		result.RemovedAllocations += trimmed
		result.Log = append(result.Log, fmt.Sprintf("  lot %s remaining recomputed to %s L",
			lotID, lot.RemainingQuantity.StringFixed(volumePrecision)))
	}

	if len(updatedLots) == 0 {
		result.Log = append(result.Log, "no over-allocated lots found")
		return result, nil
	}

	if err := o.Store.RemoveAllocationBatch(ctx, removed, updatedLots); err != nil {
		return nil, &BatchWriteError{Op: "remove", Cause: err}
	}

	o.Logger.Info().Int("lots", result.FixedLots).Int("removed", result.RemovedAllocations).
		Msg("targeted repair complete")
	return result, nil
}
