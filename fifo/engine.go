/*
engine.go - FIFO allocation engine

PURPOSE:
  Matches unresolved consumption records against the oldest available
  purchase lots per vessel, derives allocated quantity and cost-basis
  value, and persists new allocation rows plus updated lot balances in
  atomic per-group batches.

ALGORITHM:
  1. Collect consumption records with zero associated allocations.
  2. Group by month key (ascending), then by vessel; within a group,
     order chronologically by (consumption date, id).
  3. Build the vessel's lot queue with the END of the processing month as
     cutoff, so a lot purchased later in the month can cover consumption
     earlier in the month, but a lot from a later month never can.
  4. Walk lots oldest first; fill each consumption's unfilled quantity
     with min(lot remaining, unfilled); snapshot the lot balance after
     every fill.
  5. Persist the group's allocations and touched lot balances as one
     atomic write. Any persistence failure aborts the run with nothing
     from that group visible.

SHORTFALLS:
  Consumption the lots cannot cover is reported per record with the
  exact missing quantity. A shortfall is data, not a fault - it resolves
  itself once more purchase records arrive and the engine runs again.

CANCELLATION:
  The caller's context is checked between vessel-month groups. Groups
  already committed stay committed; groups not yet started do not run.

SEE ALSO:
  - queue.go:    lot queue construction
  - recovery.go: full rebuild and targeted repair on top of this engine
*/
package fifo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// RESULTS
// =============================================================================

// Shortfall is the unmatched remainder of one consumption record.
type Shortfall struct {
	ConsumptionID ConsumptionID
	VesselID      VesselID
	Month         MonthKey
	Missing       decimal.Decimal
}

// RunResult summarizes one incremental allocation run.
type RunResult struct {
	ProcessedConsumptions  int
	AllocationsCreated     int
	TotalAllocatedQuantity decimal.Decimal
	TotalAllocatedValueUSD decimal.Decimal
	Shortfalls             []Shortfall

	// Log itemizes every fill: which lot fed which consumption and by
	// how much. Sufficient to audit the run after the fact.
	Log []string
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine performs incremental FIFO allocation runs. Single-writer: the
// caller must not run two engines against the same store concurrently.
type Engine struct {
	Store  Store
	Logger zerolog.Logger
}

// NewEngine creates an engine with a no-op logger.
func NewEngine(store Store) *Engine {
	return &Engine{Store: store, Logger: zerolog.Nop()}
}

// vesselMonthGroup is one unit of work: a vessel's unresolved consumption
// within one processing month, chronologically ordered.
type vesselMonthGroup struct {
	Month   MonthKey
	Vessel  VesselID
	Records []ConsumptionRecord
}

// Run allocates every currently unresolved consumption record. A run with
// no unresolved consumption is a successful no-op.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	unresolved, err := e.Store.ListUnresolvedConsumption(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unresolved consumption: %w", err)
	}

	result := &RunResult{
		TotalAllocatedQuantity: decimal.Zero,
		TotalAllocatedValueUSD: decimal.Zero,
	}

	groups := groupByVesselMonth(unresolved)
	e.Logger.Info().Int("unresolved", len(unresolved)).Int("groups", len(groups)).
		Msg("allocation run starting")

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			result.Log = append(result.Log,
				fmt.Sprintf("run cancelled before %s / vessel %s", g.Month, g.Vessel))
			return result, err
		}
		if err := e.runGroup(ctx, g, result); err != nil {
			return result, err
		}
	}

	e.Logger.Info().
		Int("consumptions", result.ProcessedConsumptions).
		Int("allocations", result.AllocationsCreated).
		Str("quantity", result.TotalAllocatedQuantity.String()).
		Msg("allocation run complete")
	return result, nil
}

// groupByVesselMonth buckets unresolved consumption into deterministic
// processing order: month asc, vessel asc, then chronological in-group.
func groupByVesselMonth(records []ConsumptionRecord) []vesselMonthGroup {
	type groupKey struct {
		Month  MonthKey
		Vessel VesselID
	}

	buckets := make(map[groupKey][]ConsumptionRecord)
	for _, rec := range records {
		k := groupKey{Month: rec.Month, Vessel: rec.VesselID}
		buckets[k] = append(buckets[k], rec)
	}

	keys := make([]groupKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Month != keys[j].Month {
			return keys[i].Month.Before(keys[j].Month)
		}
		return keys[i].Vessel < keys[j].Vessel
	})

	groups := make([]vesselMonthGroup, 0, len(keys))
	for _, k := range keys {
		recs := buckets[k]
		sort.SliceStable(recs, func(i, j int) bool {
			if !recs[i].ConsumptionDate.Equal(recs[j].ConsumptionDate) {
				return recs[i].ConsumptionDate.Before(recs[j].ConsumptionDate)
			}
			return recs[i].ID < recs[j].ID
		})
		groups = append(groups, vesselMonthGroup{Month: k.Month, Vessel: k.Vessel, Records: recs})
	}
	return groups
}

// runGroup allocates one vessel-month group and persists it atomically.
func (e *Engine) runGroup(ctx context.Context, g vesselMonthGroup, result *RunResult) error {
	totalConsumption := decimal.Zero
	for _, rec := range g.Records {
		totalConsumption = totalConsumption.Add(rec.Quantity)
	}
	result.Log = append(result.Log, fmt.Sprintf("%s vessel %s: %d consumption records, %s L to cover",
		g.Month, g.Vessel, len(g.Records), totalConsumption.StringFixed(volumePrecision)))

	cutoff, err := g.Month.EndOfMonth()
	if err != nil {
		return err
	}

	queue, err := BuildLotQueue(ctx, e.Store, g.Vessel, cutoff)
	if err != nil {
		return fmt.Errorf("build lot queue for %s: %w", g.Vessel, err)
	}

	var (
		newAllocs []Allocation
		filled    = make(map[ConsumptionID]decimal.Decimal, len(g.Records))
		loaded    = make(map[LotID]decimal.Decimal, len(queue))
		now       = time.Now().UTC()
	)
	for _, lot := range queue {
		loaded[lot.ID] = lot.RemainingQuantity
	}

	for li := range queue {
		lot := &queue[li]
		if !lot.RemainingQuantity.IsPositive() {
			continue
		}
		for _, rec := range g.Records {
			if !lot.RemainingQuantity.IsPositive() {
				break
			}
			unfilled := rec.Quantity.Sub(filled[rec.ID])
			if !unfilled.IsPositive() {
				continue
			}

			amount := decimal.Min(lot.RemainingQuantity, unfilled)
			lot.RemainingQuantity = lot.RemainingQuantity.Sub(amount)
			filled[rec.ID] = filled[rec.ID].Add(amount)

			value, valueUSD := ProportionalValue(*lot, amount)
			alloc := Allocation{
				ID:              NewAllocationID(),
				LotID:           lot.ID,
				ConsumptionID:   rec.ID,
				Quantity:        amount,
				Value:           value,
				ValueUSD:        valueUSD,
				LotBalanceAfter: lot.RemainingQuantity,
				Month:           rec.Month,
				CrossVessel:     false,
				CreatedAt:       now,
			}
			newAllocs = append(newAllocs, alloc)

			result.AllocationsCreated++
			result.TotalAllocatedQuantity = result.TotalAllocatedQuantity.Add(amount)
			result.TotalAllocatedValueUSD = result.TotalAllocatedValueUSD.Add(valueUSD)
			result.Log = append(result.Log, fmt.Sprintf("  lot %s -> consumption %s: %s L ($%s), lot balance %s L",
				lot.ID, rec.ID, amount.StringFixed(volumePrecision),
				valueUSD.StringFixed(moneyPrecision),
				lot.RemainingQuantity.StringFixed(volumePrecision)))
		}
	}

	// Anything still unfilled is reported, never raised.
	for _, rec := range g.Records {
		result.ProcessedConsumptions++
		missing := rec.Quantity.Sub(filled[rec.ID])
		if missing.GreaterThan(VolumeTolerance) {
			result.Shortfalls = append(result.Shortfalls, Shortfall{
				ConsumptionID: rec.ID,
				VesselID:      rec.VesselID,
				Month:         rec.Month,
				Missing:       missing,
			})
			result.Log = append(result.Log, fmt.Sprintf("  consumption %s under-allocated: %s L missing",
				rec.ID, missing.StringFixed(volumePrecision)))
			e.Logger.Warn().Str("consumption", string(rec.ID)).Str("vessel", string(rec.VesselID)).
				Str("missing", missing.String()).Msg("insufficient supply")
		}
	}

	if len(newAllocs) == 0 {
		return nil
	}

	var touched []PurchaseLot
	for _, lot := range queue {
		if !lot.RemainingQuantity.Equal(loaded[lot.ID]) {
			touched = append(touched, lot)
		}
	}
	if err := e.Store.ApplyAllocationBatch(ctx, newAllocs, touched); err != nil {
		return &BatchWriteError{Op: "apply", Cause: err}
	}
	return nil
}
