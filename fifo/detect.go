/*
detect.go - Exception detector for the allocation ledger

PURPOSE:
  Scans the allocation ledger for findings a faithful engine run cannot
  produce: out-of-order fills within a lot, negative recorded balances,
  valuation drift, and cross-vessel matches. Presence of a finding means
  history was imported, hand-edited or replayed outside the engine.

SEVERITY:
  critical  negative recorded lot balance (ledger corruption)
  warning   chronology violation, value drift, cross-vessel match

Findings are data for manual remediation; detection never mutates and
the recovery orchestrator, never the detector, performs repairs.
*/
package fifo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FINDINGS
// =============================================================================

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

type FindingType string

const (
	FindingChronology      FindingType = "fifo_chronology_violation"
	FindingNegativeBalance FindingType = "negative_lot_balance"
	FindingValueDrift      FindingType = "value_calculation_drift"
	FindingCrossVessel     FindingType = "cross_vessel_allocation"
)

// Finding is one detected exception, carrying enough context to drive
// manual remediation.
type Finding struct {
	Type     FindingType
	Severity Severity

	LotID         LotID
	ConsumptionID ConsumptionID
	AllocationID  AllocationID

	// Date is the transaction (consumption) date used for ordering.
	Date time.Time

	Quantity         decimal.Decimal
	ExpectedValueUSD decimal.Decimal
	ActualValueUSD   decimal.Decimal

	Detail         string
	Recommendation string
}

// =============================================================================
// DETECTOR
// =============================================================================

// Detector inspects the allocation ledger. Read-only.
type Detector struct {
	Store Store
}

func NewDetector(store Store) *Detector { return &Detector{Store: store} }

// DetectExceptions scans allocations (optionally windowed by consumption
// month) and returns findings sorted by severity, then transaction date.
// The three core checks are independent and non-exclusive: one allocation
// can appear in several findings.
func (d *Detector) DetectExceptions(ctx context.Context, window Window) ([]Finding, error) {
	lots, err := d.Store.ListLots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	consumption, err := d.Store.ListConsumption(ctx)
	if err != nil {
		return nil, fmt.Errorf("list consumption: %w", err)
	}
	allocations, err := d.Store.ListAllocations(ctx, AllocationFilter{Window: window})
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}

	lotsByID := make(map[LotID]PurchaseLot, len(lots))
	for _, lot := range lots {
		lotsByID[lot.ID] = lot
	}
	consByID := make(map[ConsumptionID]ConsumptionRecord, len(consumption))
	for _, rec := range consumption {
		consByID[rec.ID] = rec
	}

	var findings []Finding

	// Per-lot walks need the ledger grouped by lot while preserving
	// creation/storage order inside each group.
	perLot := make(map[LotID][]Allocation)
	for _, alloc := range allocations {
		perLot[alloc.LotID] = append(perLot[alloc.LotID], alloc)

		rec, haveRec := consByID[alloc.ConsumptionID]
		date := alloc.CreatedAt
		if haveRec {
			date = rec.ConsumptionDate
		}

		if alloc.LotBalanceAfter.IsNegative() {
			findings = append(findings, Finding{
				Type:          FindingNegativeBalance,
				Severity:      SeverityCritical,
				LotID:         alloc.LotID,
				ConsumptionID: alloc.ConsumptionID,
				AllocationID:  alloc.ID,
				Date:          date,
				Quantity:      alloc.Quantity,
				Detail: fmt.Sprintf("allocation %s left lot %s at %s L",
					alloc.ID, alloc.LotID, alloc.LotBalanceAfter),
				Recommendation: "Run targeted repair on this lot; the ledger was edited or corrupted outside the engine.",
			})
		}

		if lot, ok := lotsByID[alloc.LotID]; ok {
			expected := alloc.Quantity.Mul(PricePerLiterUSD(lot))
			if !WithinTolerance(expected, alloc.ValueUSD, DriftTolerance) {
				findings = append(findings, Finding{
					Type:             FindingValueDrift,
					Severity:         SeverityWarning,
					LotID:            alloc.LotID,
					ConsumptionID:    alloc.ConsumptionID,
					AllocationID:     alloc.ID,
					Date:             date,
					Quantity:         alloc.Quantity,
					ExpectedValueUSD: expected,
					ActualValueUSD:   alloc.ValueUSD,
					Detail: fmt.Sprintf("expected $%s for %s L at lot price, ledger has $%s",
						expected.StringFixed(moneyPrecision),
						alloc.Quantity.StringFixed(volumePrecision),
						alloc.ValueUSD.StringFixed(moneyPrecision)),
					Recommendation: "Rebuild allocations for this lot to restore proportional cost basis.",
				})
			}

			if haveRec && lot.VesselID != rec.VesselID {
				findings = append(findings, Finding{
					Type:          FindingCrossVessel,
					Severity:      SeverityWarning,
					LotID:         alloc.LotID,
					ConsumptionID: alloc.ConsumptionID,
					AllocationID:  alloc.ID,
					Date:          date,
					Quantity:      alloc.Quantity,
					Detail: fmt.Sprintf("lot belongs to vessel %s, consumption to vessel %s",
						lot.VesselID, rec.VesselID),
					Recommendation: "Review vessel reassignment history; the matcher never borrows across vessels.",
				})
			}
		}
	}

	// Chronology: within a lot, fills inspected in storage order must be
	// non-decreasing in consumption date.
	for lotID, allocs := range perLot {
		for i := 0; i+1 < len(allocs); i++ {
			cur, haveCur := consByID[allocs[i].ConsumptionID]
			next, haveNext := consByID[allocs[i+1].ConsumptionID]
			if !haveCur || !haveNext {
				continue
			}
			if cur.ConsumptionDate.After(next.ConsumptionDate) {
				findings = append(findings, Finding{
					Type:          FindingChronology,
					Severity:      SeverityWarning,
					LotID:         lotID,
					ConsumptionID: allocs[i+1].ConsumptionID,
					AllocationID:  allocs[i+1].ID,
					Date:          next.ConsumptionDate,
					Quantity:      allocs[i+1].Quantity,
					Detail: fmt.Sprintf("allocation %s (consumed %s) stored after %s (consumed %s)",
						allocs[i+1].ID, next.ConsumptionDate.Format("2006-01-02"),
						allocs[i].ID, cur.ConsumptionDate.Format("2006-01-02")),
					Recommendation: "Review for manual edits or replays; a faithful run fills lots in chronological order.",
				})
			}
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Severity != findings[j].Severity {
			return findings[i].Severity == SeverityCritical
		}
		return findings[i].Date.Before(findings[j].Date)
	})
	return findings, nil
}
