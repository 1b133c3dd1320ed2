/*
Package fifo provides the FIFO lot-matching and ledger-consistency engine.

PURPOSE:
  This package contains the core types and algorithms for allocating fuel
  consumption against purchase lots on a strict first-in-first-out cost
  basis. It keeps lot balances, consumption coverage and monetary valuation
  mutually consistent, and can rebuild the entire allocation ledger from
  source records when drift is detected.

KEY CONCEPTS IN THIS FILE (types.go):
  - PurchaseLot: a single purchase transaction's fuel, with its own
    remaining balance tracked until fully consumed
  - ConsumptionRecord: fuel burned by a vessel on a date, allocable
    against one or more lots
  - Allocation: an append-only ledger row matching part of a consumption
    to part of a lot, with a proportional cost-basis valuation

DESIGN PRINCIPLES:
  1. Exact arithmetic: decimal.Decimal for every liter and every dollar.
     No binary floating point anywhere in the ledger.
  2. Append-only allocations: corrections are made by deleting and
     regenerating, never by editing in place.
  3. Pure derivations: price-per-liter and density are functions over a
     lot, not stored fields that can drift.

SEE ALSO:
  - engine.go: the allocation algorithm
  - store.go:  persistence interface
  - verify.go / detect.go: read-only consistency passes
*/
package fifo

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	VesselID      string
	SupplierID    string
	LotID         string
	ConsumptionID string
	AllocationID  string
)

// NewAllocationID mints an identity for a new allocation row.
func NewAllocationID() AllocationID {
	return AllocationID(uuid.NewString())
}

// =============================================================================
// TOLERANCES
// =============================================================================

// Comparisons on quantities and money use fixed tolerances so that
// proportional-share rounding never reads as corruption.
var (
	// VolumeTolerance is the comparison tolerance for liters (0.001 L).
	VolumeTolerance = decimal.New(1, -3)

	// MoneyTolerance is the comparison tolerance for monetary values (0.01).
	MoneyTolerance = decimal.New(1, -2)

	// DriftTolerance is the looser tolerance used when grading individual
	// allocation valuations as drift findings (0.10).
	DriftTolerance = decimal.New(1, -1)
)

// WithinTolerance reports whether a and b differ by at most tol.
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}

// =============================================================================
// SOURCE RECORDS
// =============================================================================

// Vessel is a fleet vessel that purchases and burns fuel.
type Vessel struct {
	ID        VesselID
	Name      string
	CreatedAt time.Time
}

// Supplier is a fuel supplier referenced by purchase lots.
type Supplier struct {
	ID        SupplierID
	Name      string
	CreatedAt time.Time
}

// PurchaseLot is one purchase transaction's fuel quantity.
//
// INVARIANTS:
//   - 0 <= RemainingQuantity <= OriginalQuantity
//   - RemainingQuantity is monotonically non-increasing and is decremented
//     only by the allocation engine, inside the atomic batch write
//   - OriginalQuantity - RemainingQuantity == sum of allocated quantity
//     over this lot (within VolumeTolerance)
type PurchaseLot struct {
	ID           LotID
	VesselID     VesselID
	SupplierID   SupplierID
	PurchaseDate time.Time

	// OriginalQuantity is the purchased volume in liters; QuantityTons is
	// the same fuel by weight, kept so density can be derived.
	OriginalQuantity decimal.Decimal
	QuantityTons     decimal.Decimal

	// TotalValue is in the purchase currency; TotalValueUSD is the
	// converted figure, resolved upstream at entry time.
	Currency      string
	TotalValue    decimal.Decimal
	TotalValueUSD decimal.Decimal

	RemainingQuantity decimal.Decimal
	CreatedAt         time.Time
}

// ConsumptionRecord is fuel burned by a vessel, immutable once created.
// LegsCompleted is nil for stationary/idle consumption, which is still
// allocable.
type ConsumptionRecord struct {
	ID              ConsumptionID
	VesselID        VesselID
	ConsumptionDate time.Time
	Month           MonthKey
	Quantity        decimal.Decimal
	LegsCompleted   *int
	CreatedAt       time.Time
}

// =============================================================================
// ALLOCATION - Append-only ledger row
// =============================================================================

// Allocation matches part of a consumption record to part of a purchase
// lot. Rows are created exclusively by the engine and destroyed exclusively
// by the recovery orchestrator; they are never edited in place.
type Allocation struct {
	ID            AllocationID
	LotID         LotID
	ConsumptionID ConsumptionID

	Quantity decimal.Decimal

	// Proportional share of the lot's recorded totals, preserving the
	// historical cost basis regardless of later price movements.
	Value    decimal.Decimal
	ValueUSD decimal.Decimal

	// LotBalanceAfter snapshots the lot's remaining quantity immediately
	// after this allocation was applied. Used for audit and ordering
	// checks; must never be negative.
	LotBalanceAfter decimal.Decimal

	Month MonthKey

	// CrossVessel records whether the lot and consumption belong to
	// different vessels. The engine never produces such a match; the flag
	// exists so imported or hand-edited history stays auditable.
	CrossVessel bool

	CreatedAt time.Time
}

// =============================================================================
// DERIVED VALUES - Pure functions, never stored
// =============================================================================

const (
	// pricePrecision is the scale of per-liter unit prices.
	pricePrecision = 6
	// moneyPrecision is the scale of allocation value figures.
	moneyPrecision = 2
	// volumePrecision is the scale of liter quantities.
	volumePrecision = 3
)

// PricePerLiterUSD derives the lot's USD unit price from its recorded
// totals. Returns zero for a zero-quantity lot.
func PricePerLiterUSD(lot PurchaseLot) decimal.Decimal {
	if lot.OriginalQuantity.IsZero() {
		return decimal.Zero
	}
	return lot.TotalValueUSD.DivRound(lot.OriginalQuantity, pricePrecision)
}

// Density derives tons per liter from the lot's quantity pair.
func Density(lot PurchaseLot) decimal.Decimal {
	if lot.OriginalQuantity.IsZero() {
		return decimal.Zero
	}
	return lot.QuantityTons.DivRound(lot.OriginalQuantity, pricePrecision)
}

// ProportionalValue computes the cost-basis share of a lot's recorded
// totals for an allocated quantity:
//
//	amount / lot.OriginalQuantity × lot.TotalValue
//
// Multiplication happens before division to keep the quotient exact for
// the common whole-lot and half-lot cases.
func ProportionalValue(lot PurchaseLot, amount decimal.Decimal) (value, valueUSD decimal.Decimal) {
	if lot.OriginalQuantity.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	value = amount.Mul(lot.TotalValue).DivRound(lot.OriginalQuantity, moneyPrecision)
	valueUSD = amount.Mul(lot.TotalValueUSD).DivRound(lot.OriginalQuantity, moneyPrecision)
	return value, valueUSD
}
