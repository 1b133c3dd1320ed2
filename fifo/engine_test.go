package fifo_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fuel-ledger/fifo"
	"github.com/warp/fuel-ledger/fifo/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

// lot builds a fresh, fully-available purchase lot. Total value is given
// in USD for both currency fields so unit prices are easy to reason
// about in assertions.
func lot(id, vessel string, purchased time.Time, liters, totalUSD string) fifo.PurchaseLot {
	quantity := dec(liters)
	return fifo.PurchaseLot{
		ID:                fifo.LotID(id),
		VesselID:          fifo.VesselID(vessel),
		SupplierID:        "sup-1",
		PurchaseDate:      purchased,
		OriginalQuantity:  quantity,
		QuantityTons:      quantity.Div(dec("1160")),
		Currency:          "USD",
		TotalValue:        dec(totalUSD),
		TotalValueUSD:     dec(totalUSD),
		RemainingQuantity: quantity,
	}
}

func consumption(id, vessel string, when time.Time, liters string) fifo.ConsumptionRecord {
	return fifo.ConsumptionRecord{
		ID:              fifo.ConsumptionID(id),
		VesselID:        fifo.VesselID(vessel),
		ConsumptionDate: when,
		Month:           fifo.MonthOf(when),
		Quantity:        dec(liters),
	}
}

func seed(t *testing.T, st fifo.Store, lots []fifo.PurchaseLot, recs []fifo.ConsumptionRecord) {
	t.Helper()
	ctx := context.Background()
	for _, l := range lots {
		require.NoError(t, st.SaveLot(ctx, l))
	}
	for _, r := range recs {
		require.NoError(t, st.SaveConsumption(ctx, r))
	}
}

func allAllocations(t *testing.T, st fifo.Store) []fifo.Allocation {
	t.Helper()
	allocs, err := st.ListAllocations(context.Background(), fifo.AllocationFilter{})
	require.NoError(t, err)
	return allocs
}

// =============================================================================
// FIFO ORDERING
// =============================================================================

func TestRun_DrainsOldestLotFirst(t *testing.T) {
	// GIVEN: two lots, the older one cheap, the newer one expensive
	// WHEN: a single consumption record smaller than the old lot arrives
	// THEN: only the older lot is drawn down

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-old", "v1", day(2025, 1, 3), "10000", "8000.00"),
			lot("lot-new", "v1", day(2025, 1, 20), "10000", "12000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c1", "v1", day(2025, 1, 25), "6000"),
		},
	)

	result, err := fifo.NewEngine(st).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.AllocationsCreated)
	assert.Empty(t, result.Shortfalls)

	allocs := allAllocations(t, st)
	require.Len(t, allocs, 1)
	assert.Equal(t, fifo.LotID("lot-old"), allocs[0].LotID)
	assert.True(t, allocs[0].Quantity.Equal(dec("6000")))

	newLot, err := st.GetLot(context.Background(), "lot-new")
	require.NoError(t, err)
	assert.True(t, newLot.RemainingQuantity.Equal(dec("10000")),
		"newer lot must be untouched, got %s", newLot.RemainingQuantity)
}

func TestRun_PurchaseDateTieBreaksOnLotID(t *testing.T) {
	// GIVEN: two lots purchased the same day
	// WHEN: consumption smaller than either arrives
	// THEN: the lot with the lexicographically smaller id fills it

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-b", "v1", day(2025, 1, 3), "5000", "4000.00"),
			lot("lot-a", "v1", day(2025, 1, 3), "5000", "4000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c1", "v1", day(2025, 1, 10), "1000"),
		},
	)

	_, err := fifo.NewEngine(st).Run(context.Background())
	require.NoError(t, err)

	allocs := allAllocations(t, st)
	require.Len(t, allocs, 1)
	assert.Equal(t, fifo.LotID("lot-a"), allocs[0].LotID)
}

func TestRun_SpansLotsWhenFirstRunsOut(t *testing.T) {
	// GIVEN: a 4000 L lot followed by a 10000 L lot
	// WHEN: a 6000 L consumption arrives
	// THEN: two allocations are created, 4000 from the first lot and
	//       2000 from the second, with correct balance snapshots

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-1", "v1", day(2025, 2, 1), "4000", "3200.00"),
			lot("lot-2", "v1", day(2025, 2, 10), "10000", "9000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c1", "v1", day(2025, 2, 15), "6000"),
		},
	)

	result, err := fifo.NewEngine(st).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.AllocationsCreated)

	allocs := allAllocations(t, st)
	require.Len(t, allocs, 2)

	assert.Equal(t, fifo.LotID("lot-1"), allocs[0].LotID)
	assert.True(t, allocs[0].Quantity.Equal(dec("4000")))
	assert.True(t, allocs[0].LotBalanceAfter.IsZero())

	assert.Equal(t, fifo.LotID("lot-2"), allocs[1].LotID)
	assert.True(t, allocs[1].Quantity.Equal(dec("2000")))
	assert.True(t, allocs[1].LotBalanceAfter.Equal(dec("8000")))
}

// =============================================================================
// MONTH CUTOFF
// =============================================================================

func TestRun_LotLaterInSameMonthIsEligible(t *testing.T) {
	// GIVEN: consumption on the 5th, the only lot purchased on the 20th
	//        of the same month
	// WHEN: the engine runs
	// THEN: the lot covers it; eligibility is month-resolution

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-1", "v1", day(2025, 3, 20), "5000", "4500.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c1", "v1", day(2025, 3, 5), "3000"),
		},
	)

	result, err := fifo.NewEngine(st).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.AllocationsCreated)
	assert.Empty(t, result.Shortfalls)
}

func TestRun_NoLookAheadIntoFutureMonths(t *testing.T) {
	// GIVEN: March consumption and the only lot purchased in April
	// WHEN: the engine runs
	// THEN: March is a full shortfall and the April lot stays untouched

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-apr", "v1", day(2025, 4, 2), "20000", "16000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c-mar", "v1", day(2025, 3, 15), "5000"),
		},
	)

	result, err := fifo.NewEngine(st).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Shortfalls, 1)
	assert.Equal(t, fifo.ConsumptionID("c-mar"), result.Shortfalls[0].ConsumptionID)
	assert.True(t, result.Shortfalls[0].Missing.Equal(dec("5000")))
	assert.Empty(t, allAllocations(t, st))

	aprLot, err := st.GetLot(context.Background(), "lot-apr")
	require.NoError(t, err)
	assert.True(t, aprLot.RemainingQuantity.Equal(dec("20000")))
}

func TestRun_MonthsProcessedInAscendingOrder(t *testing.T) {
	// GIVEN: unresolved consumption in February and January sharing one lot
	// WHEN: the engine runs once
	// THEN: January consumption is filled before February touches the lot

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-1", "v1", day(2025, 1, 2), "8000", "6400.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c-feb", "v1", day(2025, 2, 10), "5000"),
			consumption("c-jan", "v1", day(2025, 1, 10), "6000"),
		},
	)

	result, err := fifo.NewEngine(st).Run(context.Background())
	require.NoError(t, err)

	// January takes 6000, leaving 2000 for February's 5000.
	require.Len(t, result.Shortfalls, 1)
	assert.Equal(t, fifo.ConsumptionID("c-feb"), result.Shortfalls[0].ConsumptionID)
	assert.True(t, result.Shortfalls[0].Missing.Equal(dec("3000")))

	allocs := allAllocations(t, st)
	require.Len(t, allocs, 2)
	assert.Equal(t, fifo.ConsumptionID("c-jan"), allocs[0].ConsumptionID)
	assert.Equal(t, fifo.ConsumptionID("c-feb"), allocs[1].ConsumptionID)
}

// =============================================================================
// SHORTFALLS
// =============================================================================

func TestRun_ShortfallIsReportedNotRaised(t *testing.T) {
	// GIVEN: a 10000 L lot and 13500 L of consumption across two records
	// WHEN: the engine runs
	// THEN: the run succeeds, the second record is partially filled, and
	//       the missing quantity is exact

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-1", "v1", day(2025, 3, 2), "10000", "7800.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c1", "v1", day(2025, 3, 8), "6000"),
			consumption("c2", "v1", day(2025, 3, 19), "7500"),
		},
	)

	result, err := fifo.NewEngine(st).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.ProcessedConsumptions)
	require.Len(t, result.Shortfalls, 1)
	assert.Equal(t, fifo.ConsumptionID("c2"), result.Shortfalls[0].ConsumptionID)
	assert.True(t, result.Shortfalls[0].Missing.Equal(dec("3500")),
		"missing %s", result.Shortfalls[0].Missing)

	// The partial fill itself is still persisted.
	allocs := allAllocations(t, st)
	require.Len(t, allocs, 2)
	assert.True(t, allocs[1].Quantity.Equal(dec("4000")))
}

func TestRun_ShortfallResolvesOnNextRun(t *testing.T) {
	// GIVEN: a run that left a record completely unfilled
	// WHEN: a covering lot arrives and the engine runs again
	// THEN: the record is resolved with no duplicate allocations

	st := store.NewMemory()
	ctx := context.Background()
	seed(t, st, nil, []fifo.ConsumptionRecord{
		consumption("c1", "v1", day(2025, 5, 10), "4000"),
	})

	engine := fifo.NewEngine(st)
	result, err := engine.Run(ctx)
	require.NoError(t, err)
	require.Len(t, result.Shortfalls, 1)

	require.NoError(t, st.SaveLot(ctx, lot("lot-late", "v1", day(2025, 5, 28), "6000", "5100.00")))

	result, err = engine.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Shortfalls)
	assert.Equal(t, 1, result.AllocationsCreated)
	assert.Len(t, allAllocations(t, st), 1)
}

// =============================================================================
// VALUE DERIVATION
// =============================================================================

func TestRun_ValueIsProportionalShareOfLotTotals(t *testing.T) {
	// GIVEN: a 10000 L lot worth $8000
	// WHEN: 2500 L is allocated from it
	// THEN: the allocation carries exactly a quarter of the lot's value

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-1", "v1", day(2025, 1, 5), "10000", "8000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c1", "v1", day(2025, 1, 12), "2500"),
		},
	)

	_, err := fifo.NewEngine(st).Run(context.Background())
	require.NoError(t, err)

	allocs := allAllocations(t, st)
	require.Len(t, allocs, 1)
	assert.True(t, allocs[0].ValueUSD.Equal(dec("2000")),
		"value_usd %s", allocs[0].ValueUSD)
	assert.True(t, allocs[0].Value.Equal(dec("2000")))
}

func TestRun_ValueSurvivesAwkwardDivisions(t *testing.T) {
	// GIVEN: a lot whose unit price does not terminate ($1000 over 3000 L)
	// WHEN: it is split across two consumptions
	// THEN: the allocated values sum to the lot total within the money
	//       tolerance

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-1", "v1", day(2025, 1, 5), "3000", "1000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c1", "v1", day(2025, 1, 8), "1000"),
			consumption("c2", "v1", day(2025, 1, 20), "2000"),
		},
	)

	_, err := fifo.NewEngine(st).Run(context.Background())
	require.NoError(t, err)

	allocs := allAllocations(t, st)
	require.Len(t, allocs, 2)

	total := allocs[0].ValueUSD.Add(allocs[1].ValueUSD)
	assert.True(t, fifo.WithinTolerance(total, dec("1000"), fifo.MoneyTolerance),
		"allocated value %s drifted from lot total", total)
}

// =============================================================================
// VESSEL ISOLATION AND CONSERVATION
// =============================================================================

func TestRun_NeverBorrowsAcrossVessels(t *testing.T) {
	// GIVEN: vessel v2 has consumption but no lots; v1 has plenty
	// WHEN: the engine runs
	// THEN: v2 is a shortfall and v1's lot is untouched

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-v1", "v1", day(2025, 1, 3), "20000", "16000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c-v2", "v2", day(2025, 1, 10), "5000"),
		},
	)

	result, err := fifo.NewEngine(st).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Shortfalls, 1)
	assert.Equal(t, fifo.VesselID("v2"), result.Shortfalls[0].VesselID)

	v1Lot, err := st.GetLot(context.Background(), "lot-v1")
	require.NoError(t, err)
	assert.True(t, v1Lot.RemainingQuantity.Equal(dec("20000")))

	for _, a := range allAllocations(t, st) {
		assert.False(t, a.CrossVessel)
	}
}

func TestRun_ConservesVolumePerLot(t *testing.T) {
	// GIVEN: several lots and consumptions across two vessels
	// WHEN: the engine runs
	// THEN: for every lot, original - remaining equals the sum allocated
	//       against it

	st := store.NewMemory()
	ctx := context.Background()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-a", "v1", day(2025, 1, 2), "7000", "5600.00"),
			lot("lot-b", "v1", day(2025, 1, 15), "5000", "4500.00"),
			lot("lot-c", "v2", day(2025, 1, 4), "9000", "7200.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c1", "v1", day(2025, 1, 10), "4000"),
			consumption("c2", "v1", day(2025, 1, 22), "6000"),
			consumption("c3", "v2", day(2025, 1, 12), "8500"),
		},
	)

	_, err := fifo.NewEngine(st).Run(ctx)
	require.NoError(t, err)

	allocs := allAllocations(t, st)
	perLot := make(map[fifo.LotID]decimal.Decimal)
	for _, a := range allocs {
		perLot[a.LotID] = perLot[a.LotID].Add(a.Quantity)
	}

	lots, err := st.ListLots(ctx)
	require.NoError(t, err)
	for _, l := range lots {
		consumed := l.OriginalQuantity.Sub(l.RemainingQuantity)
		assert.True(t, consumed.Equal(perLot[l.ID]),
			"lot %s: consumed %s but ledger says %s", l.ID, consumed, perLot[l.ID])
	}
}

func TestRun_SecondRunIsNoop(t *testing.T) {
	// GIVEN: a fully allocated ledger
	// WHEN: the engine runs again with no new records
	// THEN: nothing changes

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-1", "v1", day(2025, 1, 2), "10000", "8000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c1", "v1", day(2025, 1, 9), "4000"),
		},
	)

	engine := fifo.NewEngine(st)
	_, err := engine.Run(context.Background())
	require.NoError(t, err)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.ProcessedConsumptions)
	assert.Zero(t, result.AllocationsCreated)
	assert.Len(t, allAllocations(t, st), 1)
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestRun_CancelledContextStopsBetweenGroups(t *testing.T) {
	// GIVEN: a context cancelled before the run starts
	// WHEN: the engine runs over pending work
	// THEN: it returns the context error and commits nothing

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-1", "v1", day(2025, 1, 2), "10000", "8000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c1", "v1", day(2025, 1, 9), "4000"),
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := fifo.NewEngine(st).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Zero(t, result.AllocationsCreated)
	assert.Empty(t, allAllocations(t, st))
}
