package fifo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fuel-ledger/fifo"
	"github.com/warp/fuel-ledger/fifo/store"
)

// injectAllocation appends a hand-crafted allocation row, updating the
// lot's stored balance to the given value.
func injectAllocation(t *testing.T, st fifo.Store, lotID fifo.LotID, consID fifo.ConsumptionID,
	quantity, valueUSD, balanceAfter string) fifo.AllocationID {
	t.Helper()
	ctx := context.Background()

	l, err := st.GetLot(ctx, lotID)
	require.NoError(t, err)
	l.RemainingQuantity = dec(balanceAfter)

	id := fifo.NewAllocationID()
	require.NoError(t, st.ApplyAllocationBatch(ctx, []fifo.Allocation{{
		ID:              id,
		LotID:           lotID,
		ConsumptionID:   consID,
		Quantity:        dec(quantity),
		Value:           dec(valueUSD),
		ValueUSD:        dec(valueUSD),
		LotBalanceAfter: dec(balanceAfter),
		Month:           "2025-01",
		CreatedAt:       time.Now().UTC(),
	}}, []fifo.PurchaseLot{*l}))
	return id
}

func TestDetect_CleanLedgerHasNoFindings(t *testing.T) {
	// GIVEN: a ledger produced by a faithful engine run
	// WHEN: the detector scans it
	// THEN: no findings

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-1", "v1", day(2025, 1, 2), "10000", "8000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c1", "v1", day(2025, 1, 8), "3000"),
			consumption("c2", "v1", day(2025, 1, 20), "4000"),
		},
	)
	_, err := fifo.NewEngine(st).Run(context.Background())
	require.NoError(t, err)

	findings, err := fifo.NewDetector(st).DetectExceptions(context.Background(), fifo.Window{})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestDetect_NegativeBalanceIsExactlyOneCriticalFinding(t *testing.T) {
	// GIVEN: one injected allocation recording a negative lot balance
	// WHEN: the detector scans
	// THEN: exactly one critical negative-balance finding for that row

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-1", "v1", day(2025, 1, 2), "5000", "4000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c1", "v1", day(2025, 1, 8), "5200"),
		},
	)

	// 5200 from a 5000 L lot, stored balance -200, value kept
	// proportional so only the balance check fires.
	id := injectAllocation(t, st, "lot-1", "c1", "5200", "4160.00", "-200")

	findings, err := fifo.NewDetector(st).DetectExceptions(context.Background(), fifo.Window{})
	require.NoError(t, err)

	var critical []fifo.Finding
	for _, f := range findings {
		if f.Severity == fifo.SeverityCritical {
			critical = append(critical, f)
		}
	}
	require.Len(t, critical, 1)
	assert.Equal(t, fifo.FindingNegativeBalance, critical[0].Type)
	assert.Equal(t, id, critical[0].AllocationID)
	assert.Equal(t, fifo.LotID("lot-1"), critical[0].LotID)
}

func TestDetect_ValueDriftBeyondToleranceIsWarning(t *testing.T) {
	// GIVEN: an allocation overpriced by $5 against the lot's unit price
	// WHEN: the detector scans
	// THEN: a value-drift warning carrying expected and actual values

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-1", "v1", day(2025, 1, 2), "10000", "8000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c1", "v1", day(2025, 1, 8), "2000"),
		},
	)

	// 2000 L at $0.80/L should be $1600; record $1605.
	injectAllocation(t, st, "lot-1", "c1", "2000", "1605.00", "8000")

	findings, err := fifo.NewDetector(st).DetectExceptions(context.Background(), fifo.Window{})
	require.NoError(t, err)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, fifo.FindingValueDrift, f.Type)
	assert.Equal(t, fifo.SeverityWarning, f.Severity)
	assert.True(t, f.ExpectedValueUSD.Equal(dec("1600")), "expected %s", f.ExpectedValueUSD)
	assert.True(t, f.ActualValueUSD.Equal(dec("1605")))
}

func TestDetect_DriftWithinToleranceIsIgnored(t *testing.T) {
	// GIVEN: an allocation off by eight cents, inside the drift tolerance
	// WHEN: the detector scans
	// THEN: no value-drift finding

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-1", "v1", day(2025, 1, 2), "10000", "8000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c1", "v1", day(2025, 1, 8), "2000"),
		},
	)
	injectAllocation(t, st, "lot-1", "c1", "2000", "1600.08", "8000")

	findings, err := fifo.NewDetector(st).DetectExceptions(context.Background(), fifo.Window{})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestDetect_OutOfOrderFillsWithinLot(t *testing.T) {
	// GIVEN: a lot whose stored allocations run backwards in consumption
	//        date (a later consumption stored before an earlier one)
	// WHEN: the detector scans
	// THEN: a chronology warning pointing at the out-of-place row

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-1", "v1", day(2025, 1, 2), "10000", "8000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c-early", "v1", day(2025, 1, 5), "2000"),
			consumption("c-late", "v1", day(2025, 1, 25), "3000"),
		},
	)

	// Stored order: late first, then early.
	injectAllocation(t, st, "lot-1", "c-late", "3000", "2400.00", "7000")
	early := injectAllocation(t, st, "lot-1", "c-early", "2000", "1600.00", "5000")

	findings, err := fifo.NewDetector(st).DetectExceptions(context.Background(), fifo.Window{})
	require.NoError(t, err)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, fifo.FindingChronology, f.Type)
	assert.Equal(t, fifo.SeverityWarning, f.Severity)
	assert.Equal(t, early, f.AllocationID)
	assert.Equal(t, day(2025, 1, 5), f.Date)
}

func TestDetect_CrossVesselMatchIsSurfaced(t *testing.T) {
	// GIVEN: an allocation matching vessel v2's consumption against
	//        vessel v1's lot
	// WHEN: the detector scans
	// THEN: a cross-vessel warning

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-v1", "v1", day(2025, 1, 2), "10000", "8000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c-v2", "v2", day(2025, 1, 8), "2000"),
		},
	)
	injectAllocation(t, st, "lot-v1", "c-v2", "2000", "1600.00", "8000")

	findings, err := fifo.NewDetector(st).DetectExceptions(context.Background(), fifo.Window{})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, fifo.FindingCrossVessel, findings[0].Type)
	assert.Equal(t, fifo.SeverityWarning, findings[0].Severity)
}

func TestDetect_CriticalFindingsSortFirst(t *testing.T) {
	// GIVEN: a warning dated before a critical finding
	// WHEN: the detector scans
	// THEN: the critical finding leads regardless of date

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-1", "v1", day(2025, 1, 2), "10000", "8000.00"),
			lot("lot-2", "v1", day(2025, 1, 3), "5000", "4000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c-early", "v1", day(2025, 1, 5), "2000"),
			consumption("c-late", "v1", day(2025, 1, 25), "5200"),
		},
	)

	// Early warning: drift on lot-1. Later critical: negative balance on
	// lot-2.
	injectAllocation(t, st, "lot-1", "c-early", "2000", "1700.00", "8000")
	injectAllocation(t, st, "lot-2", "c-late", "5200", "4160.00", "-200")

	findings, err := fifo.NewDetector(st).DetectExceptions(context.Background(), fifo.Window{})
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, fifo.SeverityCritical, findings[0].Severity)
	assert.Equal(t, fifo.FindingNegativeBalance, findings[0].Type)
	assert.Equal(t, fifo.SeverityWarning, findings[1].Severity)
}

func TestDetect_NeverMutatesTheLedger(t *testing.T) {
	// GIVEN: a corrupted ledger
	// WHEN: the detector scans it twice
	// THEN: allocations and lot balances are byte-for-byte unchanged

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-1", "v1", day(2025, 1, 2), "5000", "4000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c1", "v1", day(2025, 1, 8), "5200"),
		},
	)
	injectAllocation(t, st, "lot-1", "c1", "5200", "4160.00", "-200")

	before := allAllocations(t, st)
	detector := fifo.NewDetector(st)
	_, err := detector.DetectExceptions(context.Background(), fifo.Window{})
	require.NoError(t, err)
	_, err = detector.DetectExceptions(context.Background(), fifo.Window{})
	require.NoError(t, err)

	after := allAllocations(t, st)
	require.Equal(t, len(before), len(after))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.True(t, before[i].Quantity.Equal(after[i].Quantity))
	}

	l, err := st.GetLot(context.Background(), "lot-1")
	require.NoError(t, err)
	assert.True(t, l.RemainingQuantity.Equal(dec("-200")))
}
