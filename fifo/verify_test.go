package fifo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fuel-ledger/fifo"
	"github.com/warp/fuel-ledger/fifo/store"
)

func TestVerify_CleanLedgerIsBalanced(t *testing.T) {
	// GIVEN: a ledger produced by a faithful engine run
	// WHEN: the verifier runs
	// THEN: no issues, integrity 100

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-1", "v1", day(2025, 1, 2), "10000", "8000.00"),
			lot("lot-2", "v1", day(2025, 1, 20), "6000", "5400.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c1", "v1", day(2025, 1, 10), "7000"),
			consumption("c2", "v1", day(2025, 1, 25), "5000"),
		},
	)
	_, err := fifo.NewEngine(st).Run(context.Background())
	require.NoError(t, err)

	report, err := fifo.NewVerifier(st).VerifyConsistency(context.Background(), fifo.Window{})
	require.NoError(t, err)

	assert.True(t, report.Balanced)
	assert.Empty(t, report.Issues)
	assert.Zero(t, report.InconsistentAllocations)
	assert.Equal(t, 100, report.IntegrityScore)
	assert.True(t, report.TotalPurchaseQuantity.Equal(dec("16000")))
	assert.True(t, report.TotalConsumptionQuantity.Equal(dec("12000")))
	assert.True(t, report.TotalAllocatedQuantity.Equal(dec("12000")))
	assert.True(t, report.TotalRemainingQuantity.Equal(dec("4000")))
	assert.True(t, report.UnallocatedQuantity.IsZero())
}

func TestVerify_PendingAllocationIsNotAnIssue(t *testing.T) {
	// GIVEN: consumption recorded but the engine never ran
	// WHEN: the verifier runs
	// THEN: the unallocated remainder is reported without flagging the
	//       ledger as broken

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-1", "v1", day(2025, 1, 2), "10000", "8000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c1", "v1", day(2025, 1, 10), "7000"),
		},
	)

	report, err := fifo.NewVerifier(st).VerifyConsistency(context.Background(), fifo.Window{})
	require.NoError(t, err)

	assert.True(t, report.Balanced)
	assert.True(t, report.UnallocatedQuantity.Equal(dec("7000")))
	assert.Equal(t, 100, report.IntegrityScore)
}

func TestVerify_NegativeRecordedBalanceFlagsLedger(t *testing.T) {
	// GIVEN: a healthy ledger plus an injected allocation recording a
	//        negative lot balance
	// WHEN: the verifier runs
	// THEN: balanced is false and the score drops

	st := store.NewMemory()
	ctx := context.Background()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-1", "v1", day(2025, 1, 2), "10000", "8000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c1", "v1", day(2025, 1, 10), "7000"),
		},
	)
	_, err := fifo.NewEngine(st).Run(ctx)
	require.NoError(t, err)

	broken, err := st.GetLot(ctx, "lot-1")
	require.NoError(t, err)
	broken.RemainingQuantity = dec("-5")

	value, valueUSD := fifo.ProportionalValue(*broken, dec("3005"))
	require.NoError(t, st.ApplyAllocationBatch(ctx, []fifo.Allocation{{
		ID:              fifo.NewAllocationID(),
		LotID:           broken.ID,
		ConsumptionID:   "c1",
		Quantity:        dec("3005"),
		Value:           value,
		ValueUSD:        valueUSD,
		LotBalanceAfter: dec("-5"),
		Month:           "2025-01",
		CreatedAt:       time.Now().UTC(),
	}}, []fifo.PurchaseLot{*broken}))

	report, err := fifo.NewVerifier(st).VerifyConsistency(ctx, fifo.Window{})
	require.NoError(t, err)

	assert.False(t, report.Balanced)
	assert.NotEmpty(t, report.Issues)
	assert.Less(t, report.IntegrityScore, 100)
}

func TestVerify_MispricedAllocationCountsAsInconsistent(t *testing.T) {
	// GIVEN: one allocation whose USD value disagrees with quantity x unit
	//        price by more than a cent
	// WHEN: the verifier runs
	// THEN: it is counted and shaves 0.1 off the score (rounded back to 100)

	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.SaveLot(ctx, lot("lot-1", "v1", day(2025, 1, 2), "10000", "8000.00")))
	require.NoError(t, st.SaveConsumption(ctx, consumption("c1", "v1", day(2025, 1, 10), "2000")))

	// 2000 L at $0.80/L is $1600; record $1650.
	updated := lot("lot-1", "v1", day(2025, 1, 2), "10000", "8000.00")
	updated.RemainingQuantity = dec("8000")
	require.NoError(t, st.ApplyAllocationBatch(ctx, []fifo.Allocation{{
		ID:              fifo.NewAllocationID(),
		LotID:           "lot-1",
		ConsumptionID:   "c1",
		Quantity:        dec("2000"),
		Value:           dec("1650.00"),
		ValueUSD:        dec("1650.00"),
		LotBalanceAfter: dec("8000"),
		Month:           "2025-01",
		CreatedAt:       time.Now().UTC(),
	}}, []fifo.PurchaseLot{updated}))

	report, err := fifo.NewVerifier(st).VerifyConsistency(ctx, fifo.Window{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.InconsistentAllocations)
	assert.False(t, report.Balanced)
	assert.Equal(t, 100, report.IntegrityScore, "a single inconsistency rounds back to 100")
}

func TestVerify_ScoreClampsAtZero(t *testing.T) {
	// GIVEN: a ledger with far more than twenty issues
	// WHEN: the verifier runs
	// THEN: the score floors at zero instead of going negative

	st := store.NewMemory()
	ctx := context.Background()

	// 25 lots with negative remaining: 25 negative-balance issues plus 25
	// drift issues, well past the floor.
	for i := 0; i < 25; i++ {
		l := lot(fmt.Sprintf("lot-%02d", i), "v1", day(2025, 1, 2), "100", "80.00")
		l.RemainingQuantity = dec("-1")
		require.NoError(t, st.SaveLot(ctx, l))
	}

	report, err := fifo.NewVerifier(st).VerifyConsistency(ctx, fifo.Window{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.IntegrityScore)
	assert.False(t, report.Balanced)
}

func TestVerify_WindowScopesTotals(t *testing.T) {
	// GIVEN: activity in January and February
	// WHEN: verifying with a window covering only January
	// THEN: February's lot and consumption are excluded from totals

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-jan", "v1", day(2025, 1, 2), "10000", "8000.00"),
			lot("lot-feb", "v1", day(2025, 2, 2), "6000", "5400.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c-jan", "v1", day(2025, 1, 10), "4000"),
			consumption("c-feb", "v1", day(2025, 2, 10), "3000"),
		},
	)
	_, err := fifo.NewEngine(st).Run(context.Background())
	require.NoError(t, err)

	from := day(2025, 1, 1)
	to := day(2025, 1, 31)
	report, err := fifo.NewVerifier(st).VerifyConsistency(context.Background(),
		fifo.Window{From: &from, To: &to})
	require.NoError(t, err)

	assert.True(t, report.TotalPurchaseQuantity.Equal(dec("10000")))
	assert.True(t, report.TotalConsumptionQuantity.Equal(dec("4000")))
	assert.True(t, report.TotalAllocatedQuantity.Equal(dec("4000")))
}

func TestVerify_WindowedPassAcceptsCrossMonthLotDraw(t *testing.T) {
	// GIVEN: a January lot legitimately drawn by both January and February
	//        consumption
	// WHEN: verifying with a window covering only January
	// THEN: the partial allocation history the window sees is not mistaken
	//       for balance drift

	st := store.NewMemory()
	seed(t, st,
		[]fifo.PurchaseLot{
			lot("lot-jan", "v1", day(2025, 1, 2), "10000", "8000.00"),
		},
		[]fifo.ConsumptionRecord{
			consumption("c-jan", "v1", day(2025, 1, 10), "4000"),
			consumption("c-feb", "v1", day(2025, 2, 10), "3000"),
		},
	)
	_, err := fifo.NewEngine(st).Run(context.Background())
	require.NoError(t, err)

	full, err := fifo.NewVerifier(st).VerifyConsistency(context.Background(), fifo.Window{})
	require.NoError(t, err)
	require.True(t, full.Balanced)

	from := day(2025, 1, 1)
	to := day(2025, 1, 31)
	windowed, err := fifo.NewVerifier(st).VerifyConsistency(context.Background(),
		fifo.Window{From: &from, To: &to})
	require.NoError(t, err)

	assert.True(t, windowed.Balanced)
	assert.Empty(t, windowed.Issues)
	assert.Equal(t, 100, windowed.IntegrityScore)
}
