package fifo

import (
	"context"
	"sort"
	"time"
)

// =============================================================================
// LOT QUEUE - Oldest-first eligible lots for one vessel
// =============================================================================

// BuildLotQueue returns the vessel's purchase lots eligible for matching at
// the given cutoff, oldest first. Eligibility: remaining quantity > 0 and
// purchase date <= cutoff. Ties on purchase date break on lot id so the
// order is reproducible run to run.
//
// Lots from other vessels are never eligible; allocation is vessel-scoped.
func BuildLotQueue(ctx context.Context, store Store, vessel VesselID, cutoff time.Time) ([]PurchaseLot, error) {
	lots, err := store.ListLotsForVessel(ctx, vessel, cutoff)
	if err != nil {
		return nil, err
	}

	// Re-apply the contract locally rather than trusting store ordering.
	queue := lots[:0]
	for _, lot := range lots {
		if lot.VesselID != vessel {
			continue
		}
		if !lot.RemainingQuantity.IsPositive() {
			continue
		}
		if lot.PurchaseDate.After(cutoff) {
			continue
		}
		queue = append(queue, lot)
	}

	sort.SliceStable(queue, func(i, j int) bool {
		if !queue[i].PurchaseDate.Equal(queue[j].PurchaseDate) {
			return queue[i].PurchaseDate.Before(queue[j].PurchaseDate)
		}
		return queue[i].ID < queue[j].ID
	})

	return queue, nil
}
