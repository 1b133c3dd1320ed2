// Package store provides an in-memory fifo.Store implementation for
// tests and demos.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/fuel-ledger/fifo"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	lots        map[fifo.LotID]fifo.PurchaseLot
	consumption map[fifo.ConsumptionID]fifo.ConsumptionRecord

	// allocations preserve insertion order; that order IS the creation/
	// storage order the Store contract promises.
	allocations []fifo.Allocation
}

func NewMemory() *Memory {
	return &Memory{
		lots:        make(map[fifo.LotID]fifo.PurchaseLot),
		consumption: make(map[fifo.ConsumptionID]fifo.ConsumptionRecord),
	}
}

// =============================================================================
// PURCHASE LOTS
// =============================================================================

func (m *Memory) SaveLot(_ context.Context, lot fifo.PurchaseLot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = time.Now().UTC()
	}
	m.lots[lot.ID] = lot
	return nil
}

func (m *Memory) GetLot(_ context.Context, id fifo.LotID) (*fifo.PurchaseLot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lot, ok := m.lots[id]
	if !ok {
		return nil, fifo.ErrLotNotFound
	}
	return &lot, nil
}

func (m *Memory) ListLots(_ context.Context) ([]fifo.PurchaseLot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lots := make([]fifo.PurchaseLot, 0, len(m.lots))
	for _, lot := range m.lots {
		lots = append(lots, lot)
	}
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].PurchaseDate.Equal(lots[j].PurchaseDate) {
			return lots[i].PurchaseDate.Before(lots[j].PurchaseDate)
		}
		return lots[i].ID < lots[j].ID
	})
	return lots, nil
}

func (m *Memory) ListLotsForVessel(_ context.Context, vessel fifo.VesselID, cutoff time.Time) ([]fifo.PurchaseLot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var lots []fifo.PurchaseLot
	for _, lot := range m.lots {
		if lot.VesselID != vessel {
			continue
		}
		if !lot.RemainingQuantity.IsPositive() {
			continue
		}
		if lot.PurchaseDate.After(cutoff) {
			continue
		}
		lots = append(lots, lot)
	}
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].PurchaseDate.Equal(lots[j].PurchaseDate) {
			return lots[i].PurchaseDate.Before(lots[j].PurchaseDate)
		}
		return lots[i].ID < lots[j].ID
	})
	return lots, nil
}

// =============================================================================
// CONSUMPTION RECORDS
// =============================================================================

func (m *Memory) SaveConsumption(_ context.Context, rec fifo.ConsumptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.Month == "" {
		rec.Month = fifo.MonthOf(rec.ConsumptionDate)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.consumption[rec.ID] = rec
	return nil
}

func (m *Memory) GetConsumption(_ context.Context, id fifo.ConsumptionID) (*fifo.ConsumptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.consumption[id]
	if !ok {
		return nil, fifo.ErrConsumptionNotFound
	}
	return &rec, nil
}

func (m *Memory) ListConsumption(_ context.Context) ([]fifo.ConsumptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedConsumptionLocked(func(fifo.ConsumptionRecord) bool { return true }), nil
}

func (m *Memory) ListUnresolvedConsumption(_ context.Context) ([]fifo.ConsumptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resolved := make(map[fifo.ConsumptionID]bool)
	for _, alloc := range m.allocations {
		resolved[alloc.ConsumptionID] = true
	}
	return m.sortedConsumptionLocked(func(rec fifo.ConsumptionRecord) bool {
		return !resolved[rec.ID]
	}), nil
}

func (m *Memory) ListVesselsWithUnresolvedConsumption(ctx context.Context) ([]fifo.VesselID, error) {
	unresolved, err := m.ListUnresolvedConsumption(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[fifo.VesselID]bool)
	var vessels []fifo.VesselID
	for _, rec := range unresolved {
		if !seen[rec.VesselID] {
			seen[rec.VesselID] = true
			vessels = append(vessels, rec.VesselID)
		}
	}
	sort.Slice(vessels, func(i, j int) bool { return vessels[i] < vessels[j] })
	return vessels, nil
}

func (m *Memory) sortedConsumptionLocked(keep func(fifo.ConsumptionRecord) bool) []fifo.ConsumptionRecord {
	var recs []fifo.ConsumptionRecord
	for _, rec := range m.consumption {
		if keep(rec) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Month != b.Month {
			return a.Month.Before(b.Month)
		}
		if a.VesselID != b.VesselID {
			return a.VesselID < b.VesselID
		}
		if !a.ConsumptionDate.Equal(b.ConsumptionDate) {
			return a.ConsumptionDate.Before(b.ConsumptionDate)
		}
		return a.ID < b.ID
	})
	return recs
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

func (m *Memory) ListAllocations(_ context.Context, filter fifo.AllocationFilter) ([]fifo.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var allocs []fifo.Allocation
	for _, alloc := range m.allocations {
		if filter.LotID != nil && alloc.LotID != *filter.LotID {
			continue
		}
		if filter.ConsumptionID != nil && alloc.ConsumptionID != *filter.ConsumptionID {
			continue
		}
		if filter.Month != nil && alloc.Month != *filter.Month {
			continue
		}
		// Window bounds apply at month granularity: a mid-month bound
		// still covers that whole month.
		if filter.Window.From != nil && alloc.Month.Before(fifo.MonthOf(*filter.Window.From)) {
			continue
		}
		if filter.Window.To != nil && fifo.MonthOf(*filter.Window.To).Before(alloc.Month) {
			continue
		}
		allocs = append(allocs, alloc)
	}
	return allocs, nil
}

func (m *Memory) ApplyAllocationBatch(_ context.Context, newAllocations []fifo.Allocation, updatedLots []fifo.PurchaseLot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate everything before mutating so the write is all-or-nothing.
	for _, lot := range updatedLots {
		if _, ok := m.lots[lot.ID]; !ok {
			return fifo.ErrLotNotFound
		}
	}
	for _, alloc := range newAllocations {
		if _, ok := m.lots[alloc.LotID]; !ok {
			return fifo.ErrLotNotFound
		}
		if _, ok := m.consumption[alloc.ConsumptionID]; !ok {
			return fifo.ErrConsumptionNotFound
		}
	}

	m.allocations = append(m.allocations, newAllocations...)
	for _, lot := range updatedLots {
		stored := m.lots[lot.ID]
		stored.RemainingQuantity = lot.RemainingQuantity
		m.lots[lot.ID] = stored
	}
	return nil
}

func (m *Memory) RemoveAllocationBatch(_ context.Context, removed []fifo.AllocationID, updatedLots []fifo.PurchaseLot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, lot := range updatedLots {
		if _, ok := m.lots[lot.ID]; !ok {
			return fifo.ErrLotNotFound
		}
	}

	existing := make(map[fifo.AllocationID]bool, len(m.allocations))
	for _, alloc := range m.allocations {
		existing[alloc.ID] = true
	}
	drop := make(map[fifo.AllocationID]bool, len(removed))
	for _, id := range removed {
		if !existing[id] {
			return fifo.ErrAllocationNotFound
		}
		drop[id] = true
	}

	kept := m.allocations[:0]
	for _, alloc := range m.allocations {
		if !drop[alloc.ID] {
			kept = append(kept, alloc)
		}
	}
	m.allocations = kept

	for _, lot := range updatedLots {
		stored := m.lots[lot.ID]
		stored.RemainingQuantity = lot.RemainingQuantity
		m.lots[lot.ID] = stored
	}
	return nil
}

func (m *Memory) ResetLedger(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.allocations = nil
	for id, lot := range m.lots {
		lot.RemainingQuantity = lot.OriginalQuantity
		m.lots[id] = lot
	}
	return nil
}
