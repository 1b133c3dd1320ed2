/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	fleet data for testing and demos. Each scenario creates vessels,
	suppliers, purchase lots and consumption records, and optionally runs
	the allocation engine so the ledger is viewable immediately.

AVAILABLE SCENARIOS:

	coastal-fleet:    Single vessel, clean two-month FIFO history
	partial-fill:     Consumption exceeding supply, demonstrates shortfalls
	multi-vessel:     Three vessels with separate lot pools
	corrupted-ledger: Healthy history plus an injected over-allocation,
	                  demonstrates exceptions, verification and repair

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create vessels and suppliers
 3. Create purchase lots and consumption records
 4. Optionally run the allocation engine

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "coastal-fleet"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: writeJSON/writeError helpers
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/fuel-ledger/fifo"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "coastal-fleet",
		Name:        "Coastal Fleet",
		Description: "Single vessel with a clean two-month FIFO allocation history",
		Category:    "basic",
	},
	{
		ID:          "partial-fill",
		Name:        "Partial Fill",
		Description: "Consumption exceeds available lots, demonstrating shortfall reporting",
		Category:    "basic",
	},
	{
		ID:          "multi-vessel",
		Name:        "Multi-Vessel",
		Description: "Three vessels with separate lot pools allocated in one run",
		Category:    "fleet",
	},
	{
		ID:          "corrupted-ledger",
		Name:        "Corrupted Ledger",
		Description: "Healthy history plus an injected over-allocation for the detector and repair",
		Category:    "audit",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "coastal-fleet":
		err = h.loadCoastalFleetScenario(ctx)
	case "partial-fill":
		err = h.loadPartialFillScenario(ctx)
	case "multi-vessel":
		err = h.loadMultiVesselScenario(ctx)
	case "corrupted-ledger":
		err = h.loadCorruptedLedgerScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadCoastalFleetScenario: one vessel, two lots at different prices,
// consumption spanning two months. A clean FIFO history.
func (h *Handler) loadCoastalFleetScenario(ctx context.Context) error {
	if err := h.Store.SaveVessel(ctx, fifo.Vessel{ID: "mv-aurora", Name: "MV Aurora"}); err != nil {
		return err
	}
	if err := h.Store.SaveSupplier(ctx, fifo.Supplier{ID: "sup-bergen", Name: "Bergen Bunkers AS"}); err != nil {
		return err
	}

	lots := []fifo.PurchaseLot{
		demoLot("lot-aurora-jan", "mv-aurora", "sup-bergen", date(2025, 1, 5), "20000", "17.2", "USD", "15400.00", "15400.00"),
		demoLot("lot-aurora-feb", "mv-aurora", "sup-bergen", date(2025, 2, 3), "15000", "12.9", "USD", "12750.00", "12750.00"),
	}
	for _, lot := range lots {
		if err := h.Store.SaveLot(ctx, lot); err != nil {
			return err
		}
	}

	consumption := []fifo.ConsumptionRecord{
		demoConsumption("cons-aurora-1", "mv-aurora", date(2025, 1, 12), "8000", intPtr(3)),
		demoConsumption("cons-aurora-2", "mv-aurora", date(2025, 1, 26), "7000", intPtr(2)),
		demoConsumption("cons-aurora-3", "mv-aurora", date(2025, 2, 10), "9000", intPtr(4)),
		demoConsumption("cons-aurora-4", "mv-aurora", date(2025, 2, 24), "4500", nil),
	}
	for _, rec := range consumption {
		if err := h.Store.SaveConsumption(ctx, rec); err != nil {
			return err
		}
	}

	_, err := h.Engine.Run(ctx)
	return err
}

// loadPartialFillScenario: consumption exceeding the only lot, so the
// run reports a shortfall and leaves the tail unresolved.
func (h *Handler) loadPartialFillScenario(ctx context.Context) error {
	if err := h.Store.SaveVessel(ctx, fifo.Vessel{ID: "mv-boreal", Name: "MV Boreal"}); err != nil {
		return err
	}
	if err := h.Store.SaveSupplier(ctx, fifo.Supplier{ID: "sup-rotterdam", Name: "Rotterdam Marine Fuels"}); err != nil {
		return err
	}

	lot := demoLot("lot-boreal-mar", "mv-boreal", "sup-rotterdam", date(2025, 3, 2), "10000", "8.6", "EUR", "7800.00", "8450.00")
	if err := h.Store.SaveLot(ctx, lot); err != nil {
		return err
	}

	consumption := []fifo.ConsumptionRecord{
		demoConsumption("cons-boreal-1", "mv-boreal", date(2025, 3, 8), "6000", intPtr(2)),
		demoConsumption("cons-boreal-2", "mv-boreal", date(2025, 3, 19), "7500", intPtr(3)),
	}
	for _, rec := range consumption {
		if err := h.Store.SaveConsumption(ctx, rec); err != nil {
			return err
		}
	}

	_, err := h.Engine.Run(ctx)
	return err
}

// loadMultiVesselScenario: three vessels, two suppliers. Each vessel
// draws only from its own lots.
func (h *Handler) loadMultiVesselScenario(ctx context.Context) error {
	vessels := []fifo.Vessel{
		{ID: "mv-aurora", Name: "MV Aurora"},
		{ID: "mv-boreal", Name: "MV Boreal"},
		{ID: "mv-cygnus", Name: "MV Cygnus"},
	}
	for _, v := range vessels {
		if err := h.Store.SaveVessel(ctx, v); err != nil {
			return err
		}
	}

	suppliers := []fifo.Supplier{
		{ID: "sup-bergen", Name: "Bergen Bunkers AS"},
		{ID: "sup-singapore", Name: "Singapore Straits Bunkering"},
	}
	for _, s := range suppliers {
		if err := h.Store.SaveSupplier(ctx, s); err != nil {
			return err
		}
	}

	lots := []fifo.PurchaseLot{
		demoLot("lot-aurora-apr", "mv-aurora", "sup-bergen", date(2025, 4, 1), "18000", "15.5", "USD", "14040.00", "14040.00"),
		demoLot("lot-boreal-apr", "mv-boreal", "sup-singapore", date(2025, 4, 4), "22000", "18.9", "SGD", "23100.00", "17160.00"),
		demoLot("lot-cygnus-apr-a", "mv-cygnus", "sup-singapore", date(2025, 4, 6), "9000", "7.7", "SGD", "9630.00", "7150.00"),
		demoLot("lot-cygnus-apr-b", "mv-cygnus", "sup-bergen", date(2025, 4, 20), "12000", "10.3", "USD", "9840.00", "9840.00"),
	}
	for _, lot := range lots {
		if err := h.Store.SaveLot(ctx, lot); err != nil {
			return err
		}
	}

	consumption := []fifo.ConsumptionRecord{
		demoConsumption("cons-aurora-apr-1", "mv-aurora", date(2025, 4, 10), "7000", intPtr(3)),
		demoConsumption("cons-aurora-apr-2", "mv-aurora", date(2025, 4, 25), "6500", intPtr(2)),
		demoConsumption("cons-boreal-apr-1", "mv-boreal", date(2025, 4, 12), "11000", intPtr(5)),
		demoConsumption("cons-cygnus-apr-1", "mv-cygnus", date(2025, 4, 15), "8000", intPtr(3)),
		demoConsumption("cons-cygnus-apr-2", "mv-cygnus", date(2025, 4, 28), "6000", nil),
	}
	for _, rec := range consumption {
		if err := h.Store.SaveConsumption(ctx, rec); err != nil {
			return err
		}
	}

	_, err := h.Engine.Run(ctx)
	return err
}

// loadCorruptedLedgerScenario: a healthy run, then a hand-crafted extra
// allocation that over-draws the January lot. The detector reports a
// negative balance and value drift; repair trims it back.
func (h *Handler) loadCorruptedLedgerScenario(ctx context.Context) error {
	if err := h.loadCoastalFleetScenario(ctx); err != nil {
		return err
	}

	lot, err := h.Store.GetLot(ctx, "lot-aurora-jan")
	if err != nil {
		return err
	}

	// Over-draw the lot past its original quantity.
	excess := decimal.RequireFromString("6000")
	lot.RemainingQuantity = lot.RemainingQuantity.Sub(excess)
	value, valueUSD := fifo.ProportionalValue(*lot, excess)

	bogus := fifo.Allocation{
		ID:              fifo.NewAllocationID(),
		LotID:           lot.ID,
		ConsumptionID:   "cons-aurora-3",
		Quantity:        excess,
		Value:           value,
		ValueUSD:        valueUSD.Add(decimal.RequireFromString("25.00")),
		LotBalanceAfter: lot.RemainingQuantity,
		Month:           "2025-02",
		CreatedAt:       time.Now().UTC(),
	}

	return h.Store.ApplyAllocationBatch(ctx, []fifo.Allocation{bogus}, []fifo.PurchaseLot{*lot})
}

// =============================================================================
// BUILDERS
// =============================================================================

func demoLot(id, vessel, supplier string, purchased time.Time, liters, tons, currency, total, totalUSD string) fifo.PurchaseLot {
	quantity := decimal.RequireFromString(liters)
	return fifo.PurchaseLot{
		ID:                fifo.LotID(id),
		VesselID:          fifo.VesselID(vessel),
		SupplierID:        fifo.SupplierID(supplier),
		PurchaseDate:      purchased,
		OriginalQuantity:  quantity,
		QuantityTons:      decimal.RequireFromString(tons),
		Currency:          currency,
		TotalValue:        decimal.RequireFromString(total),
		TotalValueUSD:     decimal.RequireFromString(totalUSD),
		RemainingQuantity: quantity,
	}
}

func demoConsumption(id, vessel string, day time.Time, liters string, legs *int) fifo.ConsumptionRecord {
	return fifo.ConsumptionRecord{
		ID:              fifo.ConsumptionID(id),
		VesselID:        fifo.VesselID(vessel),
		ConsumptionDate: day,
		Month:           fifo.MonthOf(day),
		Quantity:        decimal.RequireFromString(liters),
		LegsCompleted:   legs,
	}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func intPtr(n int) *int { return &n }
