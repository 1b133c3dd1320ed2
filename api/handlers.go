/*
handlers.go - HTTP API handlers for the fuel allocation ledger

PURPOSE:
  Exposes the FIFO allocation engine, verifier, detector and recovery
  orchestrator via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Fleet:
    GET    /api/vessels                List vessels
    POST   /api/vessels                Register vessel
    GET    /api/suppliers              List suppliers
    POST   /api/suppliers              Register supplier

  Records:
    GET    /api/lots                   List purchase lots
    POST   /api/lots                   Record a purchase lot
    GET    /api/lots/{id}              Lot details with its allocations
    GET    /api/consumption            List consumption records
    POST   /api/consumption            Record consumption
    GET    /api/consumption/unresolved Records with no allocations yet

  Ledger:
    GET    /api/allocations            List allocations (filterable)
    POST   /api/allocation/run         Incremental FIFO allocation run
    POST   /api/allocation/rebuild     Wipe and regenerate the ledger
    POST   /api/allocation/repair      Trim over-allocated lots

  Audit:
    GET    /api/consistency            Ledger consistency report
    GET    /api/exceptions             Detected anomalies
    GET    /api/summary/{month}        Monthly aggregate

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Allocation run already in progress
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/fuel-ledger/fifo"
	"github.com/warp/fuel-ledger/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        *sqlite.Store
	Engine       *fifo.Engine
	Verifier     *fifo.Verifier
	Detector     *fifo.Detector
	Orchestrator *fifo.Orchestrator
	Logger       zerolog.Logger

	// The engine and orchestrator are single-writer; running guards
	// against overlapping mutation requests.
	running atomic.Bool

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, logger zerolog.Logger) *Handler {
	engine := fifo.NewEngine(store)
	engine.Logger = logger

	orchestrator := fifo.NewOrchestrator(store)
	orchestrator.Logger = logger
	orchestrator.Engine = engine

	return &Handler{
		Store:        store,
		Engine:       engine,
		Verifier:     fifo.NewVerifier(store),
		Detector:     fifo.NewDetector(store),
		Orchestrator: orchestrator,
		Logger:       logger,
	}
}

// =============================================================================
// VESSEL HANDLERS
// =============================================================================

// ListVessels returns all vessels.
func (h *Handler) ListVessels(w http.ResponseWriter, r *http.Request) {
	vessels, err := h.Store.ListVessels(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list vessels", err)
		return
	}

	dtos := make([]VesselDTO, len(vessels))
	for i, v := range vessels {
		dtos[i] = VesselDTO{
			ID:        string(v.ID),
			Name:      v.Name,
			CreatedAt: v.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateVessel registers a vessel.
func (h *Handler) CreateVessel(w http.ResponseWriter, r *http.Request) {
	var req CreateVesselRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	v := fifo.Vessel{ID: fifo.VesselID(req.ID), Name: req.Name}
	if err := h.Store.SaveVessel(r.Context(), v); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create vessel", err)
		return
	}
	writeJSON(w, http.StatusCreated, VesselDTO{ID: req.ID, Name: req.Name})
}

// ListSuppliers returns all suppliers.
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.Store.ListSuppliers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list suppliers", err)
		return
	}

	dtos := make([]SupplierDTO, len(suppliers))
	for i, s := range suppliers {
		dtos[i] = SupplierDTO{
			ID:        string(s.ID),
			Name:      s.Name,
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSupplier registers a supplier.
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req CreateSupplierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	s := fifo.Supplier{ID: fifo.SupplierID(req.ID), Name: req.Name}
	if err := h.Store.SaveSupplier(r.Context(), s); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create supplier", err)
		return
	}
	writeJSON(w, http.StatusCreated, SupplierDTO{ID: req.ID, Name: req.Name})
}

// =============================================================================
// LOT HANDLERS
// =============================================================================

// ListLots returns all purchase lots, oldest purchase first.
func (h *Handler) ListLots(w http.ResponseWriter, r *http.Request) {
	lots, err := h.Store.ListLots(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list lots", err)
		return
	}

	dtos := make([]LotDTO, len(lots))
	for i, lot := range lots {
		dtos[i] = toLotDTO(lot)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLot returns one lot with its allocations.
func (h *Handler) GetLot(w http.ResponseWriter, r *http.Request) {
	id := fifo.LotID(chi.URLParam(r, "id"))

	lot, err := h.Store.GetLot(r.Context(), id)
	if err != nil {
		if fifo.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Lot not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get lot", err)
		return
	}

	allocs, err := h.Store.ListAllocations(r.Context(), fifo.AllocationFilter{LotID: &id})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list allocations", err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Lot         LotDTO          `json:"lot"`
		Allocations []AllocationDTO `json:"allocations"`
	}{toLotDTO(*lot), toAllocationDTOs(allocs)})
}

// CreateLot records a purchase lot. RemainingQuantity starts at the full
// purchased quantity.
func (h *Handler) CreateLot(w http.ResponseWriter, r *http.Request) {
	var req CreateLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	purchaseDate, err := time.Parse("2006-01-02", req.PurchaseDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid purchase_date format (use YYYY-MM-DD)", err)
		return
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil || quantity.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be a positive decimal string", err)
		return
	}
	tons, err := decimal.NewFromString(req.QuantityTons)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity_tons", err)
		return
	}
	totalValue, err := decimal.NewFromString(req.TotalValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid total_value", err)
		return
	}
	totalValueUSD, err := decimal.NewFromString(req.TotalValueUSD)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid total_value_usd", err)
		return
	}

	lot := fifo.PurchaseLot{
		ID:                fifo.LotID(req.ID),
		VesselID:          fifo.VesselID(req.VesselID),
		SupplierID:        fifo.SupplierID(req.SupplierID),
		PurchaseDate:      purchaseDate,
		OriginalQuantity:  quantity,
		QuantityTons:      tons,
		Currency:          req.Currency,
		TotalValue:        totalValue,
		TotalValueUSD:     totalValueUSD,
		RemainingQuantity: quantity,
	}

	if err := h.Store.SaveLot(r.Context(), lot); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create lot", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLotDTO(lot))
}

// =============================================================================
// CONSUMPTION HANDLERS
// =============================================================================

// ListConsumption returns all consumption records in processing order.
func (h *Handler) ListConsumption(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Store.ListConsumption(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list consumption", err)
		return
	}
	writeJSON(w, http.StatusOK, toConsumptionDTOs(recs))
}

// ListUnresolvedConsumption returns records with no allocations yet.
func (h *Handler) ListUnresolvedConsumption(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Store.ListUnresolvedConsumption(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list unresolved consumption", err)
		return
	}
	writeJSON(w, http.StatusOK, toConsumptionDTOs(recs))
}

// GetConsumption returns one consumption record with its allocations.
func (h *Handler) GetConsumption(w http.ResponseWriter, r *http.Request) {
	id := fifo.ConsumptionID(chi.URLParam(r, "id"))

	rec, err := h.Store.GetConsumption(r.Context(), id)
	if err != nil {
		if fifo.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Consumption record not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get consumption", err)
		return
	}

	allocs, err := h.Store.ListAllocations(r.Context(), fifo.AllocationFilter{ConsumptionID: &id})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list allocations", err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Consumption ConsumptionDTO  `json:"consumption"`
		Allocations []AllocationDTO `json:"allocations"`
	}{toConsumptionDTO(*rec), toAllocationDTOs(allocs)})
}

// CreateConsumption records a consumption fact. The month key is derived
// from the consumption date.
func (h *Handler) CreateConsumption(w http.ResponseWriter, r *http.Request) {
	var req CreateConsumptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := time.Parse("2006-01-02", req.ConsumptionDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid consumption_date format (use YYYY-MM-DD)", err)
		return
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil || quantity.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be a positive decimal string", err)
		return
	}

	rec := fifo.ConsumptionRecord{
		ID:              fifo.ConsumptionID(req.ID),
		VesselID:        fifo.VesselID(req.VesselID),
		ConsumptionDate: date,
		Month:           fifo.MonthOf(date),
		Quantity:        quantity,
		LegsCompleted:   req.LegsCompleted,
	}

	if err := h.Store.SaveConsumption(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create consumption", err)
		return
	}
	writeJSON(w, http.StatusCreated, toConsumptionDTO(rec))
}

// =============================================================================
// ALLOCATION HANDLERS
// =============================================================================

// ListAllocations returns ledger rows in creation order. Supports
// lot_id, consumption_id, month, from and to query filters.
func (h *Handler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	var filter fifo.AllocationFilter

	if v := r.URL.Query().Get("lot_id"); v != "" {
		id := fifo.LotID(v)
		filter.LotID = &id
	}
	if v := r.URL.Query().Get("consumption_id"); v != "" {
		id := fifo.ConsumptionID(v)
		filter.ConsumptionID = &id
	}
	if v := r.URL.Query().Get("month"); v != "" {
		m := fifo.MonthKey(v)
		if _, err := m.Parse(); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid month format (use YYYY-MM)", err)
			return
		}
		filter.Month = &m
	}

	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid window", err)
		return
	}
	filter.Window = window

	allocs, err := h.Store.ListAllocations(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list allocations", err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTOs(allocs))
}

// RunAllocation triggers an incremental FIFO allocation run.
func (h *Handler) RunAllocation(w http.ResponseWriter, r *http.Request) {
	if !h.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "An allocation run is already in progress", nil)
		return
	}
	defer h.running.Store(false)

	result, err := h.Engine.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Allocation run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunResultDTO(result))
}

// RebuildLedger wipes the allocation ledger and regenerates it from the
// source records.
func (h *Handler) RebuildLedger(w http.ResponseWriter, r *http.Request) {
	if !h.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "An allocation run is already in progress", nil)
		return
	}
	defer h.running.Store(false)

	result, err := h.Orchestrator.RebuildFromScratch(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Rebuild failed", err)
		return
	}

	writeJSON(w, http.StatusOK, RebuildResultDTO{
		FixedLots:          result.FixedLots,
		RemovedAllocations: result.RemovedAllocations,
		CreatedAllocations: result.CreatedAllocations,
		Shortfalls:         toShortfallDTOs(result.Shortfalls),
		Log:                result.Log,
	})
}

// RepairLots trims allocations from over-allocated lots.
func (h *Handler) RepairLots(w http.ResponseWriter, r *http.Request) {
	if !h.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "An allocation run is already in progress", nil)
		return
	}
	defer h.running.Store(false)

	result, err := h.Orchestrator.RepairOverAllocatedLots(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Repair failed", err)
		return
	}

	writeJSON(w, http.StatusOK, RepairResultDTO{
		FixedLots:          result.FixedLots,
		RemovedAllocations: result.RemovedAllocations,
		Log:                result.Log,
	})
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// VerifyConsistency returns the ledger consistency report, optionally
// scoped by from/to query parameters.
func (h *Handler) VerifyConsistency(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid window", err)
		return
	}

	report, err := h.Verifier.VerifyConsistency(r.Context(), window)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Verification failed", err)
		return
	}

	issues := report.Issues
	if issues == nil {
		issues = []string{}
	}

	writeJSON(w, http.StatusOK, ConsistencyReportDTO{
		Balanced:                 report.Balanced,
		TotalPurchaseQuantity:    report.TotalPurchaseQuantity.String(),
		TotalConsumptionQuantity: report.TotalConsumptionQuantity.String(),
		TotalAllocatedQuantity:   report.TotalAllocatedQuantity.String(),
		TotalRemainingQuantity:   report.TotalRemainingQuantity.String(),
		TotalPurchaseValueUSD:    report.TotalPurchaseValueUSD.String(),
		TotalAllocatedValueUSD:   report.TotalAllocatedValueUSD.String(),
		BalanceVariance:          report.BalanceVariance.String(),
		UnallocatedQuantity:      report.UnallocatedQuantity.String(),
		Issues:                   issues,
		InconsistentAllocations:  report.InconsistentAllocations,
		IntegrityScore:           report.IntegrityScore,
	})
}

// DetectExceptions returns detected ledger anomalies, most severe first.
func (h *Handler) DetectExceptions(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid window", err)
		return
	}

	findings, err := h.Detector.DetectExceptions(r.Context(), window)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Detection failed", err)
		return
	}

	dtos := make([]FindingDTO, len(findings))
	for i, f := range findings {
		dtos[i] = FindingDTO{
			Type:             string(f.Type),
			Severity:         string(f.Severity),
			LotID:            string(f.LotID),
			ConsumptionID:    string(f.ConsumptionID),
			AllocationID:     string(f.AllocationID),
			Date:             f.Date.Format("2006-01-02"),
			Quantity:         f.Quantity.String(),
			ExpectedValueUSD: f.ExpectedValueUSD.String(),
			ActualValueUSD:   f.ActualValueUSD.String(),
			Detail:           f.Detail,
			Recommendation:   f.Recommendation,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MonthlySummary aggregates one processing month across purchases,
// consumption and allocations.
func (h *Handler) MonthlySummary(w http.ResponseWriter, r *http.Request) {
	month := fifo.MonthKey(chi.URLParam(r, "month"))
	monthStart, err := month.Parse()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month format (use YYYY-MM)", err)
		return
	}
	monthEnd, _ := month.EndOfMonth()

	ctx := r.Context()

	lots, err := h.Store.ListLots(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list lots", err)
		return
	}
	recs, err := h.Store.ListConsumption(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list consumption", err)
		return
	}
	allocs, err := h.Store.ListAllocations(ctx, fifo.AllocationFilter{Month: &month})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list allocations", err)
		return
	}

	summary := MonthlySummaryDTO{Month: string(month)}

	purchased := decimal.Zero
	purchasedUSD := decimal.Zero
	for _, lot := range lots {
		if lot.PurchaseDate.Before(monthStart) || lot.PurchaseDate.After(monthEnd) {
			continue
		}
		purchased = purchased.Add(lot.OriginalQuantity)
		purchasedUSD = purchasedUSD.Add(lot.TotalValueUSD)
	}

	vesselOf := make(map[fifo.ConsumptionID]fifo.VesselID, len(recs))
	for _, rec := range recs {
		vesselOf[rec.ID] = rec.VesselID
	}

	type vesselTotals struct {
		consumed     decimal.Decimal
		allocated    decimal.Decimal
		allocatedUSD decimal.Decimal
	}
	perVessel := make(map[fifo.VesselID]*vesselTotals)
	vesselTotalsFor := func(id fifo.VesselID) *vesselTotals {
		t, ok := perVessel[id]
		if !ok {
			t = &vesselTotals{consumed: decimal.Zero, allocated: decimal.Zero, allocatedUSD: decimal.Zero}
			perVessel[id] = t
		}
		return t
	}

	resolved := make(map[fifo.ConsumptionID]bool)
	allocated := decimal.Zero
	allocatedUSD := decimal.Zero
	for _, a := range allocs {
		allocated = allocated.Add(a.Quantity)
		allocatedUSD = allocatedUSD.Add(a.ValueUSD)
		resolved[a.ConsumptionID] = true
		if vessel, ok := vesselOf[a.ConsumptionID]; ok {
			t := vesselTotalsFor(vessel)
			t.allocated = t.allocated.Add(a.Quantity)
			t.allocatedUSD = t.allocatedUSD.Add(a.ValueUSD)
		}
	}

	consumed := decimal.Zero
	for _, rec := range recs {
		if rec.Month != month {
			continue
		}
		consumed = consumed.Add(rec.Quantity)
		summary.ConsumptionCount++
		if !resolved[rec.ID] {
			summary.UnresolvedConsumption++
		}
		t := vesselTotalsFor(rec.VesselID)
		t.consumed = t.consumed.Add(rec.Quantity)
	}

	vesselIDs := make([]fifo.VesselID, 0, len(perVessel))
	for id := range perVessel {
		vesselIDs = append(vesselIDs, id)
	}
	sort.Slice(vesselIDs, func(i, j int) bool { return vesselIDs[i] < vesselIDs[j] })
	summary.Vessels = make([]VesselMonthDTO, 0, len(vesselIDs))
	for _, id := range vesselIDs {
		t := perVessel[id]
		summary.Vessels = append(summary.Vessels, VesselMonthDTO{
			VesselID:          string(id),
			ConsumedQuantity:  t.consumed.String(),
			AllocatedQuantity: t.allocated.String(),
			AllocatedValueUSD: t.allocatedUSD.String(),
		})
	}

	summary.PurchasedQuantity = purchased.String()
	summary.PurchasedValueUSD = purchasedUSD.String()
	summary.ConsumedQuantity = consumed.String()
	summary.AllocatedQuantity = allocated.String()
	summary.AllocatedValueUSD = allocatedUSD.String()
	summary.AllocationCount = len(allocs)

	writeJSON(w, http.StatusOK, summary)
}

// Health is a liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// DTO CONVERSION
// =============================================================================

func toLotDTO(lot fifo.PurchaseLot) LotDTO {
	return LotDTO{
		ID:                string(lot.ID),
		VesselID:          string(lot.VesselID),
		SupplierID:        string(lot.SupplierID),
		PurchaseDate:      lot.PurchaseDate.Format("2006-01-02"),
		OriginalQuantity:  lot.OriginalQuantity.String(),
		QuantityTons:      lot.QuantityTons.String(),
		Currency:          lot.Currency,
		TotalValue:        lot.TotalValue.String(),
		TotalValueUSD:     lot.TotalValueUSD.String(),
		RemainingQuantity: lot.RemainingQuantity.String(),
		PricePerLiterUSD:  fifo.PricePerLiterUSD(lot).String(),
		CreatedAt:         lot.CreatedAt.Format(time.RFC3339),
	}
}

func toConsumptionDTO(rec fifo.ConsumptionRecord) ConsumptionDTO {
	return ConsumptionDTO{
		ID:              string(rec.ID),
		VesselID:        string(rec.VesselID),
		ConsumptionDate: rec.ConsumptionDate.Format("2006-01-02"),
		Month:           string(rec.Month),
		Quantity:        rec.Quantity.String(),
		LegsCompleted:   rec.LegsCompleted,
		CreatedAt:       rec.CreatedAt.Format(time.RFC3339),
	}
}

func toConsumptionDTOs(recs []fifo.ConsumptionRecord) []ConsumptionDTO {
	dtos := make([]ConsumptionDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toConsumptionDTO(rec)
	}
	return dtos
}

func toAllocationDTOs(allocs []fifo.Allocation) []AllocationDTO {
	dtos := make([]AllocationDTO, len(allocs))
	for i, a := range allocs {
		dtos[i] = AllocationDTO{
			ID:              string(a.ID),
			LotID:           string(a.LotID),
			ConsumptionID:   string(a.ConsumptionID),
			Quantity:        a.Quantity.String(),
			Value:           a.Value.String(),
			ValueUSD:        a.ValueUSD.String(),
			LotBalanceAfter: a.LotBalanceAfter.String(),
			Month:           string(a.Month),
			CrossVessel:     a.CrossVessel,
			CreatedAt:       a.CreatedAt.Format(time.RFC3339),
		}
	}
	return dtos
}

func toShortfallDTOs(shortfalls []fifo.Shortfall) []ShortfallDTO {
	dtos := make([]ShortfallDTO, len(shortfalls))
	for i, s := range shortfalls {
		dtos[i] = ShortfallDTO{
			ConsumptionID: string(s.ConsumptionID),
			VesselID:      string(s.VesselID),
			Month:         string(s.Month),
			Missing:       s.Missing.String(),
		}
	}
	return dtos
}

func toRunResultDTO(result *fifo.RunResult) RunResultDTO {
	log := result.Log
	if log == nil {
		log = []string{}
	}
	return RunResultDTO{
		ProcessedConsumptions:  result.ProcessedConsumptions,
		AllocationsCreated:     result.AllocationsCreated,
		TotalAllocatedQuantity: result.TotalAllocatedQuantity.String(),
		TotalAllocatedValueUSD: result.TotalAllocatedValueUSD.String(),
		Shortfalls:             toShortfallDTOs(result.Shortfalls),
		Log:                    log,
	}
}

// parseWindow reads optional from/to query parameters. Accepts full
// dates (2006-01-02) or month keys (2006-01); a month "to" bound means
// the end of that month.
func parseWindow(r *http.Request) (fifo.Window, error) {
	var window fifo.Window

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := parseDateOrMonth(v, false)
		if err != nil {
			return window, err
		}
		window.From = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := parseDateOrMonth(v, true)
		if err != nil {
			return window, err
		}
		window.To = &t
	}
	return window, nil
}

func parseDateOrMonth(v string, endOfMonth bool) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	m := fifo.MonthKey(v)
	if _, err := m.Parse(); err != nil {
		return time.Time{}, err
	}
	if endOfMonth {
		return m.EndOfMonth()
	}
	return m.Parse()
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
