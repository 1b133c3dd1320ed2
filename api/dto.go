/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DECIMAL FIELDS:
  All quantities and monetary values are JSON strings ("1500.000"), never
  floats. Clients that need arithmetic must parse them with a decimal
  library. This mirrors how values are stored.

DATE FIELDS:
  Dates are "2006-01-02", months are "2006-01", timestamps are RFC 3339.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

// =============================================================================
// REFERENCE DATA
// =============================================================================

// VesselDTO represents a vessel in API responses.
type VesselDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateVesselRequest is the request to register a vessel.
type CreateVesselRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SupplierDTO represents a supplier in API responses.
type SupplierDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateSupplierRequest is the request to register a supplier.
type CreateSupplierRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// =============================================================================
// LOTS AND CONSUMPTION
// =============================================================================

// LotDTO represents a purchase lot in API responses.
type LotDTO struct {
	ID                string `json:"id"`
	VesselID          string `json:"vessel_id"`
	SupplierID        string `json:"supplier_id"`
	PurchaseDate      string `json:"purchase_date"`
	OriginalQuantity  string `json:"original_quantity"`
	QuantityTons      string `json:"quantity_tons"`
	Currency          string `json:"currency"`
	TotalValue        string `json:"total_value"`
	TotalValueUSD     string `json:"total_value_usd"`
	RemainingQuantity string `json:"remaining_quantity"`
	PricePerLiterUSD  string `json:"price_per_liter_usd"`
	CreatedAt         string `json:"created_at,omitempty"`
}

// CreateLotRequest is the request to record a purchase lot.
type CreateLotRequest struct {
	ID            string `json:"id"`
	VesselID      string `json:"vessel_id"`
	SupplierID    string `json:"supplier_id"`
	PurchaseDate  string `json:"purchase_date"`
	Quantity      string `json:"quantity"`
	QuantityTons  string `json:"quantity_tons"`
	Currency      string `json:"currency"`
	TotalValue    string `json:"total_value"`
	TotalValueUSD string `json:"total_value_usd"`
}

// ConsumptionDTO represents a consumption record in API responses.
type ConsumptionDTO struct {
	ID              string `json:"id"`
	VesselID        string `json:"vessel_id"`
	ConsumptionDate string `json:"consumption_date"`
	Month           string `json:"month"`
	Quantity        string `json:"quantity"`
	LegsCompleted   *int   `json:"legs_completed,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// CreateConsumptionRequest is the request to record consumption.
type CreateConsumptionRequest struct {
	ID              string `json:"id"`
	VesselID        string `json:"vessel_id"`
	ConsumptionDate string `json:"consumption_date"`
	Quantity        string `json:"quantity"`
	LegsCompleted   *int   `json:"legs_completed,omitempty"`
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

// AllocationDTO represents one ledger row in API responses.
type AllocationDTO struct {
	ID              string `json:"id"`
	LotID           string `json:"lot_id"`
	ConsumptionID   string `json:"consumption_id"`
	Quantity        string `json:"quantity"`
	Value           string `json:"value"`
	ValueUSD        string `json:"value_usd"`
	LotBalanceAfter string `json:"lot_balance_after"`
	Month           string `json:"month"`
	CrossVessel     bool   `json:"cross_vessel"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// ShortfallDTO reports consumption the available lots could not cover.
type ShortfallDTO struct {
	ConsumptionID string `json:"consumption_id"`
	VesselID      string `json:"vessel_id"`
	Month         string `json:"month"`
	Missing       string `json:"missing"`
}

// RunResultDTO summarizes one allocation run.
type RunResultDTO struct {
	ProcessedConsumptions  int            `json:"processed_consumptions"`
	AllocationsCreated     int            `json:"allocations_created"`
	TotalAllocatedQuantity string         `json:"total_allocated_quantity"`
	TotalAllocatedValueUSD string         `json:"total_allocated_value_usd"`
	Shortfalls             []ShortfallDTO `json:"shortfalls"`
	Log                    []string       `json:"log"`
}

// =============================================================================
// VERIFICATION AND EXCEPTIONS
// =============================================================================

// ConsistencyReportDTO is the verifier's output.
type ConsistencyReportDTO struct {
	Balanced                 bool     `json:"balanced"`
	TotalPurchaseQuantity    string   `json:"total_purchase_quantity"`
	TotalConsumptionQuantity string   `json:"total_consumption_quantity"`
	TotalAllocatedQuantity   string   `json:"total_allocated_quantity"`
	TotalRemainingQuantity   string   `json:"total_remaining_quantity"`
	TotalPurchaseValueUSD    string   `json:"total_purchase_value_usd"`
	TotalAllocatedValueUSD   string   `json:"total_allocated_value_usd"`
	BalanceVariance          string   `json:"balance_variance"`
	UnallocatedQuantity      string   `json:"unallocated_quantity"`
	Issues                   []string `json:"issues"`
	InconsistentAllocations  int      `json:"inconsistent_allocations"`
	IntegrityScore           int      `json:"integrity_score"`
}

// FindingDTO is one detected ledger exception.
type FindingDTO struct {
	Type             string `json:"type"`
	Severity         string `json:"severity"`
	LotID            string `json:"lot_id,omitempty"`
	ConsumptionID    string `json:"consumption_id,omitempty"`
	AllocationID     string `json:"allocation_id,omitempty"`
	Date             string `json:"date"`
	Quantity         string `json:"quantity,omitempty"`
	ExpectedValueUSD string `json:"expected_value_usd,omitempty"`
	ActualValueUSD   string `json:"actual_value_usd,omitempty"`
	Detail           string `json:"detail"`
	Recommendation   string `json:"recommendation"`
}

// =============================================================================
// RECOVERY
// =============================================================================

// RebuildResultDTO summarizes a full ledger rebuild.
type RebuildResultDTO struct {
	FixedLots          int            `json:"fixed_lots"`
	RemovedAllocations int            `json:"removed_allocations"`
	CreatedAllocations int            `json:"created_allocations"`
	Shortfalls         []ShortfallDTO `json:"shortfalls"`
	Log                []string       `json:"log"`
}

// RepairResultDTO summarizes a targeted repair.
type RepairResultDTO struct {
	FixedLots          int      `json:"fixed_lots"`
	RemovedAllocations int      `json:"removed_allocations"`
	Log                []string `json:"log"`
}

// =============================================================================
// SUMMARY AND SCENARIOS
// =============================================================================

// MonthlySummaryDTO aggregates one processing month.
type MonthlySummaryDTO struct {
	Month                 string `json:"month"`
	PurchasedQuantity     string `json:"purchased_quantity"`
	PurchasedValueUSD     string `json:"purchased_value_usd"`
	ConsumedQuantity      string `json:"consumed_quantity"`
	AllocatedQuantity     string `json:"allocated_quantity"`
	AllocatedValueUSD     string `json:"allocated_value_usd"`
	AllocationCount       int    `json:"allocation_count"`
	ConsumptionCount      int    `json:"consumption_count"`
	UnresolvedConsumption int    `json:"unresolved_consumption"`

	Vessels []VesselMonthDTO `json:"vessels"`
}

// VesselMonthDTO breaks a monthly summary down for one vessel.
type VesselMonthDTO struct {
	VesselID          string `json:"vessel_id"`
	ConsumedQuantity  string `json:"consumed_quantity"`
	AllocatedQuantity string `json:"allocated_quantity"`
	AllocatedValueUSD string `json:"allocated_value_usd"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
