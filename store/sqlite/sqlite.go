/*
Package sqlite provides the SQLite-backed record store.

PURPOSE:
  Implements fifo.Store plus the vessel/supplier reference tables the API
  needs. In production the same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

WRITE DISCIPLINE:
  Allocation rows are created only through ApplyAllocationBatch and
  destroyed only through RemoveAllocationBatch / ResetLedger, each a
  single database transaction. There is no UPDATE on allocations at all;
  corrections happen by delete-and-regenerate.

KEY TABLES:
  purchase_lots:        lots with original and remaining quantity
  consumption_records:  immutable consumption facts
  allocations:          append-only matching ledger
  vessels, suppliers:   reference data

ORDERING:
  Allocation reads are ordered by (created_at, rowid) so storage order is
  creation order, which targeted repair and chronology detection rely on.

WAL MODE:
  SQLite is opened with WAL so the verifier and detector can read while
  an engine run writes.

USAGE:
  st, err := sqlite.New("./data/fuel.db")
  ...
  engine := fifo.NewEngine(st)

SEE ALSO:
  - fifo/store.go:        interface definitions and contracts
  - fifo/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/fuel-ledger/fifo"
)

// Store implements fifo.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema. Quantities and monetary values are
// stored as decimal strings, never floats.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS vessels (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS suppliers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS purchase_lots (
		id TEXT PRIMARY KEY,
		vessel_id TEXT NOT NULL,
		supplier_id TEXT NOT NULL,
		purchase_date TEXT NOT NULL,
		original_quantity TEXT NOT NULL,
		quantity_tons TEXT NOT NULL,
		currency TEXT NOT NULL,
		total_value TEXT NOT NULL,
		total_value_usd TEXT NOT NULL,
		remaining_quantity TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Lot queue hot path: vessel's open lots oldest first
	CREATE INDEX IF NOT EXISTS idx_lots_vessel_date
		ON purchase_lots(vessel_id, purchase_date, id);

	CREATE TABLE IF NOT EXISTS consumption_records (
		id TEXT PRIMARY KEY,
		vessel_id TEXT NOT NULL,
		consumption_date TEXT NOT NULL,
		month_key TEXT NOT NULL,
		quantity TEXT NOT NULL,
		legs_completed INTEGER,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_consumption_month_vessel
		ON consumption_records(month_key, vessel_id, consumption_date, id);

	-- Allocations (append-only matching ledger)
	CREATE TABLE IF NOT EXISTS allocations (
		id TEXT PRIMARY KEY,
		lot_id TEXT NOT NULL REFERENCES purchase_lots(id),
		consumption_id TEXT NOT NULL REFERENCES consumption_records(id),
		quantity TEXT NOT NULL,
		value TEXT NOT NULL,
		value_usd TEXT NOT NULL,
		lot_balance_after TEXT NOT NULL,
		month_key TEXT NOT NULL,
		cross_vessel INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_allocations_lot ON allocations(lot_id);
	CREATE INDEX IF NOT EXISTS idx_allocations_consumption ON allocations(consumption_id);
	CREATE INDEX IF NOT EXISTS idx_allocations_month ON allocations(month_key);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PURCHASE LOTS
// =============================================================================

// SaveLot inserts or updates a purchase lot.
func (s *Store) SaveLot(ctx context.Context, lot fifo.PurchaseLot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO purchase_lots
		(id, vessel_id, supplier_id, purchase_date, original_quantity, quantity_tons,
		 currency, total_value, total_value_usd, remaining_quantity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vessel_id = excluded.vessel_id,
			supplier_id = excluded.supplier_id,
			purchase_date = excluded.purchase_date,
			original_quantity = excluded.original_quantity,
			quantity_tons = excluded.quantity_tons,
			currency = excluded.currency,
			total_value = excluded.total_value,
			total_value_usd = excluded.total_value_usd,
			remaining_quantity = excluded.remaining_quantity
	`

	_, err := s.db.ExecContext(ctx, query,
		lot.ID, lot.VesselID, lot.SupplierID,
		lot.PurchaseDate.UTC().Format(time.RFC3339),
		lot.OriginalQuantity.String(), lot.QuantityTons.String(),
		lot.Currency, lot.TotalValue.String(), lot.TotalValueUSD.String(),
		lot.RemainingQuantity.String(),
		lot.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save lot: %w", err)
	}
	return nil
}

// GetLot retrieves a lot by ID.
func (s *Store) GetLot(ctx context.Context, id fifo.LotID) (*fifo.PurchaseLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lots, err := s.queryLots(ctx, lotColumns+" FROM purchase_lots WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(lots) == 0 {
		return nil, fifo.ErrLotNotFound
	}
	return &lots[0], nil
}

// ListLots returns all lots, oldest purchase first.
func (s *Store) ListLots(ctx context.Context) ([]fifo.PurchaseLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryLots(ctx, lotColumns+" FROM purchase_lots ORDER BY purchase_date ASC, id ASC")
}

// ListLotsForVessel returns the vessel's open lots purchased at or before
// the cutoff, oldest first with id tie-break.
func (s *Store) ListLotsForVessel(ctx context.Context, vessel fifo.VesselID, cutoff time.Time) ([]fifo.PurchaseLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := lotColumns + `
		FROM purchase_lots
		WHERE vessel_id = ?
		  AND purchase_date <= ?
		  AND CAST(remaining_quantity AS REAL) > 0
		ORDER BY purchase_date ASC, id ASC
	`
	return s.queryLots(ctx, query, vessel, cutoff.UTC().Format(time.RFC3339))
}

const lotColumns = `SELECT id, vessel_id, supplier_id, purchase_date, original_quantity,
	quantity_tons, currency, total_value, total_value_usd, remaining_quantity, created_at`

func (s *Store) queryLots(ctx context.Context, query string, args ...any) ([]fifo.PurchaseLot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots: %w", err)
	}
	defer rows.Close()

	var lots []fifo.PurchaseLot
	for rows.Next() {
		var (
			lot           fifo.PurchaseLot
			purchaseDate  string
			original      string
			tons          string
			totalValue    string
			totalValueUSD string
			remaining     string
			createdAt     string
		)
		if err := rows.Scan(&lot.ID, &lot.VesselID, &lot.SupplierID, &purchaseDate,
			&original, &tons, &lot.Currency, &totalValue, &totalValueUSD,
			&remaining, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}

		lot.PurchaseDate, _ = time.Parse(time.RFC3339, purchaseDate)
		lot.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		lot.OriginalQuantity = mustDecimal(original)
		lot.QuantityTons = mustDecimal(tons)
		lot.TotalValue = mustDecimal(totalValue)
		lot.TotalValueUSD = mustDecimal(totalValueUSD)
		lot.RemainingQuantity = mustDecimal(remaining)
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// =============================================================================
// CONSUMPTION RECORDS
// =============================================================================

// SaveConsumption inserts a consumption record. The month key is derived
// from the consumption date when absent.
func (s *Store) SaveConsumption(ctx context.Context, rec fifo.ConsumptionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Month == "" {
		rec.Month = fifo.MonthOf(rec.ConsumptionDate)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var legs any
	if rec.LegsCompleted != nil {
		legs = *rec.LegsCompleted
	}

	query := `
		INSERT INTO consumption_records
		(id, vessel_id, consumption_date, month_key, quantity, legs_completed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vessel_id = excluded.vessel_id,
			consumption_date = excluded.consumption_date,
			month_key = excluded.month_key,
			quantity = excluded.quantity,
			legs_completed = excluded.legs_completed
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.VesselID,
		rec.ConsumptionDate.UTC().Format(time.RFC3339),
		rec.Month, rec.Quantity.String(), legs,
		rec.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save consumption: %w", err)
	}
	return nil
}

// GetConsumption retrieves a consumption record by ID.
func (s *Store) GetConsumption(ctx context.Context, id fifo.ConsumptionID) (*fifo.ConsumptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := s.queryConsumption(ctx, consumptionColumns+" FROM consumption_records WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fifo.ErrConsumptionNotFound
	}
	return &recs[0], nil
}

// ListConsumption returns all consumption records in processing order.
func (s *Store) ListConsumption(ctx context.Context) ([]fifo.ConsumptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryConsumption(ctx, consumptionColumns+`
		FROM consumption_records
		ORDER BY month_key ASC, vessel_id ASC, consumption_date ASC, id ASC`)
}

// ListUnresolvedConsumption returns records with no allocations yet.
func (s *Store) ListUnresolvedConsumption(ctx context.Context) ([]fifo.ConsumptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := consumptionColumns + `
		FROM consumption_records c
		WHERE NOT EXISTS (SELECT 1 FROM allocations a WHERE a.consumption_id = c.id)
		ORDER BY month_key ASC, vessel_id ASC, consumption_date ASC, id ASC
	`
	return s.queryConsumption(ctx, query)
}

// ListVesselsWithUnresolvedConsumption returns, ordered by id, the
// distinct vessels that still have unresolved consumption.
func (s *Store) ListVesselsWithUnresolvedConsumption(ctx context.Context) ([]fifo.VesselID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT DISTINCT vessel_id
		FROM consumption_records c
		WHERE NOT EXISTS (SELECT 1 FROM allocations a WHERE a.consumption_id = c.id)
		ORDER BY vessel_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query vessels: %w", err)
	}
	defer rows.Close()

	var vessels []fifo.VesselID
	for rows.Next() {
		var v fifo.VesselID
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		vessels = append(vessels, v)
	}
	return vessels, rows.Err()
}

const consumptionColumns = `SELECT id, vessel_id, consumption_date, month_key, quantity, legs_completed, created_at`

func (s *Store) queryConsumption(ctx context.Context, query string, args ...any) ([]fifo.ConsumptionRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query consumption: %w", err)
	}
	defer rows.Close()

	var recs []fifo.ConsumptionRecord
	for rows.Next() {
		var (
			rec      fifo.ConsumptionRecord
			date     string
			quantity string
			legs     sql.NullInt64
			created  string
		)
		if err := rows.Scan(&rec.ID, &rec.VesselID, &date, &rec.Month, &quantity, &legs, &created); err != nil {
			return nil, fmt.Errorf("failed to scan consumption: %w", err)
		}

		rec.ConsumptionDate, _ = time.Parse(time.RFC3339, date)
		rec.CreatedAt, _ = time.Parse(time.RFC3339, created)
		rec.Quantity = mustDecimal(quantity)
		if legs.Valid {
			n := int(legs.Int64)
			rec.LegsCompleted = &n
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

// ListAllocations returns allocations in creation/storage order, scoped
// by the filter. Window bounds apply to the allocation's month.
func (s *Store) ListAllocations(ctx context.Context, filter fifo.AllocationFilter) ([]fifo.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.LotID != nil {
		where = append(where, "lot_id = ?")
		args = append(args, *filter.LotID)
	}
	if filter.ConsumptionID != nil {
		where = append(where, "consumption_id = ?")
		args = append(args, *filter.ConsumptionID)
	}
	if filter.Month != nil {
		where = append(where, "month_key = ?")
		args = append(args, *filter.Month)
	}
	if filter.Window.From != nil {
		where = append(where, "month_key >= ?")
		args = append(args, fifo.MonthOf(*filter.Window.From))
	}
	if filter.Window.To != nil {
		where = append(where, "month_key <= ?")
		args = append(args, fifo.MonthOf(*filter.Window.To))
	}

	query := `
		SELECT id, lot_id, consumption_id, quantity, value, value_usd,
		       lot_balance_after, month_key, cross_vessel, created_at
		FROM allocations
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, rowid ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var allocs []fifo.Allocation
	for rows.Next() {
		var (
			alloc        fifo.Allocation
			quantity     string
			value        string
			valueUSD     string
			balanceAfter string
			created      string
		)
		if err := rows.Scan(&alloc.ID, &alloc.LotID, &alloc.ConsumptionID,
			&quantity, &value, &valueUSD, &balanceAfter, &alloc.Month,
			&alloc.CrossVessel, &created); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}

		alloc.Quantity = mustDecimal(quantity)
		alloc.Value = mustDecimal(value)
		alloc.ValueUSD = mustDecimal(valueUSD)
		alloc.LotBalanceAfter = mustDecimal(balanceAfter)
		alloc.CreatedAt, _ = time.Parse(time.RFC3339, created)
		allocs = append(allocs, alloc)
	}
	return allocs, rows.Err()
}

// ApplyAllocationBatch inserts allocation rows and persists updated lot
// balances in one database transaction.
func (s *Store) ApplyAllocationBatch(ctx context.Context, newAllocations []fifo.Allocation, updatedLots []fifo.PurchaseLot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, alloc := range newAllocations {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO allocations
			(id, lot_id, consumption_id, quantity, value, value_usd,
			 lot_balance_after, month_key, cross_vessel, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			alloc.ID, alloc.LotID, alloc.ConsumptionID,
			alloc.Quantity.String(), alloc.Value.String(), alloc.ValueUSD.String(),
			alloc.LotBalanceAfter.String(), alloc.Month, alloc.CrossVessel,
			alloc.CreatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert allocation: %w", err)
		}
	}

	if err := updateLotBalances(ctx, tx, updatedLots); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveAllocationBatch deletes allocation rows and persists corrected
// lot balances in one database transaction.
func (s *Store) RemoveAllocationBatch(ctx context.Context, removed []fifo.AllocationID, updatedLots []fifo.PurchaseLot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range removed {
		res, err := tx.ExecContext(ctx, "DELETE FROM allocations WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete allocation: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to delete allocation: %w", err)
		}
		if affected == 0 {
			return fifo.ErrAllocationNotFound
		}
	}

	if err := updateLotBalances(ctx, tx, updatedLots); err != nil {
		return err
	}
	return tx.Commit()
}

// ResetLedger wipes all allocations and restores lot balances, in one
// transaction.
func (s *Store) ResetLedger(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM allocations"); err != nil {
		return fmt.Errorf("failed to wipe allocations: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE purchase_lots SET remaining_quantity = original_quantity"); err != nil {
		return fmt.Errorf("failed to reset lot balances: %w", err)
	}
	return tx.Commit()
}

func updateLotBalances(ctx context.Context, tx *sql.Tx, lots []fifo.PurchaseLot) error {
	for _, lot := range lots {
		res, err := tx.ExecContext(ctx,
			"UPDATE purchase_lots SET remaining_quantity = ? WHERE id = ?",
			lot.RemainingQuantity.String(), lot.ID)
		if err != nil {
			return fmt.Errorf("failed to update lot balance: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fifo.ErrLotNotFound
		}
	}
	return nil
}

// =============================================================================
// VESSELS AND SUPPLIERS
// =============================================================================

// SaveVessel inserts or updates a vessel.
func (s *Store) SaveVessel(ctx context.Context, v fifo.Vessel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vessels (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		v.ID, v.Name, v.CreatedAt.Format(time.RFC3339))
	return err
}

// ListVessels returns all vessels ordered by name.
func (s *Store) ListVessels(ctx context.Context) ([]fifo.Vessel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at FROM vessels ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vessels []fifo.Vessel
	for rows.Next() {
		var v fifo.Vessel
		var created string
		if err := rows.Scan(&v.ID, &v.Name, &created); err != nil {
			return nil, err
		}
		v.CreatedAt, _ = time.Parse(time.RFC3339, created)
		vessels = append(vessels, v)
	}
	return vessels, rows.Err()
}

// SaveSupplier inserts or updates a supplier.
func (s *Store) SaveSupplier(ctx context.Context, sup fifo.Supplier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sup.CreatedAt.IsZero() {
		sup.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		sup.ID, sup.Name, sup.CreatedAt.Format(time.RFC3339))
	return err
}

// ListSuppliers returns all suppliers ordered by name.
func (s *Store) ListSuppliers(ctx context.Context) ([]fifo.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at FROM suppliers ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var suppliers []fifo.Supplier
	for rows.Next() {
		var sup fifo.Supplier
		var created string
		if err := rows.Scan(&sup.ID, &sup.Name, &created); err != nil {
			return nil, err
		}
		sup.CreatedAt, _ = time.Parse(time.RFC3339, created)
		suppliers = append(suppliers, sup)
	}
	return suppliers, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"allocations", "consumption_records", "purchase_lots", "vessels", "suppliers"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
