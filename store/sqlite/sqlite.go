/*
Package sqlite provides a SQLite-backed fleet.Store.

PURPOSE:
  Persists the raw records the engine consumes (vehicles, daily finance
  logs, per-vehicle service history) so the server can run without the
  hosted document database.

LOSSLESS STORAGE:
  Records are stored in their raw shape, not normalized:
  - dates keep their kind (timestamp or text) plus seconds/nanos or text
  - amounts keep their source text
  so an unparseable date survives a round trip and is rejected by the
  Normalizer exactly as it would be from the document store.

ORDERING:
  Every table has an autoincrement seq column. Reads return rows in seq
  order; saving an existing id updates the row in place and keeps its seq,
  which preserves the "last record wins, first position kept" behaviour of
  daily-log deduplication.

MIGRATION:
  Schema lives in migrations/*.sql, embedded and applied with
  golang-migrate on New().

USAGE:
  st, err := sqlite.New("./data/fleet.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  ds, err := fleet.Load(ctx, st, normalizer)

SEE ALSO:
  - fleet/records.go: RecordSource / RecordSink interfaces
  - fleet/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/fleet-engine/fleet"
)

// Store implements fleet.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ fleet.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath and migrates it.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// RECORD SINK
// =============================================================================

func (s *Store) SaveVehicle(ctx context.Context, v fleet.Vehicle) error {
	if v.ID == "" {
		return fmt.Errorf("save vehicle: id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vehicles (id, label, plate) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET label = excluded.label, plate = excluded.plate
	`, v.ID, v.Label, v.Plate)
	if err != nil {
		return fmt.Errorf("failed to save vehicle: %w", err)
	}
	return nil
}

// SaveDailyRecord upserts r by id. A record without an id gets a fresh one.
func (s *Store) SaveDailyRecord(ctx context.Context, r fleet.DailyFinanceRecord) error {
	if r.ID == "" {
		r.ID = fleet.NewRecordID()
	}
	expenses := r.Expenses
	if expenses == nil {
		expenses = []fleet.ExpenseItem{}
	}
	expensesJSON, err := json.Marshal(expenses)
	if err != nil {
		return fmt.Errorf("failed to encode expenses: %w", err)
	}
	date := encodeDate(r.Date)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_finance
		(id, vehicle_id, sales, expenses_json, date_kind, date_seconds, date_nanos, date_text, is_day_off)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vehicle_id = excluded.vehicle_id,
			sales = excluded.sales,
			expenses_json = excluded.expenses_json,
			date_kind = excluded.date_kind,
			date_seconds = excluded.date_seconds,
			date_nanos = excluded.date_nanos,
			date_text = excluded.date_text,
			is_day_off = excluded.is_day_off
	`, r.ID, r.VehicleID, r.Sales.Raw(), string(expensesJSON),
		date.kind, date.seconds, date.nanos, date.text, r.IsDayOff)
	if err != nil {
		return fmt.Errorf("failed to save daily record: %w", err)
	}
	return nil
}

// SaveServiceRecord upserts r by id. A record without an id gets a fresh one.
func (s *Store) SaveServiceRecord(ctx context.Context, r fleet.ServiceRecord) error {
	if r.ID == "" {
		r.ID = fleet.NewRecordID()
	}
	date := encodeDate(r.Date)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO service_history
		(id, vehicle_id, description, cost, date_kind, date_seconds, date_nanos, date_text, is_amortization)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vehicle_id = excluded.vehicle_id,
			description = excluded.description,
			cost = excluded.cost,
			date_kind = excluded.date_kind,
			date_seconds = excluded.date_seconds,
			date_nanos = excluded.date_nanos,
			date_text = excluded.date_text,
			is_amortization = excluded.is_amortization
	`, r.ID, r.VehicleID, r.Description, r.Cost.Raw(),
		date.kind, date.seconds, date.nanos, date.text, r.IsAmortization)
	if err != nil {
		return fmt.Errorf("failed to save service record: %w", err)
	}
	return nil
}

// Reset clears all data (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"daily_finance", "service_history", "vehicles"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// RECORD SOURCE
// =============================================================================

func (s *Store) Vehicles(ctx context.Context) ([]fleet.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, label, plate FROM vehicles ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []fleet.Vehicle
	for rows.Next() {
		var v fleet.Vehicle
		if err := rows.Scan(&v.ID, &v.Label, &v.Plate); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

func (s *Store) DailyRecords(ctx context.Context) ([]fleet.DailyFinanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vehicle_id, sales, expenses_json, date_kind, date_seconds, date_nanos, date_text, is_day_off
		FROM daily_finance
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily records: %w", err)
	}
	defer rows.Close()

	var records []fleet.DailyFinanceRecord
	for rows.Next() {
		var (
			r            fleet.DailyFinanceRecord
			sales        string
			expensesJSON string
			date         storedDate
		)
		if err := rows.Scan(&r.ID, &r.VehicleID, &sales, &expensesJSON,
			&date.kind, &date.seconds, &date.nanos, &date.text, &r.IsDayOff); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(expensesJSON), &r.Expenses); err != nil {
			return nil, fmt.Errorf("failed to decode expenses of %s: %w", r.ID, err)
		}
		r.Sales = fleet.AmountText(sales)
		r.Date = date.decode()
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) ServiceRecords(ctx context.Context, vehicleID string) ([]fleet.ServiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vehicle_id, description, cost, date_kind, date_seconds, date_nanos, date_text, is_amortization
		FROM service_history
		WHERE vehicle_id = ?
		ORDER BY seq
	`, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query service history: %w", err)
	}
	defer rows.Close()

	var records []fleet.ServiceRecord
	for rows.Next() {
		var (
			r    fleet.ServiceRecord
			cost string
			date storedDate
		)
		if err := rows.Scan(&r.ID, &r.VehicleID, &r.Description, &cost,
			&date.kind, &date.seconds, &date.nanos, &date.text, &r.IsAmortization); err != nil {
			return nil, err
		}
		r.Cost = fleet.AmountText(cost)
		r.Date = date.decode()
		records = append(records, r)
	}
	return records, rows.Err()
}

// ServiceVehicleIDs lists every vehicle id with service history, whether or
// not the vehicle is registered.
func (s *Store) ServiceVehicleIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT vehicle_id FROM service_history ORDER BY vehicle_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query service history owners: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

const (
	dateKindTimestamp = "timestamp"
	dateKindText      = "text"
)

// storedDate is the column form of fleet.RawDate.
type storedDate struct {
	kind    string
	seconds int64
	nanos   int64
	text    string
}

func encodeDate(d fleet.RawDate) storedDate {
	switch {
	case d.IsTimestamp():
		return storedDate{kind: dateKindTimestamp, seconds: d.Seconds(), nanos: d.Nanos()}
	case d.IsText():
		return storedDate{kind: dateKindText, text: d.Text()}
	}
	return storedDate{}
}

func (d storedDate) decode() fleet.RawDate {
	switch d.kind {
	case dateKindTimestamp:
		return fleet.TimestampDate(d.seconds, d.nanos)
	case dateKindText:
		return fleet.TextDate(d.text)
	}
	return fleet.RawDate{}
}
