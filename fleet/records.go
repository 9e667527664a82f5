// Package fleet implements the fleet-operations domain on top of the generic
// engine: the raw record shapes held by the document store, the Record
// Normalizer that turns them into generic.FinancialEvents, and the loader
// that fetches a full dataset from a RecordSource.
package fleet

import (
	"context"
	"encoding/json"

	"github.com/oklog/ulid/v2"
)

// =============================================================================
// RAW RECORDS - As stored by the hosted document database
// =============================================================================

// Vehicle is one tracked unit and its display label.
type Vehicle struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Plate string `json:"plate,omitempty"`
}

// DisplayLabel is the label, else the plate, else the id.
func (v Vehicle) DisplayLabel() string {
	return firstNonEmpty(v.Label, v.Plate, v.ID)
}

// ExpenseItem is one expense inside a daily finance record.
type ExpenseItem struct {
	Category string    `json:"category"`
	Amount   RawAmount `json:"amount"`
}

// UnmarshalJSON also accepts "type" or "name" for the category, which older
// mobile builds wrote.
func (e *ExpenseItem) UnmarshalJSON(b []byte) error {
	var aux struct {
		Category string    `json:"category"`
		Type     string    `json:"type"`
		Name     string    `json:"name"`
		Amount   RawAmount `json:"amount"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	e.Category = firstNonEmpty(aux.Category, aux.Type, aux.Name)
	e.Amount = aux.Amount
	return nil
}

// DailyFinanceRecord is a driver's end-of-day log: sales, expenses, or a
// day off.
type DailyFinanceRecord struct {
	ID        string        `json:"id"`
	VehicleID string        `json:"vehicleId"`
	Sales     RawAmount     `json:"sales"`
	Expenses  []ExpenseItem `json:"expenses"`
	Date      RawDate       `json:"date"`
	IsDayOff  bool          `json:"isDayOff"`
}

// ServiceRecord is one entry of a vehicle's service history (repairs,
// maintenance, amortization payments).
type ServiceRecord struct {
	ID             string    `json:"id"`
	VehicleID      string    `json:"vehicleId,omitempty"`
	Date           RawDate   `json:"date"`
	Description    string    `json:"description"`
	Cost           RawAmount `json:"cost"`
	IsAmortization bool      `json:"isAmortization"`
}

// Snapshot is a full export of the records the engine consumes. Service
// history is nested per vehicle, as in the document store.
type Snapshot struct {
	Vehicles       []Vehicle                  `json:"vehicles"`
	DailyFinance   []DailyFinanceRecord       `json:"daily_finance"`
	ServiceHistory map[string][]ServiceRecord `json:"service_history"`
}

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// RecordSource is the read-only data-fetch collaborator.
type RecordSource interface {
	// Vehicles returns every tracked vehicle.
	Vehicles(ctx context.Context) ([]Vehicle, error)

	// DailyRecords returns every daily finance record, in storage order.
	DailyRecords(ctx context.Context) ([]DailyFinanceRecord, error)

	// ServiceRecords returns one vehicle's service history.
	ServiceRecords(ctx context.Context, vehicleID string) ([]ServiceRecord, error)

	// ServiceVehicleIDs returns every vehicle id that has service history,
	// including ids the vehicle directory does not list.
	ServiceVehicleIDs(ctx context.Context) ([]string, error)
}

// RecordSink writes records. The engine never uses it; imports and demo
// scenarios do.
type RecordSink interface {
	SaveVehicle(ctx context.Context, v Vehicle) error
	SaveDailyRecord(ctx context.Context, r DailyFinanceRecord) error
	SaveServiceRecord(ctx context.Context, r ServiceRecord) error
	Reset(ctx context.Context) error
}

// Store is a RecordSource that can also be written to.
type Store interface {
	RecordSource
	RecordSink
}

// WriteSnapshot writes every record in snap through sink. Service records
// inherit the vehicle id of the collection they are nested under.
func WriteSnapshot(ctx context.Context, sink RecordSink, snap Snapshot) error {
	for _, v := range snap.Vehicles {
		if err := sink.SaveVehicle(ctx, v); err != nil {
			return err
		}
	}
	for _, r := range snap.DailyFinance {
		if err := sink.SaveDailyRecord(ctx, r); err != nil {
			return err
		}
	}
	for vehicleID, records := range snap.ServiceHistory {
		for _, r := range records {
			r.VehicleID = vehicleID
			if err := sink.SaveServiceRecord(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// NewRecordID returns a lexically sortable id for records imported without one.
func NewRecordID() string {
	return ulid.Make().String()
}
