/*
normalize.go - Record Normalizer

PURPOSE:
  Converts the raw shapes held by the document store into canonical
  generic.FinancialEvents. This is the only place that knows about the two
  date representations and the string-or-number amounts.

RULES:
  Dates:    timestamp or ISO text, decided once by RawDate.Resolve.
            Unparseable -> record rejected (RejectedRecordError).
  Amounts:  missing / non-numeric / negative -> 0. Never a rejection.
  Day off:  zero income whatever the raw sales value says.
  Labels:   "Daily log", "Day off" or "Service" when nothing better exists.

Amortization is NOT filtered here. The service entry's explicit flag is
carried on its expense line; the Aggregator decides what to include.

DUPLICATES:
  NormalizeAll keeps one daily log per (vehicle, date), the last one read.
*/
package fleet

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/fleet-engine/generic"
)

const (
	DefaultDailyDescription   = "Daily log"
	DefaultDayOffDescription  = "Day off"
	DefaultServiceDescription = "Service"
)

// Normalizer converts raw records to FinancialEvents. Location is the
// calendar used to read epoch timestamps.
type Normalizer struct {
	Location *time.Location
	Logger   zerolog.Logger
}

func NewNormalizer(loc *time.Location, logger zerolog.Logger) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{Location: loc, Logger: logger.With().Str("component", "normalizer").Logger()}
}

// NormalizeStats counts what happened to a batch.
type NormalizeStats struct {
	Daily        int `json:"daily"`
	Service      int `json:"service"`
	Dropped      int `json:"dropped"`
	Deduplicated int `json:"deduplicated"`
}

// NormalizeDaily converts a daily finance record.
func (n *Normalizer) NormalizeDaily(r DailyFinanceRecord) (generic.FinancialEvent, error) {
	d, err := r.Date.Resolve(n.Location)
	if err != nil {
		return generic.FinancialEvent{}, &generic.RejectedRecordError{
			RecordID: r.ID, Kind: generic.KindDailyLog, Reason: err.Error(), Err: err,
		}
	}

	e := generic.FinancialEvent{
		ID:          r.ID,
		Date:        d,
		EntityID:    generic.EntityID(r.VehicleID),
		Kind:        generic.KindDailyLog,
		Income:      r.Sales.Decimal(),
		IsDayOff:    r.IsDayOff,
		Description: DefaultDailyDescription,
	}
	if r.IsDayOff {
		e.Income = decimal.Zero
		e.Description = DefaultDayOffDescription
	}

	for _, item := range r.Expenses {
		e.ExpenseLines = append(e.ExpenseLines, generic.ExpenseLine{
			Category: strings.TrimSpace(item.Category),
			Amount:   item.Amount.Decimal(),
		})
	}
	return e, nil
}

// NormalizeService converts a service history record. Its cost becomes the
// event's single expense line.
func (n *Normalizer) NormalizeService(r ServiceRecord) (generic.FinancialEvent, error) {
	d, err := r.Date.Resolve(n.Location)
	if err != nil {
		return generic.FinancialEvent{}, &generic.RejectedRecordError{
			RecordID: r.ID, Kind: generic.KindServiceEntry, Reason: err.Error(), Err: err,
		}
	}

	description := strings.TrimSpace(r.Description)
	if description == "" {
		description = DefaultServiceDescription
	}

	return generic.FinancialEvent{
		ID:       r.ID,
		Date:     d,
		EntityID: generic.EntityID(r.VehicleID),
		Kind:     generic.KindServiceEntry,
		Income:   decimal.Zero,
		ExpenseLines: []generic.ExpenseLine{{
			Category:     description,
			Amount:       r.Cost.Decimal(),
			Amortization: r.IsAmortization,
		}},
		Description: description,
	}, nil
}

// NormalizeAll converts a batch. Rejected records are logged and counted,
// never returned as errors.
func (n *Normalizer) NormalizeAll(daily []DailyFinanceRecord, service []ServiceRecord) ([]generic.FinancialEvent, NormalizeStats) {
	var stats NormalizeStats
	events := make([]generic.FinancialEvent, 0, len(daily)+len(service))

	for _, r := range daily {
		e, err := n.NormalizeDaily(r)
		if err != nil {
			n.reject(err)
			stats.Dropped++
			continue
		}
		events = append(events, e)
	}

	before := len(events)
	events = generic.DedupDailyLogs(events)
	stats.Deduplicated = before - len(events)
	stats.Daily = len(events)

	for _, r := range service {
		e, err := n.NormalizeService(r)
		if err != nil {
			n.reject(err)
			stats.Dropped++
			continue
		}
		events = append(events, e)
		stats.Service++
	}

	return events, stats
}

func (n *Normalizer) reject(err error) {
	var rejected *generic.RejectedRecordError
	if errors.As(err, &rejected) {
		n.Logger.Debug().
			Str("record_id", rejected.RecordID).
			Str("kind", string(rejected.Kind)).
			Str("reason", rejected.Reason).
			Msg("record dropped")
		return
	}
	n.Logger.Debug().Err(err).Msg("record dropped")
}
