/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	fleet data for demos. Dates are relative to the server's "today" so
	every scenario has something to show in the current month.

AVAILABLE SCENARIOS:

	single-truck:  One vehicle, one sales day and one day off; shows gaps
	mixed-fleet:   Three vehicles over two months with service history,
	               amortization payments and days off
	messy-import:  A raw document-store export with every data-quality
	               problem the normalizer tolerates

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Build a fleet.Snapshot (directly or through the snapshot factory)
 3. Write it through the RecordSink
 4. Clear the report cache

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "mixed-fleet"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Report endpoints that read the loaded data
  - factory/snapshot.go: Snapshot JSON schema
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/fleet-engine/fleet"
	"github.com/warp/fleet-engine/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "single-truck",
		Name:        "Single Truck",
		Description: "One sales day and one day off this month; every other day so far is a gap",
	},
	{
		ID:          "mixed-fleet",
		Name:        "Mixed Fleet",
		Description: "Three vehicles over two months with repairs, amortization payments and days off",
	},
	{
		ID:          "messy-import",
		Name:        "Messy Import",
		Description: "Raw export with mixed date shapes, text amounts, duplicates and an unreadable date",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.scenario()
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	build, ok := scenarioBuilders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID, build); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	defer h.invalidate()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.setScenario("")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) loadScenario(ctx context.Context, id string, build scenarioBuilder) error {
	defer h.invalidate()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.setScenario("")

	snap, err := build(h, h.today())
	if err != nil {
		return err
	}
	if err := fleet.WriteSnapshot(ctx, h.Store, snap); err != nil {
		return err
	}

	h.setScenario(id)
	h.log(ctx).Info().Str("scenario", id).Msg("scenario loaded")
	return nil
}

// =============================================================================
// SCENARIO BUILDERS
// =============================================================================

type scenarioBuilder func(h *Handler, today generic.TimePoint) (fleet.Snapshot, error)

var scenarioBuilders = map[string]scenarioBuilder{
	"single-truck": buildSingleTruck,
	"mixed-fleet":  buildMixedFleet,
	"messy-import": buildMessyImport,
}

// buildSingleTruck: sales on the 1st, a day off on the 3rd.
func buildSingleTruck(_ *Handler, today generic.TimePoint) (fleet.Snapshot, error) {
	first := generic.StartOfMonth(today.Year(), today.Month())

	return fleet.Snapshot{
		Vehicles: []fleet.Vehicle{{ID: "V1", Label: "Truck 1"}},
		DailyFinance: []fleet.DailyFinanceRecord{
			{ID: "v1-day-01", VehicleID: "V1", Sales: fleet.AmountText("1000"), Date: isoDate(first)},
			{ID: "v1-day-03", VehicleID: "V1", Date: isoDate(first.AddDays(2)), IsDayOff: true},
		},
	}, nil
}

// buildMixedFleet fills last month and this month up to yesterday. Each
// vehicle has its own rhythm of sales, days off and missed logs.
func buildMixedFleet(_ *Handler, today generic.TimePoint) (fleet.Snapshot, error) {
	type profile struct {
		vehicle fleet.Vehicle
		sales   int // base daily sales
		fuel    int
		dayOff  time.Weekday
		skip    int // every skip-th day is not logged
	}
	profiles := []profile{
		{fleet.Vehicle{ID: "V1", Label: "Truck 1", Plate: "FL-101"}, 1200, 180, time.Sunday, 11},
		{fleet.Vehicle{ID: "V2", Label: "Truck 2", Plate: "FL-202"}, 950, 140, time.Saturday, 7},
		{fleet.Vehicle{ID: "V3", Plate: "FL-303"}, 700, 90, time.Sunday, 5},
	}

	start := generic.StartOfMonth(today.Year(), today.Month()).AddMonths(-1)
	snap := fleet.Snapshot{ServiceHistory: map[string][]fleet.ServiceRecord{}}

	for _, p := range profiles {
		snap.Vehicles = append(snap.Vehicles, p.vehicle)

		n := 0
		for d := start; d.Before(today); d = d.AddDays(1) {
			n++
			if n%p.skip == 0 {
				continue
			}
			id := fmt.Sprintf("%s-%s", strings.ToLower(p.vehicle.ID), d)
			if d.Time.Weekday() == p.dayOff {
				snap.DailyFinance = append(snap.DailyFinance, fleet.DailyFinanceRecord{
					ID: id, VehicleID: p.vehicle.ID, Date: isoDate(d), IsDayOff: true,
				})
				continue
			}
			// Alternate the two date shapes the document store holds.
			date := isoDate(d)
			if n%2 == 0 {
				date = timestampDate(d)
			}
			snap.DailyFinance = append(snap.DailyFinance, fleet.DailyFinanceRecord{
				ID:        id,
				VehicleID: p.vehicle.ID,
				Sales:     fleet.AmountOf(decimal.NewFromInt(int64(p.sales + (n%4)*50))),
				Expenses: []fleet.ExpenseItem{
					{Category: "fuel", Amount: fleet.AmountOf(decimal.NewFromInt(int64(p.fuel)))},
					{Category: "tolls", Amount: fleet.AmountText("12.50")},
				},
				Date: date,
			})
		}

		snap.ServiceHistory[p.vehicle.ID] = []fleet.ServiceRecord{
			{
				ID:             strings.ToLower(p.vehicle.ID) + "-amortization-1",
				Date:           timestampDate(start.AddDays(4)),
				Description:    "Monthly amortization payment",
				Cost:           fleet.AmountText("1500"),
				IsAmortization: true,
			},
			{
				ID:          strings.ToLower(p.vehicle.ID) + "-oil",
				Date:        isoDate(start.AddDays(9)),
				Description: "Oil change",
				Cost:        fleet.AmountText("85"),
			},
			{
				ID:          strings.ToLower(p.vehicle.ID) + "-tyres",
				Date:        isoDate(start.AddDays(9)),
				Description: "Front tyres",
				Cost:        fleet.AmountText("420"),
			},
		}
	}

	return snap, nil
}

// buildMessyImport routes a raw export through the snapshot factory.
func buildMessyImport(h *Handler, today generic.TimePoint) (fleet.Snapshot, error) {
	first := generic.StartOfMonth(today.Year(), today.Month())
	prev := first.AddMonths(-1)

	doc := fmt.Sprintf(`{
		"vehicles": {
			"V1": {"label": "Truck 1"},
			"V2": {"plate": "XY-900"}
		},
		"daily_finance": [
			{"id": "a", "vehicleId": "V1", "sales": "1.250,00", "date": "%[1]s"},
			{"id": "b", "vehicleId": "V1", "sales": "980", "expenses": [{"type": "fuel", "amount": "120,5"}], "date": {"_seconds": %[2]d, "_nanoseconds": 0}},
			{"id": "c", "vehicleId": "V1", "sales": 1100, "date": "%[3]s"},
			{"id": "c-resubmit", "vehicleId": "V1", "sales": 1150, "date": "%[3]s"},
			{"id": "d", "vehicleId": "V2", "sales": "n/a", "expenses": [{"name": "parking", "amount": 8}], "date": "%[4]sT08:30:00Z"},
			{"id": "e", "vehicleId": "V2", "sales": 640, "date": "not-a-date"},
			{"id": "f", "vehicleId": "V9", "sales": 300, "date": "%[1]s"},
			{"id": "g", "vehicleId": "V2", "isDayOff": true, "sales": 999, "date": "%[5]s"}
		],
		"service_history": {
			"V1": [
				{"date": {"seconds": %[6]d, "nanoseconds": 0}, "description": "AMORTIZATION installment", "cost": "1500"},
				{"date": "%[7]s", "description": "", "cost": -40}
			],
			"V2": [
				{"date": "%[7]s", "description": "Brake pads", "cost": "210.00"}
			]
		}
	}`,
		prev.AddDays(1),
		noonUnix(prev.AddDays(2)),
		prev.AddDays(3),
		prev.AddDays(4),
		prev.AddDays(5),
		noonUnix(prev.AddDays(6)),
		prev.AddDays(7),
	)

	return h.Factory.ParseSnapshot(doc)
}

func isoDate(d generic.TimePoint) fleet.RawDate {
	return fleet.TextDate(d.String())
}

func timestampDate(d generic.TimePoint) fleet.RawDate {
	return fleet.TimestampDate(noonUnix(d), 0)
}

// noonUnix is midday UTC on d, which falls on d in every UTC-11..UTC+11 zone.
func noonUnix(d generic.TimePoint) int64 {
	return time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, time.UTC).Unix()
}
