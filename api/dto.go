/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts are decimal strings ("1500.75"). The engine applies no rounding
  and neither does the API; formatting belongs to the client.

ORDERING:
  Groups are sorted (months chronologically, labels alphabetically, the
  "Unknown" group last). Gap entries are sorted by vehicle id. Drill-down
  events are newest first.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/snapshot.go: Import document schema
*/
package api

import (
	"github.com/shopspring/decimal"
	"github.com/warp/fleet-engine/factory"
	"github.com/warp/fleet-engine/fleet"
	"github.com/warp/fleet-engine/generic"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

// TotalsDTO is income, expenses and their difference.
type TotalsDTO struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Net      decimal.Decimal `json:"net"`
}

// GroupDTO is one bucket of a report.
type GroupDTO struct {
	Key        string          `json:"key"`
	Income     decimal.Decimal `json:"income"`
	Expenses   decimal.Decimal `json:"expenses"`
	Net        decimal.Decimal `json:"net"`
	EventCount int             `json:"event_count"`
}

// GapDTO lists one vehicle's missing log days.
type GapDTO struct {
	VehicleID   string `json:"vehicle_id"`
	Label       string `json:"label"`
	MissingDays []int  `json:"missing_days"`
}

// ReportDTO is the response for one filter combination.
type ReportDTO struct {
	Mode                string     `json:"mode"`
	Label               string     `json:"label"`
	Start               string     `json:"start"`
	End                 string     `json:"end"`
	Vehicle             string     `json:"vehicle"`
	IncludeAmortization bool       `json:"include_amortization"`
	Today               string     `json:"today"`
	Totals              TotalsDTO  `json:"totals"`
	Groups              []GroupDTO `json:"groups"`
	Gaps                []GapDTO   `json:"gaps"`
	EventCount          int        `json:"event_count"`
}

// ExpenseLineDTO is one line of an event.
type ExpenseLineDTO struct {
	Category       string          `json:"category"`
	Amount         decimal.Decimal `json:"amount"`
	IsAmortization bool            `json:"is_amortization"`
}

// EventDTO is one event in a drill-down group.
type EventDTO struct {
	ID             string           `json:"id"`
	Date           string           `json:"date"`
	VehicleID      string           `json:"vehicle_id"`
	VehicleLabel   string           `json:"vehicle_label"`
	Kind           string           `json:"kind"`
	Description    string           `json:"description"`
	Income         decimal.Decimal  `json:"income"`
	Expenses       decimal.Decimal  `json:"expenses"`
	IsDayOff       bool             `json:"is_day_off"`
	IsAmortization bool             `json:"is_amortization"`
	Lines          []ExpenseLineDTO `json:"lines"`
}

// GroupDetailDTO is a group's totals plus the events behind them.
type GroupDetailDTO struct {
	Key    string     `json:"key"`
	Period string     `json:"period"`
	Totals TotalsDTO  `json:"totals"`
	Events []EventDTO `json:"events"`
}

// GapsResponse is the response of the gaps endpoint.
type GapsResponse struct {
	Label          string   `json:"label"`
	Today          string   `json:"today"`
	LastDayChecked int      `json:"last_day_checked"`
	Gaps           []GapDTO `json:"gaps"`
}

// DashboardDTO shows the month, its quarter and its year side by side.
type DashboardDTO struct {
	Month   ReportDTO `json:"month"`
	Quarter ReportDTO `json:"quarter"`
	Year    ReportDTO `json:"year"`
}

// =============================================================================
// DIRECTORY TYPES
// =============================================================================

// VehicleDTO represents a vehicle in API responses.
type VehicleDTO struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Plate string `json:"plate,omitempty"`
}

// YearsDTO is the year selector's content.
type YearsDTO struct {
	Current int   `json:"current"`
	Years   []int `json:"years"`
}

// =============================================================================
// IMPORT / SCENARIO TYPES
// =============================================================================

// ImportResponse reports what an import wrote and how it normalized.
type ImportResponse struct {
	Imported   factory.SnapshotSummary `json:"imported"`
	Normalized fleet.NormalizeStats    `json:"normalized"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toTotalsDTO(t generic.Totals) TotalsDTO {
	return TotalsDTO{Income: t.Income, Expenses: t.Expenses, Net: t.Net()}
}

func toReportDTO(q reportQuery, rep generic.Report, dir generic.EntityDirectory) ReportDTO {
	agg := rep.Aggregate
	dto := ReportDTO{
		Mode:                string(rep.Period.Mode),
		Label:               rep.Period.Label(),
		Start:               rep.Period.Period.Start.String(),
		End:                 rep.Period.Period.End.String(),
		Vehicle:             string(q.Vehicle),
		IncludeAmortization: q.Amortization,
		Today:               q.Today.String(),
		Totals:              toTotalsDTO(agg.Totals),
		Groups:              []GroupDTO{},
		Gaps:                toGapDTOs(rep.Gaps, dir),
		EventCount:          agg.EventCount,
	}

	for _, key := range agg.Groups.SortedKeys() {
		t, _ := agg.Groups.Get(key)
		dto.Groups = append(dto.Groups, GroupDTO{
			Key:        key,
			Income:     t.Income,
			Expenses:   t.Expenses,
			Net:        t.Net(),
			EventCount: agg.EventsByGroup.Len(key),
		})
	}
	return dto
}

func toGapDTOs(gaps generic.GapReport, dir generic.EntityDirectory) []GapDTO {
	dtos := []GapDTO{}
	for _, id := range gaps.Entities() {
		dtos = append(dtos, GapDTO{
			VehicleID:   string(id),
			Label:       dir.Label(id),
			MissingDays: gaps[id],
		})
	}
	return dtos
}

func toEventDTO(e generic.FinancialEvent, dir generic.EntityDirectory, includeAmortization bool) EventDTO {
	dto := EventDTO{
		ID:             e.ID,
		Date:           e.Date.String(),
		VehicleID:      string(e.EntityID),
		VehicleLabel:   dir.Label(e.EntityID),
		Kind:           string(e.Kind),
		Description:    e.Description,
		Income:         e.Income,
		Expenses:       e.Expenses(includeAmortization),
		IsDayOff:       e.IsDayOff,
		IsAmortization: e.HasAmortization(),
		Lines:          make([]ExpenseLineDTO, len(e.ExpenseLines)),
	}
	for i, line := range e.ExpenseLines {
		dto.Lines[i] = ExpenseLineDTO{
			Category:       line.Category,
			Amount:         line.Amount,
			IsAmortization: line.IsAmortization(),
		}
	}
	return dto
}

func toVehicleDTO(v fleet.Vehicle) VehicleDTO {
	return VehicleDTO{ID: v.ID, Label: v.DisplayLabel(), Plate: v.Plate}
}
