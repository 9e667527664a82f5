/*
Package generic provides the period aggregation and gap-detection engine.

PURPOSE:
  This package contains the storage-agnostic types and algorithms that turn
  a stream of dated financial events into reporting-period totals, drill-down
  groups and per-entity "missing log day" reports. It performs no I/O and
  keeps no state between calls: the same inputs always produce the same
  outputs.

KEY CONCEPTS IN THIS FILE (types.go):
  - FinancialEvent: canonical, immutable record of one daily log or service entry
  - ExpenseLine: one categorized cost inside an event
  - EntityID / EntityDirectory: tracked units and their display labels

DESIGN PRINCIPLES:
  1. Precision: all money is decimal.Decimal, never float64
  2. Determinism: "now" is always a parameter, never read from a clock
  3. Graceful degradation: bad records are excluded upstream, never summed
  4. No rounding: formatting is the presentation layer's job

USAGE:
  period, _ := generic.Resolve(generic.Selection{Mode: generic.ModeMonth, Year: 2025, Month: time.March})
  result := generic.NewAggregator(directory).Aggregate(events, period, false, generic.AllEntities)
  fmt.Println(result.Totals.Net())

SEE ALSO:
  - period.go: Period Resolver
  - aggregate.go: totals and groups
  - gaps.go: missing-day detection
  - drilldown.go: per-group event index
  - engine.go: single entry point combining the above
*/
package generic

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// EntityID identifies a tracked unit (a vehicle).
type EntityID string

// AllEntities is the entity filter that lets every entity through.
const AllEntities EntityID = "all"

// UnknownLabel is the group label used for entities missing from the directory.
const UnknownLabel = "Unknown"

// Matches reports whether id passes this filter.
func (f EntityID) Matches(id EntityID) bool {
	return f == AllEntities || f == "" || f == id
}

// EntityDirectory maps entity ids to display labels. It is supplied
// wholesale by the caller; there is no on-demand lookup.
type EntityDirectory map[EntityID]string

// Label returns the display label for id, or UnknownLabel.
func (d EntityDirectory) Label(id EntityID) string {
	if label, ok := d[id]; ok && label != "" {
		return label
	}
	return UnknownLabel
}

// =============================================================================
// FINANCIAL EVENT - Canonical record consumed by every engine component
// =============================================================================

type EventKind string

const (
	KindDailyLog     EventKind = "daily_log"
	KindServiceEntry EventKind = "service_entry"
)

// ExpenseLine is one cost inside an event. Amortization is the explicit
// source flag; the category text is checked as well (see IsAmortization).
type ExpenseLine struct {
	Category     string
	Amount       decimal.Decimal
	Amortization bool
}

// IsAmortization reports whether the line is an amortization cost.
func (l ExpenseLine) IsAmortization() bool {
	return l.Amortization || IsAmortizationText(l.Category)
}

// IsAmortizationText reports whether text mentions amortization, ignoring case.
func IsAmortizationText(text string) bool {
	return strings.Contains(strings.ToLower(text), "amortization")
}

// FinancialEvent is the canonical form of a daily log or a service entry.
// Values are immutable once built: the engine never modifies an event it
// was given.
type FinancialEvent struct {
	ID           string
	Date         TimePoint
	EntityID     EntityID
	Kind         EventKind
	Income       decimal.Decimal // zero for service entries and days off
	ExpenseLines []ExpenseLine   // a service entry carries exactly one line: its cost
	IsDayOff     bool
	Description  string
}

// Expenses sums the event's expense lines, leaving out amortization lines
// unless includeAmortization is set.
func (e FinancialEvent) Expenses(includeAmortization bool) decimal.Decimal {
	total := decimal.Zero
	for _, line := range e.ExpenseLines {
		if !includeAmortization && line.IsAmortization() {
			continue
		}
		total = total.Add(line.Amount)
	}
	return total
}

// HasAmortization reports whether any expense line is amortization.
func (e FinancialEvent) HasAmortization() bool {
	for _, line := range e.ExpenseLines {
		if line.IsAmortization() {
			return true
		}
	}
	return false
}

// =============================================================================
// TOTALS
// =============================================================================

// Totals holds income and expenses for a scope. Net is derived; no rounding
// is applied.
type Totals struct {
	Income   decimal.Decimal
	Expenses decimal.Decimal
}

func (t Totals) Net() decimal.Decimal { return t.Income.Sub(t.Expenses) }

func (t Totals) add(income, expenses decimal.Decimal) Totals {
	return Totals{Income: t.Income.Add(income), Expenses: t.Expenses.Add(expenses)}
}
