package generic

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// PERIOD - Inclusive calendar-date interval
// =============================================================================

// Period is the inclusive interval [Start, End] an aggregation run covers.
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// REPORTING MODE
// =============================================================================

// Mode is the reporting view: one month, one quarter, or one year.
type Mode string

const (
	ModeMonth   Mode = "month"
	ModeQuarter Mode = "quarter"
	ModeYear    Mode = "year"
)

// ParseMode maps user input to a Mode. Unknown values are a contract
// violation by the caller.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeMonth:
		return ModeMonth, nil
	case ModeQuarter:
		return ModeQuarter, nil
	case ModeYear:
		return ModeYear, nil
	}
	return "", &SelectionError{Field: "mode", Value: s, Err: ErrUnsupportedMode}
}

// GroupAxis is what a report's groups are keyed by.
type GroupAxis string

const (
	// AxisEntity groups by the vehicle's display label (month view).
	AxisEntity GroupAxis = "entity"
	// AxisMonth groups by month name within the period (quarter and year views).
	AxisMonth GroupAxis = "month"
)

// =============================================================================
// PERIOD RESOLVER
// =============================================================================

// Selection is the caller's pick of mode and reference year/month/quarter.
// Month is used by ModeMonth, Quarter (1-4) by ModeQuarter.
type Selection struct {
	Mode    Mode
	Year    int
	Month   time.Month
	Quarter int
}

// ReportingPeriod is the resolved, immutable description of one aggregation
// run: its mode, absolute interval and grouping axis.
type ReportingPeriod struct {
	Mode   Mode
	Year   int
	Month  time.Month // ModeMonth only
	Period Period
	Axis   GroupAxis
}

// Resolve turns a selection into a ReportingPeriod.
//
// The resolver accepts any positive year. Restricting the choice to a short
// list of upcoming years is a presentation concern.
func Resolve(sel Selection) (ReportingPeriod, error) {
	if sel.Year < 1 {
		return ReportingPeriod{}, &SelectionError{Field: "year", Value: fmt.Sprint(sel.Year), Err: ErrInvalidSelection}
	}

	switch sel.Mode {
	case ModeMonth:
		if sel.Month < time.January || sel.Month > time.December {
			return ReportingPeriod{}, &SelectionError{Field: "month", Value: fmt.Sprint(int(sel.Month)), Err: ErrInvalidSelection}
		}
		return ReportingPeriod{
			Mode:   ModeMonth,
			Year:   sel.Year,
			Month:  sel.Month,
			Period: Period{Start: StartOfMonth(sel.Year, sel.Month), End: EndOfMonth(sel.Year, sel.Month)},
			Axis:   AxisEntity,
		}, nil

	case ModeQuarter:
		if sel.Quarter < 1 || sel.Quarter > 4 {
			return ReportingPeriod{}, &SelectionError{Field: "quarter", Value: fmt.Sprint(sel.Quarter), Err: ErrInvalidSelection}
		}
		first := time.Month((sel.Quarter-1)*3 + 1)
		return ReportingPeriod{
			Mode:   ModeQuarter,
			Year:   sel.Year,
			Period: Period{Start: StartOfMonth(sel.Year, first), End: EndOfMonth(sel.Year, first+2)},
			Axis:   AxisMonth,
		}, nil

	case ModeYear:
		return ReportingPeriod{
			Mode:   ModeYear,
			Year:   sel.Year,
			Period: Period{Start: StartOfYear(sel.Year), End: EndOfYear(sel.Year)},
			Axis:   AxisMonth,
		}, nil
	}

	return ReportingPeriod{}, &SelectionError{Field: "mode", Value: string(sel.Mode), Err: ErrUnsupportedMode}
}

// QuarterOf returns the 1-based quarter a month falls in.
func QuarterOf(m time.Month) int { return (int(m)-1)/3 + 1 }

// Contains reports whether the event date falls inside the period.
func (rp ReportingPeriod) Contains(t TimePoint) bool { return rp.Period.Contains(t) }

// BucketKey returns the group key for an event: the entity label in month
// view, the month name otherwise.
func (rp ReportingPeriod) BucketKey(e FinancialEvent, dir EntityDirectory) string {
	if rp.Axis == AxisEntity {
		return dir.Label(e.EntityID)
	}
	return e.Date.Month().String()
}

// Label is a human title for the period, e.g. "March 2025", "Q1 2025", "2025".
func (rp ReportingPeriod) Label() string {
	switch rp.Mode {
	case ModeMonth:
		return fmt.Sprintf("%s %d", rp.Month, rp.Year)
	case ModeQuarter:
		return fmt.Sprintf("Q%d %d", QuarterOf(rp.Period.Start.Month()), rp.Year)
	default:
		return fmt.Sprintf("%d", rp.Year)
	}
}
