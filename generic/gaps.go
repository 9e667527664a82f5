/*
gaps.go - Missing log-day detection

PURPOSE:
  Finds the calendar days on which a tracked vehicle has no daily log.
  Only meaningful in month view.

RULES:
  1. The month is checked up to "today" when it is the current month, up to
     its last day when it is in the past, and not at all when it lies in the
     future. Future days are never missing.
  2. Any daily log covers its day, including a day-off log: a recorded rest
     day is not a gap.
  3. Service entries do not cover a day.
  4. Entities with no missing day are left out of the report.

SEE ALSO:
  - engine.go: passes the caller's "now"
*/
package generic

import "sort"

// GapReport maps an entity to its missing day-of-month numbers, ascending.
type GapReport map[EntityID][]int

// Entities returns the entities in the report, sorted.
func (r GapReport) Entities() []EntityID {
	ids := make([]EntityID, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GapDetector computes GapReports.
type GapDetector struct{}

// LastDayToCheck returns the last day-of-month to inspect, or 0 when the
// month has not started yet.
func LastDayToCheck(period ReportingPeriod, now TimePoint) int {
	start := period.Period.Start
	switch {
	case start.SameMonth(now):
		return now.Day()
	case start.After(now):
		return 0
	default:
		return DaysInMonth(start.Year(), start.Month())
	}
}

// DetectGaps reports missing daily-log days per tracked entity. The result is
// empty unless period is a month view.
func (GapDetector) DetectGaps(events []FinancialEvent, period ReportingPeriod, tracked []EntityID, filter EntityID, now TimePoint) GapReport {
	report := GapReport{}
	if period.Mode != ModeMonth {
		return report
	}

	lastDay := LastDayToCheck(period, now)
	if lastDay == 0 {
		return report
	}

	covered := make(map[EntityID]map[int]bool)
	for _, e := range events {
		if e.Kind != KindDailyLog || !period.Contains(e.Date) {
			continue
		}
		days, ok := covered[e.EntityID]
		if !ok {
			days = make(map[int]bool)
			covered[e.EntityID] = days
		}
		days[e.Date.Day()] = true
	}

	monthDays := period.Period.Days()
	seen := make(map[EntityID]bool, len(tracked))
	for _, id := range tracked {
		if seen[id] || !filter.Matches(id) {
			continue
		}
		seen[id] = true

		var missing []int
		for _, d := range monthDays {
			if d.Day() > lastDay {
				break
			}
			if !covered[id][d.Day()] {
				missing = append(missing, d.Day())
			}
		}
		if len(missing) > 0 {
			report[id] = missing
		}
	}

	return report
}
