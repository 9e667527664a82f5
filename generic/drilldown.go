package generic

import (
	"fmt"
	"sort"
)

// =============================================================================
// DRILL-DOWN INDEX - Events per group, for "show me what made this number"
// =============================================================================

// DrillDown partitions a run's in-scope events by the same group key the
// Aggregator used, so a group's detail always adds up to its totals.
type DrillDown struct {
	keys   []string
	events map[string][]FinancialEvent
}

// IndexByGroup partitions events (already filtered to the period and entity
// filter) by period.BucketKey.
func IndexByGroup(events []FinancialEvent, period ReportingPeriod, dir EntityDirectory) *DrillDown {
	d := &DrillDown{events: make(map[string][]FinancialEvent)}
	for _, e := range events {
		d.add(period.BucketKey(e, dir), e)
	}
	return d
}

func (d *DrillDown) add(key string, e FinancialEvent) {
	if _, ok := d.events[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.events[key] = append(d.events[key], e)
}

// Group returns the events for key, most recent first. Events on the same
// day keep their input order. The returned slice is a copy.
func (d *DrillDown) Group(key string) []FinancialEvent {
	if d == nil {
		return nil
	}
	src := d.events[key]
	out := make([]FinancialEvent, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}

// Lookup is Group for a key that must exist.
func (d *DrillDown) Lookup(key string) ([]FinancialEvent, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, key)
	}
	if _, ok := d.events[key]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, key)
	}
	return d.Group(key), nil
}

// Keys returns group keys in discovery order.
func (d *DrillDown) Keys() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.keys...)
}

// Len returns the number of events in group key.
func (d *DrillDown) Len(key string) int {
	if d == nil {
		return 0
	}
	return len(d.events[key])
}
