/*
aggregate.go - Period totals and grouping

PURPOSE:
  Folds canonical events into totals for one reporting period. This is the
  central calculation that answers "what did the fleet earn and spend?"

SCOPE:
  An event is in scope when its entity passes the entity filter and its date
  lies within the resolved period (inclusive on both ends).

GROUPING:
  Month view:           one group per vehicle label ("Truck 7", "Unknown")
  Quarter / year view:  one group per month name ("January", ...)

AMORTIZATION:
  Amortization lines (loan repayments on the vehicle) are excluded from
  expenses unless IncludeAmortization is set. Income is never affected.

CONSERVATION:
  Every in-scope event lands in exactly one group, so
  Totals == Groups.Sum() for every run.

SEE ALSO:
  - groups.go: ordered accumulator
  - drilldown.go: per-group event detail built in the same pass
*/
package generic

// =============================================================================
// AGGREGATE RESULT
// =============================================================================

// AggregateResult is the outcome of one aggregation run.
type AggregateResult struct {
	Period        ReportingPeriod
	Totals        Totals
	Groups        *Groups
	EventsByGroup *DrillDown
	EventCount    int
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator computes AggregateResults. Directory resolves entity labels for
// month-view grouping.
type Aggregator struct {
	Directory EntityDirectory
}

func NewAggregator(dir EntityDirectory) *Aggregator {
	return &Aggregator{Directory: dir}
}

// InScope filters events to the entity filter and the period.
func InScope(events []FinancialEvent, period ReportingPeriod, filter EntityID) []FinancialEvent {
	var out []FinancialEvent
	for _, e := range events {
		if filter.Matches(e.EntityID) && period.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out
}

// Aggregate folds events into totals, groups and the drill-down index.
func (a *Aggregator) Aggregate(events []FinancialEvent, period ReportingPeriod, includeAmortization bool, filter EntityID) AggregateResult {
	scoped := InScope(events, period, filter)

	result := AggregateResult{
		Period:        period,
		Groups:        NewGroups(),
		EventsByGroup: IndexByGroup(scoped, period, a.Directory),
		EventCount:    len(scoped),
	}

	for _, e := range scoped {
		income := e.Income
		expenses := e.Expenses(includeAmortization)

		result.Totals = result.Totals.add(income, expenses)

		group := result.Groups.GetOrCreate(period.BucketKey(e, a.Directory))
		*group = group.add(income, expenses)
	}

	return result
}
