/*
engine.go - Single entry point for a report run

PURPOSE:
  Combines the Period Resolver, Aggregator and Gap Detector into one call so
  a presentation layer can recompute a whole report whenever a filter
  changes. Every run starts from scratch; nothing is cached here.

DETERMINISM:
  Identical ReportInputs yield identical Reports. "Now" is part of the
  input; the engine never reads a clock.

PARALLELISM:
  Runs share no mutable state. RunMany evaluates several inputs at once
  (e.g. the month, quarter and year views of a dashboard) and returns the
  reports in input order.
*/
package generic

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ReportInput is everything one report run depends on.
type ReportInput struct {
	Events              []FinancialEvent
	Selection           Selection
	IncludeAmortization bool
	EntityFilter        EntityID
	Tracked             []EntityID
	Directory           EntityDirectory
	Now                 TimePoint
}

// Report is the outcome of one run. Gaps is empty outside month view.
type Report struct {
	Period    ReportingPeriod
	Aggregate AggregateResult
	Gaps      GapReport
}

// Engine runs reports. The zero value is ready to use.
type Engine struct {
	// MaxParallel bounds RunMany's concurrency; <= 0 means unbounded.
	MaxParallel int
}

// Run resolves the selection and computes totals, groups, drill-down and
// gaps. The only error is a contract violation in the selection.
func (e *Engine) Run(in ReportInput) (Report, error) {
	period, err := Resolve(in.Selection)
	if err != nil {
		return Report{}, err
	}

	filter := in.EntityFilter
	if filter == "" {
		filter = AllEntities
	}

	events := DedupDailyLogs(in.Events)

	agg := NewAggregator(in.Directory).Aggregate(events, period, in.IncludeAmortization, filter)
	gaps := GapDetector{}.DetectGaps(events, period, in.Tracked, filter, in.Now)

	return Report{Period: period, Aggregate: agg, Gaps: gaps}, nil
}

// RunMany runs each input concurrently. It returns the first error
// encountered, or ctx's error if ctx is canceled before all runs start.
func (e *Engine) RunMany(ctx context.Context, inputs []ReportInput) ([]Report, error) {
	reports := make([]Report, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	if e.MaxParallel > 0 {
		g.SetLimit(e.MaxParallel)
	}

	for i := range inputs {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := e.Run(inputs[i])
			if err != nil {
				return err
			}
			reports[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// =============================================================================
// DAILY LOG UNIQUENESS
// =============================================================================

type dayKey struct {
	entity EntityID
	date   string
}

// DedupDailyLogs keeps one daily log per (entity, date): the last one in
// input order wins and takes the position of the first. Service entries
// pass through untouched. The input slice is not modified.
func DedupDailyLogs(events []FinancialEvent) []FinancialEvent {
	index := make(map[dayKey]int)
	out := make([]FinancialEvent, 0, len(events))
	for _, e := range events {
		if e.Kind != KindDailyLog {
			out = append(out, e)
			continue
		}
		k := dayKey{entity: e.EntityID, date: e.Date.String()}
		if i, ok := index[k]; ok {
			out[i] = e
			continue
		}
		index[k] = len(out)
		out = append(out, e)
	}
	return out
}
