package funnel

import (
	"context"
	"fmt"

	"vcfunnel/internal/query"
)

// Analyzer computes the funnel, its sub-breakdowns, the derived ratio metrics,
// and the daily trend series for a single date window. The store is injected
// so tests can substitute an in-memory fake.
type Analyzer struct {
	store Store
}

// NewAnalyzer creates an analyzer backed by the given store.
func NewAnalyzer(store Store) *Analyzer {
	return &Analyzer{store: store}
}

// EventMetrics aggregates per-event-name metrics for a set of event names.
// The result contains only event names actually present in the store for the
// window; callers wanting zero defaults use MetricsWithDefaults.
func (a *Analyzer) EventMetrics(ctx context.Context, w query.Window, events []string) (map[string]EventMetric, error) {
	rows, err := a.store.Aggregate(ctx, query.Spec{
		Window:  w,
		Events:  events,
		GroupBy: query.GroupEvent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate event metrics: %w", err)
	}

	metrics := make(map[string]EventMetric, len(rows))
	for _, row := range rows {
		metrics[row.Key] = EventMetric{Count: row.Count, Users: row.Users}
	}
	return metrics, nil
}

// MetricsWithDefaults fills event names missing from the aggregation result
// with a zero metric, making "no data" explicit instead of absent.
func MetricsWithDefaults(metrics map[string]EventMetric, events []string) map[string]EventMetric {
	filled := make(map[string]EventMetric, len(events))
	for _, name := range events {
		filled[name] = metrics[name]
	}
	return filled
}

// ExitStep synthesizes the terminal funnel step from the two leave-the-flow
// events. Occurrences are simply summed; the distinct-user count comes from a
// single aggregate scoped to the union of both event names, so a user who
// fired both counts once.
func (a *Analyzer) ExitStep(ctx context.Context, w query.Window) (EventMetric, error) {
	rows, err := a.store.Aggregate(ctx, query.Spec{
		Window: w,
		Events: exitEvents,
	})
	if err != nil {
		return EventMetric{}, fmt.Errorf("failed to aggregate exit step: %w", err)
	}
	if len(rows) != 1 {
		return EventMetric{}, fmt.Errorf("exit aggregate returned %d rows, want 1", len(rows))
	}
	return EventMetric{Count: rows[0].Count, Users: rows[0].Users}, nil
}

// FunnelSteps builds the ordered funnel for the window: the four primary
// events in product-flow order followed by the synthesized exit step. Events
// with no data appear as zero-valued steps.
func (a *Analyzer) FunnelSteps(ctx context.Context, w query.Window) ([]FunnelStep, error) {
	metrics, err := a.EventMetrics(ctx, w, primaryEvents)
	if err != nil {
		return nil, err
	}
	metrics = MetricsWithDefaults(metrics, primaryEvents)

	exit, err := a.ExitStep(ctx, w)
	if err != nil {
		return nil, err
	}

	steps := make([]FunnelStep, 0, len(primaryEvents)+1)
	for i, name := range primaryEvents {
		m := metrics[name]
		steps = append(steps, FunnelStep{
			Position: i + 1,
			Label:    name,
			Count:    m.Count,
			Users:    m.Users,
		})
	}
	steps = append(steps, FunnelStep{
		Position: len(primaryEvents) + 1,
		Label:    ExitStepLabel,
		Count:    exit.Count,
		Users:    exit.Users,
	})
	return steps, nil
}
