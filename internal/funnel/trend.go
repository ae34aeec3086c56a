package funnel

import (
	"context"
	"fmt"

	"vcfunnel/internal/query"
)

// Trends computes the per-day distinct-user series for the four primary
// funnel events. Days with no activity for any tracked event are omitted;
// consumers needing a dense calendar must fill gaps themselves.
func (a *Analyzer) Trends(ctx context.Context, w query.Window) (TrendSeries, error) {
	rows, err := a.store.Aggregate(ctx, query.Spec{
		Window:  w,
		Events:  primaryEvents,
		GroupBy: query.GroupDate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate trends: %w", err)
	}

	series := make(TrendSeries)
	for _, row := range rows {
		day := series[row.Key]
		if day == nil {
			day = make(map[string]int64)
			series[row.Key] = day
		}
		day[row.Event] = row.Users
	}
	return series, nil
}
