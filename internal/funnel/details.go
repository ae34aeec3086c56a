package funnel

import (
	"context"
	"fmt"

	"vcfunnel/internal/query"
)

// topSources caps the attribution breakdown at the five largest buckets.
const topSources = 5

// StepDetails computes the four per-step breakdowns plus the per-event exit
// distribution for the window. The sub-aggregations are independent reads
// over the same window.
func (a *Analyzer) StepDetails(ctx context.Context, w query.Window) (StepDetails, error) {
	var details StepDetails

	entry, err := a.entryDistribution(ctx, w)
	if err != nil {
		return details, err
	}
	details.EntryDistribution = entry

	sources, err := a.sourceAttribution(ctx, w)
	if err != nil {
		return details, err
	}
	details.AddVoiceFrom = sources

	manual, err := a.singleEventMetric(ctx, w, EventSelectManually)
	if err != nil {
		return details, err
	}
	details.ManualSelect = manual

	change, err := a.descriptionChange(ctx, w)
	if err != nil {
		return details, err
	}
	details.SaveDescription = change

	exit, err := a.exitDistribution(ctx, w)
	if err != nil {
		return details, err
	}
	details.ExitDistribution = exit

	return details, nil
}

// entryDistribution aggregates the two entry events per event name, ordered
// by distinct users descending.
func (a *Analyzer) entryDistribution(ctx context.Context, w query.Window) ([]Bucket, error) {
	rows, err := a.store.Aggregate(ctx, query.Spec{
		Window:           w,
		Events:           entryEvents,
		GroupBy:          query.GroupEvent,
		OrderByUsersDesc: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate entry distribution: %w", err)
	}
	return bucketsFromRows(rows, false), nil
}

// sourceAttribution groups the add-voice event by its "from" parameter and
// keeps the top five buckets by distinct users. Occurrences without the
// parameter fall into the "unknown" bucket.
func (a *Analyzer) sourceAttribution(ctx context.Context, w query.Window) ([]Bucket, error) {
	rows, err := a.store.Aggregate(ctx, query.Spec{
		Window:           w,
		Events:           []string{EventAddVoice},
		GroupBy:          query.GroupParam,
		ParamKey:         AttributionParam,
		OrderByUsersDesc: true,
		Limit:            topSources,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate source attribution: %w", err)
	}
	return bucketsFromRows(rows, true), nil
}

// singleEventMetric runs an ungrouped aggregate for one event.
func (a *Analyzer) singleEventMetric(ctx context.Context, w query.Window, event string) (EventMetric, error) {
	rows, err := a.store.Aggregate(ctx, query.Spec{
		Window: w,
		Events: []string{event},
	})
	if err != nil {
		return EventMetric{}, fmt.Errorf("failed to aggregate %s: %w", event, err)
	}
	if len(rows) != 1 {
		return EventMetric{}, fmt.Errorf("aggregate for %s returned %d rows, want 1", event, len(rows))
	}
	return EventMetric{Count: rows[0].Count, Users: rows[0].Users}, nil
}

// descriptionChange detects, per user, whether the saved description ever
// differed from the suggested one. Users whose occurrences all carry equal
// values are excluded from the with-change count.
func (a *Analyzer) descriptionChange(ctx context.Context, w query.Window) (DescriptionChange, error) {
	change, err := a.store.ParamChange(ctx, w, EventSaveDescription, DescriptionParam, OriginalDescriptionParam)
	if err != nil {
		return DescriptionChange{}, fmt.Errorf("failed to aggregate description changes: %w", err)
	}
	return DescriptionChange{
		TotalUsers: change.TotalUsers,
		WithChange: change.ChangedUsers,
	}, nil
}

// exitDistribution reports the two terminal events per event name, without
// the union de-duplication the synthesized exit step applies.
func (a *Analyzer) exitDistribution(ctx context.Context, w query.Window) ([]Bucket, error) {
	rows, err := a.store.Aggregate(ctx, query.Spec{
		Window:  w,
		Events:  exitEvents,
		GroupBy: query.GroupEvent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate exit distribution: %w", err)
	}
	return bucketsFromRows(rows, false), nil
}

// bucketsFromRows converts aggregate rows to buckets, preserving row order.
// With sentinelEmpty set, empty keys map to the "unknown" bucket.
func bucketsFromRows(rows []query.Row, sentinelEmpty bool) []Bucket {
	buckets := make([]Bucket, 0, len(rows))
	for _, row := range rows {
		key := row.Key
		if sentinelEmpty && key == "" {
			key = UnknownSource
		}
		buckets = append(buckets, Bucket{Key: key, Count: row.Count, Users: row.Users})
	}
	return buckets
}
