package funnel

import (
	"context"
	"testing"

	"vcfunnel/internal/query"
)

func TestTrendsSparseSeries(t *testing.T) {
	// 03-04 had no tracked activity at all; 03-05 only saw exposures.
	store := &fakeStore{
		AggregateFn: func(ctx context.Context, spec query.Spec) ([]query.Row, error) {
			return []query.Row{
				{Key: "03-03", Event: EventExposure, Users: 12},
				{Key: "03-03", Event: EventAddVoice, Users: 5},
				{Key: "03-05", Event: EventExposure, Users: 9},
			}, nil
		},
	}
	analyzer := NewAnalyzer(store)

	series, err := analyzer.Trends(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(series) != 2 {
		t.Fatalf("expected 2 active days, got %d", len(series))
	}
	if _, ok := series["03-04"]; ok {
		t.Error("expected empty day to be absent, not zero-filled")
	}
	if got := series["03-03"][EventExposure]; got != 12 {
		t.Errorf("expected 12 exposure users on 03-03, got %d", got)
	}
	if got := series["03-03"][EventAddVoice]; got != 5 {
		t.Errorf("expected 5 add-voice users on 03-03, got %d", got)
	}
	if _, ok := series["03-05"][EventAddVoice]; ok {
		t.Error("expected absent event to stay absent within a day")
	}

	spec := store.Specs[0]
	if spec.GroupBy != query.GroupDate {
		t.Errorf("expected date grouping, got %q", spec.GroupBy)
	}
	if !sameEvents(spec.Events, primaryEvents) {
		t.Errorf("expected primary funnel events, got %v", spec.Events)
	}
}

func TestTrendsEmptyWindow(t *testing.T) {
	store := &fakeStore{}
	analyzer := NewAnalyzer(store)

	series, err := analyzer.Trends(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series) != 0 {
		t.Errorf("expected empty series, got %v", series)
	}
}
