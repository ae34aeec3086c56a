package funnel

import (
	"context"
	"testing"
	"time"

	"vcfunnel/internal/query"
)

func testWindow() query.Window {
	return query.Window{
		Start: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
	}
}

func TestEventMetricsPresentOnly(t *testing.T) {
	store := &fakeStore{
		AggregateFn: func(ctx context.Context, spec query.Spec) ([]query.Row, error) {
			return []query.Row{
				{Key: EventExposure, Count: 100, Users: 80},
				{Key: EventSaveSuccess, Count: 10, Users: 8},
			}, nil
		},
	}
	analyzer := NewAnalyzer(store)

	metrics, err := analyzer.EventMetrics(context.Background(), testWindow(), primaryEvents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(metrics) != 2 {
		t.Errorf("expected 2 present events, got %d", len(metrics))
	}
	if _, ok := metrics[EventAddVoice]; ok {
		t.Error("expected absent event to stay absent before zero-fill")
	}
	if got := metrics[EventExposure]; got != (EventMetric{Count: 100, Users: 80}) {
		t.Errorf("unexpected exposure metric: %+v", got)
	}
}

func TestMetricsWithDefaults(t *testing.T) {
	present := map[string]EventMetric{
		EventExposure: {Count: 100, Users: 80},
	}

	filled := MetricsWithDefaults(present, primaryEvents)

	if len(filled) != len(primaryEvents) {
		t.Fatalf("expected %d entries, got %d", len(primaryEvents), len(filled))
	}
	if got := filled[EventPreviewPlay]; got != (EventMetric{}) {
		t.Errorf("expected zero metric for missing event, got %+v", got)
	}
	if got := filled[EventExposure]; got != (EventMetric{Count: 100, Users: 80}) {
		t.Errorf("expected present metric preserved, got %+v", got)
	}
}

func TestExitStepUnionUsers(t *testing.T) {
	// Three users used the voice, two backed out, one did both: 7 occurrences
	// but only 4 distinct users across the union.
	store := &fakeStore{
		AggregateFn: func(ctx context.Context, spec query.Spec) ([]query.Row, error) {
			return []query.Row{{Count: 7, Users: 4}}, nil
		},
	}
	analyzer := NewAnalyzer(store)

	exit, err := analyzer.ExitStep(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exit.Count != 7 || exit.Users != 4 {
		t.Errorf("expected count=7 users=4, got %+v", exit)
	}

	spec := store.Specs[0]
	if spec.GroupBy != query.GroupNone {
		t.Errorf("expected ungrouped union aggregate, got grouping %q", spec.GroupBy)
	}
	if !sameEvents(spec.Events, []string{EventSaveVoiceUse, EventCompleteBack}) {
		t.Errorf("unexpected exit events: %v", spec.Events)
	}
}

func TestExitStepRowCountMismatch(t *testing.T) {
	store := &fakeStore{
		AggregateFn: func(ctx context.Context, spec query.Spec) ([]query.Row, error) {
			return []query.Row{{Count: 3, Users: 2}, {Count: 1, Users: 1}}, nil
		},
	}
	analyzer := NewAnalyzer(store)

	if _, err := analyzer.ExitStep(context.Background(), testWindow()); err == nil {
		t.Fatal("expected error for multi-row ungrouped aggregate")
	}
}

func TestFunnelStepsOrderAndZeroFill(t *testing.T) {
	store := &fakeStore{
		AggregateFn: func(ctx context.Context, spec query.Spec) ([]query.Row, error) {
			if spec.GroupBy == query.GroupEvent {
				// No preview plays in the window.
				return []query.Row{
					{Key: EventExposure, Count: 100, Users: 80},
					{Key: EventAddVoice, Count: 50, Users: 40},
					{Key: EventSaveSuccess, Count: 10, Users: 8},
				}, nil
			}
			return []query.Row{{Count: 12, Users: 4}}, nil
		},
	}
	analyzer := NewAnalyzer(store)

	steps, err := analyzer.FunnelSteps(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(steps) != 5 {
		t.Fatalf("expected 5 steps, got %d", len(steps))
	}

	wantLabels := []string{EventExposure, EventAddVoice, EventPreviewPlay, EventSaveSuccess, ExitStepLabel}
	for i, step := range steps {
		if step.Position != i+1 {
			t.Errorf("step %d: expected position %d, got %d", i, i+1, step.Position)
		}
		if step.Label != wantLabels[i] {
			t.Errorf("step %d: expected label %s, got %s", i, wantLabels[i], step.Label)
		}
	}

	if steps[2].Count != 0 || steps[2].Users != 0 {
		t.Errorf("expected zero-valued step for absent event, got %+v", steps[2])
	}
	if steps[4].Count != 12 || steps[4].Users != 4 {
		t.Errorf("unexpected exit step: %+v", steps[4])
	}
}

func TestFunnelStepsPropagatesStoreError(t *testing.T) {
	store := &fakeStore{
		AggregateFn: func(ctx context.Context, spec query.Spec) ([]query.Row, error) {
			return nil, errStoreDown
		},
	}
	analyzer := NewAnalyzer(store)

	if _, err := analyzer.FunnelSteps(context.Background(), testWindow()); err == nil {
		t.Fatal("expected store error to propagate")
	}
}
