package funnel

import (
	"context"
	"testing"
	"time"

	"vcfunnel/internal/query"
)

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2025, 3, 10, 8, 15, 30, 0, time.UTC)
	}
}

func TestAssembleAllPeriods(t *testing.T) {
	store := &fakeStore{}
	assembler := NewAssembler(store, fixedClock())

	report, err := assembler.Assemble(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.UpdateTime != "2025-03-10 08:15:30" {
		t.Errorf("unexpected update time: %s", report.UpdateTime)
	}

	for _, period := range Periods() {
		steps, ok := report.Funnel[period]
		if !ok {
			t.Errorf("missing funnel for period %s", period)
			continue
		}
		if len(steps) != 5 {
			t.Errorf("period %s: expected 5 funnel steps, got %d", period, len(steps))
		}
		if _, ok := report.StepDetails[period]; !ok {
			t.Errorf("missing step details for period %s", period)
		}
		if _, ok := report.DeepMetrics[period]; !ok {
			t.Errorf("missing deep metrics for period %s", period)
		}
		if _, ok := report.Trends[period]; !ok {
			t.Errorf("missing trends for period %s", period)
		}
	}
}

func TestAssembleSinglePeriod(t *testing.T) {
	store := &fakeStore{}
	assembler := NewAssembler(store, fixedClock())

	report, err := assembler.Assemble(context.Background(), PeriodLast3Days)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.Funnel) != 1 {
		t.Fatalf("expected exactly one period, got %d", len(report.Funnel))
	}
	if _, ok := report.Funnel[PeriodLast3Days]; !ok {
		t.Error("expected the requested period to be present")
	}

	// Every aggregate this run issued must target the 3-day window.
	wantStart, wantEnd := "20250307", "20250309"
	for _, spec := range store.Specs {
		start, end := spec.Window.Suffixes()
		if start != wantStart || end != wantEnd {
			t.Errorf("expected window %s..%s, got %s..%s", wantStart, wantEnd, start, end)
		}
	}
}

func TestAssembleSharedUpdateTime(t *testing.T) {
	// The clock keeps moving during the run; the report timestamp must come
	// from the single capture at the start.
	calls := 0
	clock := func() time.Time {
		calls++
		return time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC).Add(time.Duration(calls) * time.Minute)
	}
	store := &fakeStore{}
	assembler := NewAssembler(store, clock)

	report, err := assembler.Assemble(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.UpdateTime != "2025-03-10 08:01:00" {
		t.Errorf("expected timestamp from first clock read, got %s", report.UpdateTime)
	}
}

func TestAssembleAbortsOnStoreError(t *testing.T) {
	failing := &fakeStore{
		AggregateFn: func(ctx context.Context, spec query.Spec) ([]query.Row, error) {
			return nil, errStoreDown
		},
	}
	assembler := NewAssembler(failing, fixedClock())

	report, err := assembler.Assemble(context.Background())
	if err == nil {
		t.Fatal("expected assembly to fail")
	}
	if report != nil {
		t.Error("expected no partial report on failure")
	}
}

func TestAssembleProgressLines(t *testing.T) {
	store := &fakeStore{}
	assembler := NewAssembler(store, fixedClock())

	var lines int
	assembler.Progress = func(format string, args ...any) { lines++ }

	if _, err := assembler.Assemble(context.Background(), PeriodYesterday); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// One header plus four stage lines per period.
	if lines != 5 {
		t.Errorf("expected 5 progress lines, got %d", lines)
	}
}
