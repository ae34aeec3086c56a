package funnel

import (
	"context"
	"time"
)

// UpdateTimeFormat is the generation-timestamp layout in the report artifact.
const UpdateTimeFormat = "2006-01-02 15:04:05"

// Assembler drives the analyzer across periods and merges the results into
// one report. It owns the final composition; inner values are never mutated
// after insertion.
type Assembler struct {
	analyzer *Analyzer
	now      func() time.Time

	// Progress, when set, receives one line per assembly stage for CLI output.
	Progress func(format string, args ...any)
}

// NewAssembler creates an assembler over the given store. The clock is
// injectable for tests; pass nil for time.Now.
func NewAssembler(store Store, now func() time.Time) *Assembler {
	if now == nil {
		now = time.Now
	}
	return &Assembler{
		analyzer: NewAnalyzer(store),
		now:      now,
	}
}

// Assemble computes the full report for the given periods (all three when
// empty). The generation timestamp is captured once at the start and shared
// by every period. Any failure aborts the whole run; no partial report is
// returned.
func (s *Assembler) Assemble(ctx context.Context, periods ...Period) (*Report, error) {
	if len(periods) == 0 {
		periods = Periods()
	}

	started := s.now()
	report := &Report{
		Funnel:      make(map[Period][]FunnelStep, len(periods)),
		StepDetails: make(map[Period]StepDetails, len(periods)),
		DeepMetrics: make(map[Period]DeepMetrics, len(periods)),
		Trends:      make(map[Period]TrendSeries, len(periods)),
		UpdateTime:  started.Format(UpdateTimeFormat),
	}

	for _, period := range periods {
		window := ResolveWindow(period, started)
		s.progress("📊 %s (%s .. %s)", period, window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"))

		s.progress("   - funnel")
		steps, err := s.analyzer.FunnelSteps(ctx, window)
		if err != nil {
			return nil, err
		}
		report.Funnel[period] = steps

		s.progress("   - step details")
		details, err := s.analyzer.StepDetails(ctx, window)
		if err != nil {
			return nil, err
		}
		report.StepDetails[period] = details

		s.progress("   - deep metrics")
		deep, err := s.analyzer.DeepMetrics(ctx, window)
		if err != nil {
			return nil, err
		}
		report.DeepMetrics[period] = deep

		s.progress("   - trends")
		trends, err := s.analyzer.Trends(ctx, window)
		if err != nil {
			return nil, err
		}
		report.Trends[period] = trends
	}

	return report, nil
}

func (s *Assembler) progress(format string, args ...any) {
	if s.Progress != nil {
		s.Progress(format, args...)
	}
}
