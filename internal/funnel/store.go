package funnel

import (
	"context"
	"math"

	"vcfunnel/internal/query"
)

// Store is the aggregation interface the funnel computations run against.
// Implementations must return deterministic, consistent results for a fixed
// window; every method is an idempotent read.
type Store interface {
	// Aggregate executes one grouped-aggregation spec. Grouped specs omit
	// groups with no matching rows entirely. Ungrouped specs always return
	// exactly one row, zero-valued when nothing matched.
	Aggregate(ctx context.Context, spec query.Spec) ([]query.Row, error)

	// UserIDs returns the distinct user identifiers that fired any of the
	// given events within the window.
	UserIDs(ctx context.Context, w query.Window, events []string) ([]string, error)

	// ParamChange counts, for one event, the distinct users overall and the
	// distinct users with at least one occurrence where the two string
	// parameters differ (exact inequality, no normalization).
	ParamChange(ctx context.Context, w query.Window, event, key, compareKey string) (query.ParamChange, error)
}

// Rate computes round(num / max(den,1) * 100, 2). A zero denominator is
// deliberately substituted with 1 so empty windows yield a 0 rate instead of
// an error.
func Rate(num, den int64) float64 {
	if den == 0 {
		den = 1
	}
	return math.Round(float64(num)/float64(den)*100*100) / 100
}
