package funnel

import (
	"context"
	"errors"

	"vcfunnel/internal/query"
)

// fakeStore lets each test script the store responses. Unset functions fall
// back to empty-window behavior: ungrouped aggregates return one zero row,
// everything else returns nothing.
type fakeStore struct {
	AggregateFn   func(ctx context.Context, spec query.Spec) ([]query.Row, error)
	UserIDsFn     func(ctx context.Context, w query.Window, events []string) ([]string, error)
	ParamChangeFn func(ctx context.Context, w query.Window, event, key, compareKey string) (query.ParamChange, error)

	Specs []query.Spec
}

var _ Store = (*fakeStore)(nil)

func (f *fakeStore) Aggregate(ctx context.Context, spec query.Spec) ([]query.Row, error) {
	f.Specs = append(f.Specs, spec)
	if f.AggregateFn != nil {
		return f.AggregateFn(ctx, spec)
	}
	if spec.GroupBy == query.GroupNone {
		return []query.Row{{}}, nil
	}
	return nil, nil
}

func (f *fakeStore) UserIDs(ctx context.Context, w query.Window, events []string) ([]string, error) {
	if f.UserIDsFn != nil {
		return f.UserIDsFn(ctx, w, events)
	}
	return nil, nil
}

func (f *fakeStore) ParamChange(ctx context.Context, w query.Window, event, key, compareKey string) (query.ParamChange, error) {
	if f.ParamChangeFn != nil {
		return f.ParamChangeFn(ctx, w, event, key, compareKey)
	}
	return query.ParamChange{}, nil
}

var errStoreDown = errors.New("store down")

func sameEvents(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
