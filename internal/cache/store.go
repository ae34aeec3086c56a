package cache

import (
	"context"
	"time"

	"vcfunnel/internal/funnel"
	"vcfunnel/internal/query"
)

// DefaultTTL bounds how long cached aggregates are served. Windows always end
// yesterday, but intraday export tables can still receive late rows.
const DefaultTTL = 1 * time.Hour

// Store wraps another funnel.Store and serves repeated aggregates from the
// DuckDB cache. Cache failures fall through to the inner store; a cold or
// broken cache must never fail the run.
type Store struct {
	inner  funnel.Store
	client *Client
	ttl    time.Duration
}

var _ funnel.Store = (*Store)(nil)

// NewStore creates a caching decorator. A ttl of zero means DefaultTTL.
func NewStore(inner funnel.Store, client *Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{inner: inner, client: client, ttl: ttl}
}

// windowKey is the cache form of a query window. Windows resolve from wall
// clocks, so keys must carry only the date suffixes the query actually uses;
// hashing raw timestamps would make every run its own cache namespace.
type windowKey struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func keyForWindow(w query.Window) windowKey {
	start, end := w.Suffixes()
	return windowKey{Start: start, End: end}
}

type aggregateKey struct {
	Window           windowKey      `json:"window"`
	Events           []string       `json:"events"`
	GroupBy          query.Grouping `json:"group_by"`
	ParamKey         string         `json:"param_key"`
	OrderByUsersDesc bool           `json:"order_by_users_desc"`
	Limit            int            `json:"limit"`
}

func keyForSpec(spec query.Spec) aggregateKey {
	return aggregateKey{
		Window:           keyForWindow(spec.Window),
		Events:           spec.Events,
		GroupBy:          spec.GroupBy,
		ParamKey:         spec.ParamKey,
		OrderByUsersDesc: spec.OrderByUsersDesc,
		Limit:            spec.Limit,
	}
}

type userIDsKey struct {
	Window windowKey `json:"window"`
	Events []string  `json:"events"`
}

type paramChangeKey struct {
	Window     windowKey `json:"window"`
	Event      string    `json:"event"`
	Key        string    `json:"key"`
	CompareKey string    `json:"compare_key"`
}

func (s *Store) Aggregate(ctx context.Context, spec query.Spec) ([]query.Row, error) {
	var cached []query.Row
	hash, err := hashKey("aggregate", keyForSpec(spec))
	if err == nil {
		if found, err := s.client.Get(ctx, hash, &cached); err == nil && found {
			return cached, nil
		}
	}

	rows, err := s.inner.Aggregate(ctx, spec)
	if err != nil {
		return nil, err
	}
	if hash != "" {
		s.client.Put(ctx, hash, rows, s.ttl)
	}
	return rows, nil
}

func (s *Store) UserIDs(ctx context.Context, w query.Window, events []string) ([]string, error) {
	var cached []string
	hash, err := hashKey("user_ids", userIDsKey{Window: keyForWindow(w), Events: events})
	if err == nil {
		if found, err := s.client.Get(ctx, hash, &cached); err == nil && found {
			return cached, nil
		}
	}

	ids, err := s.inner.UserIDs(ctx, w, events)
	if err != nil {
		return nil, err
	}
	if hash != "" {
		s.client.Put(ctx, hash, ids, s.ttl)
	}
	return ids, nil
}

func (s *Store) ParamChange(ctx context.Context, w query.Window, event, key, compareKey string) (query.ParamChange, error) {
	cacheKey := paramChangeKey{
		Window:     keyForWindow(w),
		Event:      event,
		Key:        key,
		CompareKey: compareKey,
	}

	var cached query.ParamChange
	hash, err := hashKey("param_change", cacheKey)
	if err == nil {
		if found, err := s.client.Get(ctx, hash, &cached); err == nil && found {
			return cached, nil
		}
	}

	change, err := s.inner.ParamChange(ctx, w, event, key, compareKey)
	if err != nil {
		return query.ParamChange{}, err
	}
	if hash != "" {
		s.client.Put(ctx, hash, change, s.ttl)
	}
	return change, nil
}
