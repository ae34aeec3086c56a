package bigquery

import (
	"context"
	"fmt"
	"strconv"

	"vcfunnel/internal/funnel"
	"vcfunnel/internal/query"
)

// Store runs typed aggregation specs against a GA4 BigQuery events export.
type Store struct {
	client  *Client
	builder *query.Builder
}

var _ funnel.Store = (*Store)(nil)

// NewStore creates a store over one project/dataset pair.
func NewStore(client *Client, projectID, datasetID string) (*Store, error) {
	if datasetID == "" {
		return nil, fmt.Errorf("dataset ID is required")
	}
	return &Store{
		client:  client,
		builder: query.NewBuilder(projectID, datasetID),
	}, nil
}

// Aggregate executes one grouped-aggregation spec.
func (s *Store) Aggregate(ctx context.Context, spec query.Spec) ([]query.Row, error) {
	sql, params, err := s.builder.Build(spec)
	if err != nil {
		return nil, err
	}

	response, err := s.client.Query(ctx, sql, toQueryParameters(params))
	if err != nil {
		return nil, err
	}

	switch spec.GroupBy {
	case query.GroupNone:
		return decodeUngrouped(response)
	case query.GroupEvent, query.GroupParam:
		return decodeGrouped(response)
	case query.GroupDate:
		return decodeDated(response)
	default:
		return nil, fmt.Errorf("unsupported grouping: %q", spec.GroupBy)
	}
}

// UserIDs returns the distinct user identifiers for a set of events.
func (s *Store) UserIDs(ctx context.Context, w query.Window, events []string) ([]string, error) {
	sql, params, err := s.builder.BuildUserIDs(w, events)
	if err != nil {
		return nil, err
	}

	response, err := s.client.Query(ctx, sql, toQueryParameters(params))
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(response.Rows))
	for _, row := range response.Rows {
		if len(row.F) != 1 {
			return nil, fmt.Errorf("%w: user id row has unexpected shape", ErrMalformedResult)
		}
		// GA4 exports can carry events with a NULL pseudo id; such rows
		// belong to no user population.
		if row.F[0].V == nil {
			continue
		}
		ids = append(ids, *row.F[0].V)
	}
	return ids, nil
}

// ParamChange runs the two-parameter inequality aggregation for one event.
func (s *Store) ParamChange(ctx context.Context, w query.Window, event, key, compareKey string) (query.ParamChange, error) {
	sql, params, err := s.builder.BuildParamChange(w, event, key, compareKey)
	if err != nil {
		return query.ParamChange{}, err
	}

	response, err := s.client.Query(ctx, sql, toQueryParameters(params))
	if err != nil {
		return query.ParamChange{}, err
	}

	// COUNT aggregates always produce exactly one row.
	if len(response.Rows) == 0 {
		return query.ParamChange{}, nil
	}
	row := response.Rows[0]
	if len(row.F) != 2 {
		return query.ParamChange{}, fmt.Errorf("%w: param change row has %d columns, want 2", ErrMalformedResult, len(row.F))
	}

	total, err := cellInt(row.F[0])
	if err != nil {
		return query.ParamChange{}, err
	}
	changed, err := cellInt(row.F[1])
	if err != nil {
		return query.ParamChange{}, err
	}
	return query.ParamChange{TotalUsers: total, ChangedUsers: changed}, nil
}

func toQueryParameters(params []query.Parameter) []QueryParameter {
	converted := make([]QueryParameter, 0, len(params))
	for _, p := range params {
		if p.IsList {
			converted = append(converted, StringArrayParam(p.Name, p.Values))
		} else {
			converted = append(converted, StringParam(p.Name, p.Value))
		}
	}
	return converted
}

// decodeUngrouped returns exactly one row; a window with no matching events
// yields a zero-valued row rather than an error.
func decodeUngrouped(response *QueryResponse) ([]query.Row, error) {
	if len(response.Rows) == 0 {
		return []query.Row{{}}, nil
	}
	row := response.Rows[0]
	if len(row.F) != 2 {
		return nil, fmt.Errorf("%w: aggregate row has %d columns, want 2", ErrMalformedResult, len(row.F))
	}

	count, err := cellInt(row.F[0])
	if err != nil {
		return nil, err
	}
	users, err := cellInt(row.F[1])
	if err != nil {
		return nil, err
	}
	return []query.Row{{Count: count, Users: users}}, nil
}

func decodeGrouped(response *QueryResponse) ([]query.Row, error) {
	rows := make([]query.Row, 0, len(response.Rows))
	for _, r := range response.Rows {
		if len(r.F) != 3 {
			return nil, fmt.Errorf("%w: grouped row has %d columns, want 3", ErrMalformedResult, len(r.F))
		}

		count, err := cellInt(r.F[1])
		if err != nil {
			return nil, err
		}
		users, err := cellInt(r.F[2])
		if err != nil {
			return nil, err
		}
		rows = append(rows, query.Row{Key: cellString(r.F[0]), Count: count, Users: users})
	}
	return rows, nil
}

func decodeDated(response *QueryResponse) ([]query.Row, error) {
	rows := make([]query.Row, 0, len(response.Rows))
	for _, r := range response.Rows {
		if len(r.F) != 3 {
			return nil, fmt.Errorf("%w: trend row has %d columns, want 3", ErrMalformedResult, len(r.F))
		}

		users, err := cellInt(r.F[2])
		if err != nil {
			return nil, err
		}
		rows = append(rows, query.Row{Key: cellString(r.F[0]), Event: cellString(r.F[1]), Users: users})
	}
	return rows, nil
}

// cellString treats a NULL cell as the empty string; callers apply their own
// sentinel when that matters.
func cellString(cell TableCell) string {
	if cell.V == nil {
		return ""
	}
	return *cell.V
}

func cellInt(cell TableCell) (int64, error) {
	if cell.V == nil {
		return 0, nil
	}
	n, err := strconv.ParseInt(*cell.V, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: expected integer cell, got %q", ErrMalformedResult, *cell.V)
	}
	return n, nil
}
