package query

import (
	"fmt"
	"strings"
)

// Builder renders Specs into BigQuery Standard SQL over a GA4 events export.
// Values never get spliced into the statement text; everything variable goes
// through named query parameters, except the fully-qualified table name and
// the parameter-extraction subquery key, which come from trusted config and
// compile-time constants respectively.
type Builder struct {
	table string // fully-qualified wildcard table, e.g. proj.analytics_123.events_intraday_*
}

// NewBuilder creates a builder for the given project and GA4 dataset.
func NewBuilder(projectID, datasetID string) *Builder {
	return &Builder{
		table: fmt.Sprintf("`%s.%s.events_intraday_*`", projectID, datasetID),
	}
}

const paramValueExpr = "(SELECT value.string_value FROM UNNEST(event_params) WHERE key = @param_key)"

// Build renders an aggregate Spec to SQL plus its named parameters.
func (b *Builder) Build(s Spec) (string, []Parameter, error) {
	if len(s.Events) == 0 {
		return "", nil, fmt.Errorf("query spec requires at least one event name")
	}
	if s.GroupBy == GroupParam && s.ParamKey == "" {
		return "", nil, fmt.Errorf("param grouping requires a param key")
	}

	params := b.windowParams(s.Window)
	params = append(params, Parameter{Name: "events", Values: s.Events, IsList: true})

	var sb strings.Builder
	switch s.GroupBy {
	case GroupNone:
		sb.WriteString("SELECT COUNT(*) AS event_count, COUNT(DISTINCT user_pseudo_id) AS unique_users\n")
	case GroupEvent:
		sb.WriteString("SELECT event_name, COUNT(*) AS event_count, COUNT(DISTINCT user_pseudo_id) AS unique_users\n")
	case GroupParam:
		params = append(params, Parameter{Name: "param_key", Value: s.ParamKey})
		sb.WriteString("SELECT " + paramValueExpr + " AS param_value,\n")
		sb.WriteString("    COUNT(*) AS event_count, COUNT(DISTINCT user_pseudo_id) AS unique_users\n")
	case GroupDate:
		sb.WriteString("SELECT FORMAT_DATE('%m-%d', PARSE_DATE('%Y%m%d', event_date)) AS day,\n")
		sb.WriteString("    event_name, COUNT(DISTINCT user_pseudo_id) AS unique_users\n")
	default:
		return "", nil, fmt.Errorf("unsupported grouping: %q", s.GroupBy)
	}

	sb.WriteString("FROM " + b.table + "\n")
	sb.WriteString("WHERE " + windowCondition + "\n")
	sb.WriteString("    AND event_name IN UNNEST(@events)\n")

	switch s.GroupBy {
	case GroupEvent:
		sb.WriteString("GROUP BY event_name\n")
	case GroupParam:
		sb.WriteString("GROUP BY param_value\n")
	case GroupDate:
		sb.WriteString("GROUP BY day, event_name\nORDER BY day\n")
	}

	if s.OrderByUsersDesc {
		if s.GroupBy == GroupNone || s.GroupBy == GroupDate {
			return "", nil, fmt.Errorf("user ordering requires event or param grouping")
		}
		sb.WriteString("ORDER BY unique_users DESC\n")
	}
	if s.Limit > 0 {
		sb.WriteString(fmt.Sprintf("LIMIT %d\n", s.Limit))
	}

	return sb.String(), params, nil
}

// BuildUserIDs renders the distinct-user-identifier query for a set of events.
func (b *Builder) BuildUserIDs(w Window, events []string) (string, []Parameter, error) {
	if len(events) == 0 {
		return "", nil, fmt.Errorf("user id query requires at least one event name")
	}
	params := b.windowParams(w)
	params = append(params, Parameter{Name: "events", Values: events, IsList: true})

	sql := "SELECT DISTINCT user_pseudo_id\n" +
		"FROM " + b.table + "\n" +
		"WHERE " + windowCondition + "\n" +
		"    AND event_name IN UNNEST(@events)\n"
	return sql, params, nil
}

// BuildParamChange renders the two-parameter inequality aggregation for one
// event: total distinct users plus distinct users with at least one occurrence
// where the two string parameters differ.
func (b *Builder) BuildParamChange(w Window, event, key, compareKey string) (string, []Parameter, error) {
	if event == "" || key == "" || compareKey == "" {
		return "", nil, fmt.Errorf("param change query requires event and both param keys")
	}
	params := b.windowParams(w)
	params = append(params,
		Parameter{Name: "event", Value: event},
		Parameter{Name: "key_a", Value: key},
		Parameter{Name: "key_b", Value: compareKey},
	)

	sql := "SELECT COUNT(DISTINCT user_pseudo_id) AS total_users,\n" +
		"    COUNT(DISTINCT CASE\n" +
		"        WHEN (SELECT value.string_value FROM UNNEST(event_params) WHERE key = @key_a) !=\n" +
		"             (SELECT value.string_value FROM UNNEST(event_params) WHERE key = @key_b)\n" +
		"        THEN user_pseudo_id\n" +
		"    END) AS changed_users\n" +
		"FROM " + b.table + "\n" +
		"WHERE " + windowCondition + "\n" +
		"    AND event_name = @event\n"
	return sql, params, nil
}

const windowCondition = "_TABLE_SUFFIX BETWEEN @start_suffix AND @end_suffix"

func (b *Builder) windowParams(w Window) []Parameter {
	start, end := w.Suffixes()
	return []Parameter{
		{Name: "start_suffix", Value: start},
		{Name: "end_suffix", Value: end},
	}
}
