package query

import "time"

// Grouping selects how an aggregate query buckets its rows.
type Grouping string

const (
	GroupNone  Grouping = ""      // single aggregate row over all matching events
	GroupEvent Grouping = "event" // one row per event_name
	GroupParam Grouping = "param" // one row per string value of ParamKey
	GroupDate  Grouping = "date"  // one row per (event_date, event_name) pair
)

// Window is an inclusive calendar-date range. Both bounds are interpreted
// as whole days; time-of-day components are ignored.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Suffixes returns the window bounds in GA4 export table-suffix form (YYYYMMDD).
func (w Window) Suffixes() (start, end string) {
	return w.Start.Format("20060102"), w.End.Format("20060102")
}

// Days returns the number of calendar days the window spans.
func (w Window) Days() int {
	start := w.Start.Truncate(24 * time.Hour)
	end := w.End.Truncate(24 * time.Hour)
	return int(end.Sub(start).Hours()/24) + 1
}

// Spec declares a single grouped-aggregation request against the event store.
// Every aggregate the report needs is expressed as one of these rather than
// as ad-hoc SQL at the call site.
type Spec struct {
	Window   Window   `json:"window"`
	Events   []string `json:"events"`              // event_name membership filter, non-empty
	GroupBy  Grouping `json:"group_by,omitempty"`  // see Grouping constants
	ParamKey string   `json:"param_key,omitempty"` // required for GroupParam

	// OrderByUsersDesc orders grouped rows by unique_users descending.
	// Without it the store's row order is implementation-defined.
	OrderByUsersDesc bool `json:"order_by_users_desc,omitempty"`
	Limit            int  `json:"limit,omitempty"` // 0 = no limit
}

// Row is one aggregate result row.
//
// Key holds the group value: the event name for GroupEvent, the parameter
// value for GroupParam (empty when the parameter was absent), the formatted
// day label for GroupDate, and "" for GroupNone. Event is populated only for
// GroupDate rows, which bucket by day and event name at once.
type Row struct {
	Key   string
	Event string
	Count int64
	Users int64
}

// ParamChange is the result of the two-parameter inequality aggregation:
// TotalUsers is the distinct-user count for the event, ChangedUsers the
// distinct users with at least one occurrence where the two parameter
// values differ.
type ParamChange struct {
	TotalUsers   int64
	ChangedUsers int64
}

// Parameter is a named query parameter attached to a rendered statement.
// Exactly one of Value or Values is meaningful; Values marks an ARRAY<STRING>
// parameter.
type Parameter struct {
	Name   string
	Value  string
	Values []string
	IsList bool
}
