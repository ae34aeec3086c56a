package funnel

import (
	"time"

	"vcfunnel/internal/query"
)

// Period is one of the three fixed relative date-window presets. Its string
// value doubles as the report map key.
type Period string

const (
	PeriodYesterday Period = "yesterday"
	PeriodLast3Days Period = "last_3_days"
	PeriodLast7Days Period = "last_7_days"
)

// Periods returns all report periods in display order.
func Periods() []Period {
	return []Period{PeriodYesterday, PeriodLast3Days, PeriodLast7Days}
}

// Days returns the window length for the period.
func (p Period) Days() int {
	switch p {
	case PeriodYesterday:
		return 1
	case PeriodLast3Days:
		return 3
	default:
		return 7
	}
}

// ResolveWindow maps a period to its concrete inclusive date window. The
// window always ends the calendar day before now, regardless of time of day.
func ResolveWindow(p Period, now time.Time) query.Window {
	end := now.AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(p.Days() - 1))
	return query.Window{Start: start, End: end}
}

// EventMetric is the occurrence/distinct-user pair every aggregate reduces to.
type EventMetric struct {
	Count int64 `json:"count"`
	Users int64 `json:"users"`
}

// FunnelStep is one ordered step of the conversion funnel. Position is fixed
// by product-flow semantics, not derived from any sort key.
type FunnelStep struct {
	Position int    `json:"position"`
	Label    string `json:"label"`
	Count    int64  `json:"count"`
	Users    int64  `json:"users"`
}

// Bucket is a keyed sub-breakdown entry: an event name for distributions, an
// attribution value for source grouping.
type Bucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
	Users int64  `json:"users"`
}

// DescriptionChange reports how many savers edited the suggested description.
type DescriptionChange struct {
	TotalUsers int64 `json:"total_users"`
	WithChange int64 `json:"with_change"`
}

// StepDetails holds the per-step sub-breakdowns for one period.
type StepDetails struct {
	EntryDistribution []Bucket          `json:"entry_distribution"`
	AddVoiceFrom      []Bucket          `json:"add_voice_from"`
	ManualSelect      EventMetric       `json:"manual_select"`
	SaveDescription   DescriptionChange `json:"save_description"`
	ExitDistribution  []Bucket          `json:"exit_distribution"`
}

// CompletionMetric is the save-success over exposure ratio. Saved users are
// counted even when never observed in the exposure set within the window.
type CompletionMetric struct {
	ExposureUsers int64   `json:"exposure_users"`
	SaveUsers     int64   `json:"save_users"`
	Rate          float64 `json:"rate"`
}

// SaveToUseMetric relates save-success to follow-up TTS use, over both
// distinct users and raw occurrences.
type SaveToUseMetric struct {
	SaveUsers   int64   `json:"save_users"`
	SaveCount   int64   `json:"save_count"`
	UseTTSUsers int64   `json:"use_tts_users"`
	UseTTSCount int64   `json:"use_tts_count"`
	UserRate    float64 `json:"user_rate"`
	CountRate   float64 `json:"count_rate"`
}

// UpgradeMetric is the upgrade-click to paid conversion, computed from a
// genuine intersection of the two user populations.
type UpgradeMetric struct {
	UpgradeClickUsers   int64   `json:"upgrade_click_users"`
	UpgradeAndPaidUsers int64   `json:"upgrade_and_paid_users"`
	Rate                float64 `json:"rate"`
}

// DeepMetrics holds the derived ratio metrics for one period.
type DeepMetrics struct {
	Completion        CompletionMetric `json:"completion"`
	SaveToUse         SaveToUseMetric  `json:"save_to_use"`
	UpgradeConversion UpgradeMetric    `json:"upgrade_conversion"`
}

// TrendSeries maps a day label (MM-DD) to per-event distinct-user counts.
// Sparse: day/event pairs with no matching events are absent, not zero.
type TrendSeries map[string]map[string]int64

// Report is the consolidated output artifact. Assembled once per run and
// never mutated afterwards.
type Report struct {
	Funnel      map[Period][]FunnelStep `json:"funnel"`
	StepDetails map[Period]StepDetails  `json:"step_details"`
	DeepMetrics map[Period]DeepMetrics  `json:"deep_metrics"`
	Trends      map[Period]TrendSeries  `json:"trends"`
	UpdateTime  string                  `json:"update_time"`
}
