package reports

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gramscope/gramscope/pkg/db/models/geo"
)

// Table names per granularity. Staging tables receive a window's rows first;
// promotion copies the deduplicated result into the production table so a
// window never surfaces partially written levels.
const (
	DailyTableName     = "daily_reports"
	WeeklyTableName    = "weekly_reports"
	MonthlyTableName   = "monthly_reports"
	OverallTableName   = "overall_reports"
	StagingTableSuffix = "_staging"
)

// TableName returns the production table for a granularity.
func TableName(g Granularity) string {
	switch g {
	case Weekly:
		return WeeklyTableName
	case Monthly:
		return MonthlyTableName
	default:
		return DailyTableName
	}
}

// StagingTableName returns the staging table for a granularity.
func StagingTableName(g Granularity) string {
	return TableName(g) + StagingTableSuffix
}

// ChildSummary is one entry of a non-leaf report's embedded children listing.
// ReportID is nil when the child produced no report for the window.
type ChildSummary struct {
	ChildID  uint64  `json:"child_id"`
	Name     string  `json:"name"`
	Count    uint64  `json:"count"`
	ReportID *string `json:"report_id"`
}

// Report is one rollup row for a (level, entity, window) key. All three
// granularity tables share this schema; weekly/monthly descriptor columns are
// zero where not applicable.
type Report struct {
	ID          string    `ch:"id" json:"id"`
	Level       string    `ch:"level" json:"level"`
	EntityID    uint64    `ch:"entity_id" json:"entity_id"`
	EntityName  string    `ch:"entity_name" json:"entity_name"`
	WindowStart time.Time `ch:"window_start" json:"window_start"`
	WindowEnd   time.Time `ch:"window_end" json:"window_end"`
	Week        uint8     `ch:"week" json:"week,omitempty"`
	Month       uint8     `ch:"month" json:"month,omitempty"`
	Year        uint16    `ch:"year" json:"year,omitempty"`
	Count       uint64    `ch:"count" json:"count"`

	// Children is a JSON array of ChildSummary ordered by child name; empty for
	// village rows. Users is a JSON object mapping user id to display name,
	// present only on village rows. Both are serialized deterministically so a
	// re-run without force is byte-identical.
	Children string `ch:"children" json:"-"`
	Users    string `ch:"users" json:"-"`

	Distribution   map[uint32]uint64 `ch:"distribution" json:"distribution,omitempty"`
	ParentReportID *string           `ch:"parent_report_id" json:"parent_report_id"`
	Version        uint64            `ch:"version" json:"-"`
}

// ReportID builds the deterministic report identifier for a key.
func ReportID(w Window, level geo.Level, entityID uint64) string {
	return fmt.Sprintf("%s:%s:%s:%d", w.Granularity, w.Key(), level, entityID)
}

// Granularity derives the report family from the deterministic id prefix.
func (r *Report) Granularity() Granularity {
	for i := 0; i < len(r.ID); i++ {
		if r.ID[i] == ':' {
			if g, ok := ParseGranularity(r.ID[:i]); ok {
				return g
			}
			break
		}
	}
	return Daily
}

// Window reconstructs the report's window descriptor.
func (r *Report) Window(g Granularity) Window {
	return Window{
		Granularity: g,
		Start:       r.WindowStart,
		End:         r.WindowEnd,
		Week:        r.Week,
		Month:       r.Month,
		Year:        r.Year,
	}
}

// DecodeChildren unmarshals the embedded children listing.
func (r *Report) DecodeChildren() ([]ChildSummary, error) {
	if r.Children == "" {
		return nil, nil
	}
	var out []ChildSummary
	if err := json.Unmarshal([]byte(r.Children), &out); err != nil {
		return nil, fmt.Errorf("decode children of %s: %w", r.ID, err)
	}
	return out, nil
}

// DecodeUsers unmarshals the embedded active-user listing of a village row.
func (r *Report) DecodeUsers() (map[string]string, error) {
	if r.Users == "" {
		return nil, nil
	}
	out := map[string]string{}
	if err := json.Unmarshal([]byte(r.Users), &out); err != nil {
		return nil, fmt.Errorf("decode users of %s: %w", r.ID, err)
	}
	return out, nil
}

// EncodeChildren serializes a name-ordered children listing. The caller is
// responsible for the ordering; encoding preserves slice order.
func EncodeChildren(children []ChildSummary) (string, error) {
	if len(children) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(children)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeUsers serializes the user-id to display-name map. Go's JSON encoder
// sorts map keys, which keeps the output deterministic.
func EncodeUsers(users map[string]string) (string, error) {
	if len(users) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(users)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// OverallReport is the forward-only cumulative row per (level, entity).
// Last30 maps ISO dates (YYYY-MM-DD) to that day's incremental count; entries
// older than 30 days are evicted on update. Children enumerates the complete
// child roster, inactive children included, after a rebuild pass.
type OverallReport struct {
	Level          string            `ch:"level" json:"level"`
	EntityID       uint64            `ch:"entity_id" json:"entity_id"`
	Name           string            `ch:"name" json:"name"`
	Total          uint64            `ch:"total" json:"total"`
	Last30         map[string]uint64 `ch:"last30" json:"last30"`
	Children       string            `ch:"children" json:"-"`
	ParentEntityID *uint64           `ch:"parent_entity_id" json:"parent_entity_id"`
	AsOf           time.Time         `ch:"asof" json:"asof"`
	Version        uint64            `ch:"version" json:"-"`
}

// DecodeChildren unmarshals the embedded child roster listing.
func (o *OverallReport) DecodeChildren() ([]ChildSummary, error) {
	if o.Children == "" {
		return nil, nil
	}
	var out []ChildSummary
	if err := json.Unmarshal([]byte(o.Children), &out); err != nil {
		return nil, fmt.Errorf("decode children of %s/%d: %w", o.Level, o.EntityID, err)
	}
	return out, nil
}
