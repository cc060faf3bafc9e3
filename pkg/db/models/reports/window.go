package reports

import (
	"fmt"
	"time"
)

// Granularity selects which report family a window belongs to.
type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// ParseGranularity validates a granularity string coming from the API surface.
func ParseGranularity(s string) (Granularity, bool) {
	switch Granularity(s) {
	case Daily, Weekly, Monthly:
		return Granularity(s), true
	}
	return "", false
}

func (g Granularity) String() string { return string(g) }

// Window is one reporting period. Start and End are inclusive calendar dates
// normalized to midnight UTC. Week is the ISO week number (weekly only),
// Month the calendar month (monthly only), Year the ISO year for weekly
// windows and the calendar year for monthly ones.
type Window struct {
	Granularity Granularity `json:"granularity"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Week        uint8       `json:"week,omitempty"`
	Month       uint8       `json:"month,omitempty"`
	Year        uint16      `json:"year,omitempty"`
}

// Key returns the window's canonical identifier used inside report ids.
func (w Window) Key() string {
	switch w.Granularity {
	case Weekly:
		return fmt.Sprintf("w%02d-%d", w.Week, w.Year)
	case Monthly:
		return fmt.Sprintf("m%02d-%d", w.Month, w.Year)
	default:
		return w.Start.Format("2006-01-02")
	}
}

// Label returns the human-readable window descriptor exposed by the read API.
func (w Window) Label() string {
	switch w.Granularity {
	case Weekly:
		return fmt.Sprintf("Week %d, %d (%s to %s)",
			w.Week, w.Year, w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
	case Monthly:
		return w.Start.Format("January 2006")
	default:
		return w.Start.Format("2006-01-02")
	}
}
