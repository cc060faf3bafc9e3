package rollup

import (
	"time"

	"github.com/gramscope/gramscope/pkg/db/models/reports"
)

// Truncate normalizes t to the start of its period: midnight for daily, the
// Monday of the ISO week for weekly, the first of the month for monthly.
// All window math happens in UTC.
func Truncate(t time.Time, g reports.Granularity) time.Time {
	t = t.UTC()
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case reports.Weekly:
		// Monday-aligned: weekday 0 (Sunday) is 6 days past Monday.
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	case reports.Monthly:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return d
	}
}

// LastCompleted returns the start of the most recently completed period before
// now: yesterday, the last full Monday-Sunday week, or the last full calendar
// month.
func LastCompleted(now time.Time, g reports.Granularity) time.Time {
	cur := Truncate(now, g)
	switch g {
	case reports.Weekly:
		return cur.AddDate(0, 0, -7)
	case reports.Monthly:
		return cur.AddDate(0, -1, 0)
	default:
		return cur.AddDate(0, 0, -1)
	}
}

// WindowAt builds the full descriptor of the period containing d.
func WindowAt(d time.Time, g reports.Granularity) reports.Window {
	start := Truncate(d, g)
	w := reports.Window{Granularity: g, Start: start}
	switch g {
	case reports.Weekly:
		isoYear, isoWeek := start.ISOWeek()
		w.End = start.AddDate(0, 0, 6)
		w.Week = uint8(isoWeek)
		w.Year = uint16(isoYear)
	case reports.Monthly:
		// Day zero of the next month is the civil-calendar last day of this one.
		w.End = time.Date(start.Year(), start.Month()+1, 0, 0, 0, 0, 0, time.UTC)
		w.Month = uint8(start.Month())
		w.Year = uint16(start.Year())
	default:
		w.End = start
	}
	return w
}

// Windows enumerates the gap-free sequence of windows between start and end
// (both inclusive, each normalized to its period start first), validating that
// the end boundary is strictly before the current partial period relative to
// now. The returned slice is deterministic and safe to re-traverse, so a
// failed backfill can simply be re-invoked.
func Windows(g reports.Granularity, start, end, now time.Time) ([]reports.Window, error) {
	start = Truncate(start, g)
	end = Truncate(end, g)

	if start.After(end) {
		return nil, &InvalidRangeError{Start: start, End: end, Reason: "start is after end"}
	}
	if last := LastCompleted(now, g); end.After(last) {
		return nil, &InvalidRangeError{Start: start, End: end,
			Reason: "end falls inside the current incomplete " + g.String() + " period"}
	}

	var out []reports.Window
	for cur := start; !cur.After(end); {
		w := WindowAt(cur, g)
		out = append(out, w)
		cur = w.End.AddDate(0, 0, 1)
	}
	return out, nil
}
