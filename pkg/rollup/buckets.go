package rollup

import "github.com/gramscope/gramscope/pkg/db/models/reports"

// BucketSpec supplies the activity-distribution thresholds for one
// granularity. For each threshold the histogram counts how many users met or
// exceeded that visit frequency. When Cap is non-zero, frequencies are clamped
// to Cap before comparison (a 31-day month's 31 still lands in the 30 bucket).
type BucketSpec struct {
	Thresholds []uint32
	Cap        uint32
}

// BucketsFor returns the distribution spec used by village-level reports of a
// granularity. Daily windows carry no distribution: a daily frequency is
// always exactly one.
func BucketsFor(g reports.Granularity) BucketSpec {
	switch g {
	case reports.Weekly:
		return BucketSpec{Thresholds: []uint32{1, 2, 3, 4, 5, 6, 7}}
	case reports.Monthly:
		return BucketSpec{Thresholds: []uint32{1, 5, 10, 15, 20, 25, 30}, Cap: 30}
	default:
		return BucketSpec{}
	}
}

// Enabled reports whether this spec produces a histogram at all.
func (s BucketSpec) Enabled() bool { return len(s.Thresholds) > 0 }

// Distribution computes the met-or-exceeded histogram of the given per-user
// frequencies.
func (s BucketSpec) Distribution(freqs map[uint64]uint64) map[uint32]uint64 {
	if !s.Enabled() {
		return nil
	}
	out := make(map[uint32]uint64, len(s.Thresholds))
	for _, t := range s.Thresholds {
		out[t] = 0
	}
	for _, f := range freqs {
		v := uint32(f)
		if s.Cap > 0 && v > s.Cap {
			v = s.Cap
		}
		for _, t := range s.Thresholds {
			if v >= t {
				out[t]++
			}
		}
	}
	return out
}
