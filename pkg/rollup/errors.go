package rollup

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoActivityData is returned when the raw daily activity table holds no rows
// at all; generation aborts before any write.
var ErrNoActivityData = errors.New("no raw activity data found")

// InvalidRangeError is returned when a requested range is unusable: the start
// boundary falls after the end boundary, or the end boundary lands inside the
// current, not-yet-complete period.
type InvalidRangeError struct {
	Start  time.Time
	End    time.Time
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range %s..%s: %s",
		e.Start.Format("2006-01-02"), e.End.Format("2006-01-02"), e.Reason)
}

// IsInvalidRange reports whether err is an InvalidRangeError.
func IsInvalidRange(err error) bool {
	var ire *InvalidRangeError
	return errors.As(err, &ire)
}
