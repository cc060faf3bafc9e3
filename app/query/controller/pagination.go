package controller

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	reportmodels "github.com/gramscope/gramscope/pkg/db/models/reports"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

type pageSpec struct {
	Limit int
	// Before is the exclusive window-end upper bound for the next page; zero
	// means first page. BeforeID resumes within the boundary end-date.
	Before   time.Time
	BeforeID string
}

func parsePageSpec(r *http.Request) (pageSpec, error) {
	qs := r.URL.Query()
	limit := defaultLimit
	if v := qs.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n <= 0 {
			return pageSpec{}, errInvalidLimit
		} else {
			limit = int(math.Min(float64(n), maxLimit))
		}
	}

	var before time.Time
	var beforeID string
	if v := qs.Get("cursor"); v != "" {
		date, id, _ := strings.Cut(v, cursorSeparator)
		t, err := time.ParseInLocation("2006-01-02", date, time.UTC)
		if err != nil {
			return pageSpec{}, errInvalidCursor
		}
		before = t
		beforeID = id
	}

	return pageSpec{Limit: limit, Before: before, BeforeID: beforeID}, nil
}

// cursorSeparator joins the boundary end-date and report id in page cursors.
// Report ids use ":" internally, so the separator must be something else.
const cursorSeparator = "~"

// nextCursor encodes the compound cursor pointing past the page's last row.
func nextCursor(last reportmodels.Report) string {
	return last.WindowEnd.Format("2006-01-02") + cursorSeparator + last.ID
}

var (
	errInvalidLimit  = &parseError{msg: "invalid limit"}
	errInvalidCursor = &parseError{msg: "invalid cursor, must be YYYY-MM-DD or YYYY-MM-DD~<report id>"}
)

type parseError struct{ msg string }

func (e *parseError) Error() string { return e.msg }
