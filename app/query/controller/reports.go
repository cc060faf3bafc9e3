package controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	geomodels "github.com/gramscope/gramscope/pkg/db/models/geo"
	reportmodels "github.com/gramscope/gramscope/pkg/db/models/reports"
)

// reportResponse is a Report with its embedded JSON columns decoded and the
// window descriptor formatted for display.
type reportResponse struct {
	reportmodels.Report
	Window   string                      `json:"window"`
	Children []reportmodels.ChildSummary `json:"children,omitempty"`
	Users    map[string]string           `json:"users,omitempty"`
}

func toReportResponse(r reportmodels.Report) (reportResponse, error) {
	g := r.Granularity()
	out := reportResponse{Report: r, Window: r.Window(g).Label()}

	children, err := r.DecodeChildren()
	if err != nil {
		return out, err
	}
	out.Children = children

	users, err := r.DecodeUsers()
	if err != nil {
		return out, err
	}
	out.Users = users
	return out, nil
}

// HandleReport returns a single report addressed by granularity, level, entity
// and window descriptor: date= for daily, week=&year= for weekly, month=&year=
// for monthly.
func (c *Controller) HandleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	g, ok := reportmodels.ParseGranularity(vars["granularity"])
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown granularity")
		return
	}
	level, ok := geomodels.ParseLevel(vars["level"])
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown level")
		return
	}
	entityID, err := strconv.ParseUint(vars["entityID"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity id")
		return
	}

	window, err := parseWindowParams(r, g)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := c.App.ReportsDB.GetReport(ctx, g, level, entityID, window)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}

	resp, err := toReportResponse(*report)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleReportByID returns a single report by its deterministic identifier.
func (c *Controller) HandleReportByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	report, err := c.App.ReportsDB.GetReportByID(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}

	resp, err := toReportResponse(*report)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type pagedReports struct {
	Data       []reportResponse `json:"data"`
	Limit      int              `json:"limit"`
	NextCursor *string          `json:"next_cursor,omitempty"`
}

// HandleRecentReports lists reports across all granularities, newest window
// first, with compound (end-date, id) cursor pagination.
func (c *Controller) HandleRecentReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, err := parsePageSpec(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := c.App.ReportsDB.ListRecent(ctx, page.Limit, page.Before, page.BeforeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]reportResponse, 0, len(rows))
	for _, row := range rows {
		resp, err := toReportResponse(row)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, resp)
	}

	resp := pagedReports{Data: out, Limit: page.Limit}
	if len(rows) == page.Limit {
		cursor := nextCursor(rows[len(rows)-1])
		resp.NextCursor = &cursor
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleLatestReports returns a short digest of the most recently generated
// reports across all granularities.
func (c *Controller) HandleLatestReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rows, err := c.App.ReportsDB.ListRecent(ctx, 4, time.Time{}, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]reportResponse, 0, len(rows))
	for _, row := range rows {
		resp, err := toReportResponse(row)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": out})
}

func parseWindowParams(r *http.Request, g reportmodels.Granularity) (reportmodels.Window, error) {
	qs := r.URL.Query()
	w := reportmodels.Window{Granularity: g}

	switch g {
	case reportmodels.Weekly:
		week, err := strconv.ParseUint(qs.Get("week"), 10, 8)
		if err != nil || week < 1 || week > 53 {
			return w, &parseError{msg: "weekly reports need week=1..53 and year="}
		}
		year, err := strconv.ParseUint(qs.Get("year"), 10, 16)
		if err != nil {
			return w, &parseError{msg: "weekly reports need week=1..53 and year="}
		}
		w.Week = uint8(week)
		w.Year = uint16(year)
	case reportmodels.Monthly:
		month, err := strconv.ParseUint(qs.Get("month"), 10, 8)
		if err != nil || month < 1 || month > 12 {
			return w, &parseError{msg: "monthly reports need month=1..12 and year="}
		}
		year, err := strconv.ParseUint(qs.Get("year"), 10, 16)
		if err != nil {
			return w, &parseError{msg: "monthly reports need month=1..12 and year="}
		}
		w.Month = uint8(month)
		w.Year = uint16(year)
	default:
		d, err := time.ParseInLocation("2006-01-02", qs.Get("date"), time.UTC)
		if err != nil {
			return w, &parseError{msg: "daily reports need date=YYYY-MM-DD"}
		}
		w.Start = d
	}
	return w, nil
}
