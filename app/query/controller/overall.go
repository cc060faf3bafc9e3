package controller

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	geomodels "github.com/gramscope/gramscope/pkg/db/models/geo"
	reportmodels "github.com/gramscope/gramscope/pkg/db/models/reports"
)

type overallResponse struct {
	reportmodels.OverallReport
	Children []reportmodels.ChildSummary `json:"children,omitempty"`
}

// HandleOverall returns the cumulative report of one entity.
func (c *Controller) HandleOverall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

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

	row, err := c.App.ReportsDB.GetOverall(ctx, level, entityID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, "overall report not found")
		return
	}

	resp := overallResponse{OverallReport: *row}
	children, err := row.DecodeChildren()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp.Children = children
	writeJSON(w, http.StatusOK, resp)
}
