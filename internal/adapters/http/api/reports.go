package api

import (
	"net/http"

	"github.com/okian/lingotrack/pkg/logger"
)

// ReportsHandler serves the learner-wide read routes.
type ReportsHandler struct {
	reports Reports
	log     logger.Logger
}

// HandleStoryProgress handles GET /v1/stories/{storyID}/progress.
func (h *ReportsHandler) HandleStoryProgress(w http.ResponseWriter, r *http.Request, learnerID string) {
	out, err := h.reports.StoryProgress(r.Context(), learnerID, r.PathValue("storyID"))
	if err != nil {
		logFailure(r, h.log, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleSummary handles GET /v1/progress/summary.
func (h *ReportsHandler) HandleSummary(w http.ResponseWriter, r *http.Request, learnerID string) {
	out, err := h.reports.Summary(r.Context(), learnerID)
	if err != nil {
		logFailure(r, h.log, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
