package api

import (
	"context"
	"net/http"

	"github.com/okian/lingotrack/internal/app/progress"
	"github.com/okian/lingotrack/internal/domain/errs"
	"github.com/okian/lingotrack/pkg/logger"
)

// existence answers 404 before the core is called; the core trusts ids.
type existence struct {
	catalog Catalog
}

func (e *existence) unit(ctx context.Context, unitID string) error {
	const op = "api.require_unit"
	units, err := e.catalog.Units(ctx, []string{unitID})
	if err != nil {
		return errs.WrapKind(op, errs.ErrStore, err)
	}
	if len(units) == 0 {
		return errs.Newf(op, errs.ErrNotFound, "unit %q", unitID)
	}
	return nil
}

func (e *existence) asset(ctx context.Context, unitID, assetID string) error {
	const op = "api.require_asset"
	assets, err := e.catalog.UnitAssets(ctx, unitID)
	if err != nil {
		return errs.WrapKind(op, errs.ErrStore, err)
	}
	for i := range assets {
		if assets[i].ID == assetID {
			return nil
		}
	}
	if err := e.unit(ctx, unitID); err != nil {
		return err
	}
	return errs.Newf(op, errs.ErrNotFound, "asset %q in unit %q", assetID, unitID)
}

// UnitsHandler serves the per-unit routes.
type UnitsHandler struct {
	progress Progress
	reports  Reports
	check    *existence
	log      logger.Logger
}

type assetProgressRequest struct {
	SecondsWatched     *float64 `json:"seconds_watched" validate:"required"`
	ProgressPercentage *float64 `json:"progress_percentage" validate:"required"`
	DurationSeconds    *float64 `json:"duration_seconds"`
	Completed          *bool    `json:"completed"`
}

type attemptRequest struct {
	AudioReference string   `json:"audio_reference" validate:"required,max=512"`
	Score          *float64 `json:"score" validate:"required"`
	Feedback       *string  `json:"feedback"`
}

type completeRequest struct {
	Score *float64 `json:"score"`
}

type scoreResponse struct {
	UnitID string `json:"unit_id"`
	Score  int    `json:"score"`
}

// HandleStart handles POST /v1/units/{unitID}/start.
func (h *UnitsHandler) HandleStart(w http.ResponseWriter, r *http.Request, learnerID string) {
	unitID := r.PathValue("unitID")
	if err := h.check.unit(r.Context(), unitID); err != nil {
		h.fail(w, r, err)
		return
	}
	row, err := h.progress.StartUnit(r.Context(), learnerID, unitID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// HandleAssetProgress handles PUT /v1/units/{unitID}/assets/{assetID}/progress.
func (h *UnitsHandler) HandleAssetProgress(w http.ResponseWriter, r *http.Request, learnerID string) {
	unitID, assetID := r.PathValue("unitID"), r.PathValue("assetID")
	var req assetProgressRequest
	if err := decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.check.asset(r.Context(), unitID, assetID); err != nil {
		h.fail(w, r, err)
		return
	}
	row, err := h.progress.UpdateAssetProgress(r.Context(), progress.AssetUpdate{
		LearnerID:          learnerID,
		UnitID:             unitID,
		AssetID:            assetID,
		SecondsWatched:     *req.SecondsWatched,
		ProgressPercentage: *req.ProgressPercentage,
		DurationSeconds:    req.DurationSeconds,
		Completed:          req.Completed,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// HandleAttempt handles POST /v1/units/{unitID}/pronunciation-attempts.
func (h *UnitsHandler) HandleAttempt(w http.ResponseWriter, r *http.Request, learnerID string) {
	unitID := r.PathValue("unitID")
	var req attemptRequest
	if err := decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.check.unit(r.Context(), unitID); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.progress.RecordPronunciationAttempt(r.Context(), progress.AttemptInput{
		LearnerID:      learnerID,
		UnitID:         unitID,
		AudioReference: req.AudioReference,
		Score:          *req.Score,
		Feedback:       req.Feedback,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleComplete handles POST /v1/units/{unitID}/complete. The body is
// optional; a score in it overrides the computed one.
func (h *UnitsHandler) HandleComplete(w http.ResponseWriter, r *http.Request, learnerID string) {
	unitID := r.PathValue("unitID")
	var req completeRequest
	if err := decode(r, &req, true); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.check.unit(r.Context(), unitID); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.progress.CompleteUnit(r.Context(), learnerID, unitID, req.Score)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleScore handles GET /v1/units/{unitID}/score.
func (h *UnitsHandler) HandleScore(w http.ResponseWriter, r *http.Request, learnerID string) {
	unitID := r.PathValue("unitID")
	if err := h.check.unit(r.Context(), unitID); err != nil {
		h.fail(w, r, err)
		return
	}
	score, err := h.progress.CalculateUnitScore(r.Context(), learnerID, unitID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{UnitID: unitID, Score: score})
}

// HandleUnitProgress handles GET /v1/units/{unitID}/progress. A unit the
// learner never started is reported as not found.
func (h *UnitsHandler) HandleUnitProgress(w http.ResponseWriter, r *http.Request, learnerID string) {
	const op = "api.unit_progress"
	unitID := r.PathValue("unitID")
	detail, err := h.reports.UnitProgress(r.Context(), learnerID, unitID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if detail.Progress == nil {
		h.fail(w, r, errs.Newf(op, errs.ErrNotFound, "no progress for unit %q", unitID))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *UnitsHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	logFailure(r, h.log, err)
	writeError(w, err)
}

// logFailure logs server-side failures; client errors are only counted.
func logFailure(r *http.Request, l logger.Logger, err error) {
	if status, _ := statusFor(err); status >= http.StatusInternalServerError {
		l.Error(r.Context(), "request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.String("error_kind", errs.Label(err)),
			logger.Error(err),
		)
	}
}
