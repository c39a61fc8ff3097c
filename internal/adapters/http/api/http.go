// Package api maps the progress engine onto HTTP routes.
package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"

	"github.com/okian/lingotrack/internal/app/progress"
	"github.com/okian/lingotrack/internal/domain/dedupe"
	"github.com/okian/lingotrack/internal/domain/model"
	"github.com/okian/lingotrack/pkg/logger"
)

// LearnerHeader carries the authenticated learner id set by the gateway.
const LearnerHeader = "X-Learner-ID"

// Progress is the write path.
type Progress interface {
	StartUnit(ctx context.Context, learnerID, unitID string) (model.UnitProgress, error)
	UpdateAssetProgress(ctx context.Context, in progress.AssetUpdate) (model.AssetProgress, error)
	RecordPronunciationAttempt(ctx context.Context, in progress.AttemptInput) (model.AttemptResult, error)
	CalculateUnitScore(ctx context.Context, learnerID, unitID string) (int, error)
	CompleteUnit(ctx context.Context, learnerID, unitID string, override *float64) (model.CompletionResult, error)
}

// Reports is the read path.
type Reports interface {
	UnitProgress(ctx context.Context, learnerID, unitID string) (model.UnitDetail, error)
	Summary(ctx context.Context, learnerID string) (model.Summary, error)
	StoryProgress(ctx context.Context, learnerID, storyID string) (model.StoryProgress, error)
}

// Catalog answers the existence checks made before calling into the core.
type Catalog interface {
	Units(ctx context.Context, ids []string) ([]model.Unit, error)
	UnitAssets(ctx context.Context, unitID string) ([]model.Asset, error)
}

// Ingestor accepts progress events for asynchronous application.
type Ingestor interface {
	dedupe.Deduper
	Enqueue(ctx context.Context, ev model.ProgressEvent) error
}

// Dependencies bundles what the handlers need.
type Dependencies struct {
	Progress Progress
	Reports  Reports
	Catalog  Catalog
	Ingest   Ingestor
	Stats    StatsProvider
	Health   Pinger
}

// Server wires HTTP routes for the business API.
type Server struct {
	units   *UnitsHandler
	reports *ReportsHandler
	events  *EventsHandler
	health  *HealthHandler
	stats   *StatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, l logger.Logger) *Server {
	if l == nil {
		l = logger.Get().Named("api")
	}
	check := &existence{catalog: deps.Catalog}
	return &Server{
		units:   &UnitsHandler{progress: deps.Progress, reports: deps.Reports, check: check, log: l},
		reports: &ReportsHandler{reports: deps.Reports, log: l},
		events:  &EventsHandler{ingest: deps.Ingest, check: check, log: l},
		health:  NewHealthHandler(deps.Health, l),
		stats:   NewStatsHandler(deps.Stats),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.health.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.health.MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.stats.HandleStats, "stats"))

	mux.HandleFunc("POST /v1/units/{unitID}/start", MetricsMiddleware(withLearner(s.units.HandleStart), "unit_start"))
	mux.HandleFunc("PUT /v1/units/{unitID}/assets/{assetID}/progress", MetricsMiddleware(withLearner(s.units.HandleAssetProgress), "asset_progress"))
	mux.HandleFunc("POST /v1/units/{unitID}/pronunciation-attempts", MetricsMiddleware(withLearner(s.units.HandleAttempt), "pronunciation_attempt"))
	mux.HandleFunc("POST /v1/units/{unitID}/complete", MetricsMiddleware(withLearner(s.units.HandleComplete), "unit_complete"))
	mux.HandleFunc("GET /v1/units/{unitID}/score", MetricsMiddleware(withLearner(s.units.HandleScore), "unit_score"))
	mux.HandleFunc("GET /v1/units/{unitID}/progress", MetricsMiddleware(withLearner(s.units.HandleUnitProgress), "unit_progress"))
	mux.HandleFunc("GET /v1/stories/{storyID}/progress", MetricsMiddleware(withLearner(s.reports.HandleStoryProgress), "story_progress"))
	mux.HandleFunc("GET /v1/progress/summary", MetricsMiddleware(withLearner(s.reports.HandleSummary), "progress_summary"))
	mux.HandleFunc("POST /v1/progress/events", MetricsMiddleware(withLearner(s.events.HandlePostEvent), "progress_events"))
}

type learnerHandler func(w http.ResponseWriter, r *http.Request, learnerID string)

// withLearner rejects requests without a learner id.
func withLearner(next learnerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learnerID := strings.TrimSpace(r.Header.Get(LearnerHeader))
		if learnerID == "" {
			writeError(w, ErrUnauthorized)
			return
		}
		next(w, r, learnerID)
	}
}

// jsonAPI skips HTML escaping and writes empty collections as [] rather than null.
var jsonAPI = sonic.Config{
	EscapeHTML:       false,
	CompactMarshaler: true,
	NoNullSliceOrMap: true,
}.Froze()

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := jsonAPI.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = jsonAPI.Marshal(errorResponse{Code: "internal_error", Message: "failed to encode response"})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := http.StatusText(status)
	if status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

const maxBodyBytes = 1 << 20

// decode reads a JSON body into dst and validates it. An empty body is
// accepted when optional is set.
func decode(r *http.Request, dst any, optional bool) error {
	const op = "api.decode"
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	if len(bytes.TrimSpace(body)) > 0 || !optional {
		if err := jsonAPI.Unmarshal(body, dst); err != nil {
			return WrapKind(op, ErrBadRequest, err)
		}
	}
	if err := validate.Struct(dst); err != nil {
		return WrapKind(op, ErrBadRequest, describe(err))
	}
	return nil
}

// describe turns validator output into a short message naming the fields.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" failed "+fe.Tag())
	}
	return errors.New(strings.Join(parts, "; "))
}
