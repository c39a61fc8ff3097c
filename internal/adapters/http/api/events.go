package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/okian/lingotrack/internal/adapters/mq/queue"
	"github.com/okian/lingotrack/internal/domain/model"
	"github.com/okian/lingotrack/pkg/logger"
	"github.com/okian/lingotrack/pkg/metrics"
)

// EventsHandler accepts progress events for asynchronous application.
type EventsHandler struct {
	ingest Ingestor
	check  *existence
	log    logger.Logger
}

// eventRequest is the body of POST /v1/progress/events.
type eventRequest struct {
	EventID            string     `json:"event_id" validate:"required,max=128"`
	Kind               string     `json:"kind" validate:"required,oneof=asset pronunciation"`
	UnitID             string     `json:"unit_id" validate:"required"`
	TS                 *time.Time `json:"ts"`
	AssetID            string     `json:"asset_id" validate:"required_if=Kind asset"`
	SecondsWatched     *float64   `json:"seconds_watched" validate:"required_if=Kind asset"`
	ProgressPercentage *float64   `json:"progress_percentage" validate:"required_if=Kind asset"`
	DurationSeconds    *float64   `json:"duration_seconds"`
	Completed          *bool      `json:"completed"`
	AudioReference     string     `json:"audio_reference" validate:"required_if=Kind pronunciation,max=512"`
	Score              *float64   `json:"score" validate:"required_if=Kind pronunciation"`
	Feedback           *string    `json:"feedback"`
}

func (e *eventRequest) event(learnerID string, now time.Time) model.ProgressEvent {
	ev := model.ProgressEvent{
		EventID:         e.EventID,
		LearnerID:       learnerID,
		UnitID:          e.UnitID,
		Kind:            model.EventKind(e.Kind),
		TS:              now,
		AssetID:         e.AssetID,
		DurationSeconds: e.DurationSeconds,
		Completed:       e.Completed,
		AudioReference:  e.AudioReference,
		Feedback:        e.Feedback,
	}
	if e.TS != nil {
		ev.TS = *e.TS
	}
	if e.SecondsWatched != nil {
		ev.SecondsWatched = *e.SecondsWatched
	}
	if e.ProgressPercentage != nil {
		ev.ProgressPercentage = *e.ProgressPercentage
	}
	if e.Score != nil {
		ev.Score = *e.Score
	}
	return ev
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// HandlePostEvent handles POST /v1/progress/events. Accepted events are
// applied later; a repeated event id for the same learner is acknowledged
// without being queued again.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request, learnerID string) {
	const op = "api.post_event"
	ctx := r.Context()

	var req eventRequest
	if err := decode(r, &req, false); err != nil {
		metrics.RecordEventRejected("invalid")
		writeError(w, err)
		return
	}
	ev := req.event(learnerID, time.Now().UTC())

	var err error
	if ev.Kind == model.EventAsset {
		err = h.check.asset(ctx, ev.UnitID, ev.AssetID)
	} else {
		err = h.check.unit(ctx, ev.UnitID)
	}
	if err != nil {
		metrics.RecordEventRejected("unknown_target")
		logFailure(r, h.log, err)
		writeError(w, err)
		return
	}

	key := ev.DedupeKey()
	if h.ingest.SeenAndRecord(ctx, key) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	if err := h.ingest.Enqueue(ctx, ev); err != nil {
		// Forget the key so the client can retry the same event later.
		h.ingest.Unrecord(ctx, key)
		kind, reason := ErrUnavailable, "unavailable"
		if errors.Is(err, queue.ErrFull) {
			kind, reason = ErrBackpressure, "backpressure"
		}
		metrics.RecordEventRejected(reason)
		h.log.Warn(ctx, "event not enqueued", logger.String("event_id", ev.EventID), logger.Error(err))
		writeError(w, WrapKind(op, kind, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Duplicate: false})
}
