package model

import "time"

// EventKind identifies which signal a progress event carries.
type EventKind string

// Event kinds.
const (
	EventAsset         EventKind = "asset"
	EventPronunciation EventKind = "pronunciation"
)

// ProgressEvent is a client-submitted progress update applied asynchronously.
// Only the fields relevant to Kind are read.
type ProgressEvent struct {
	EventID   string    // client-chosen id for idempotency
	LearnerID string    // already-authenticated caller
	UnitID    string
	Kind      EventKind
	TS        time.Time // client timestamp, or receive time when absent

	// asset fields
	AssetID            string
	SecondsWatched     float64
	ProgressPercentage float64
	DurationSeconds    *float64
	Completed          *bool

	// pronunciation fields
	AudioReference string
	Score          float64
	Feedback       *string
}

// DedupeKey scopes the client event id to the learner.
func (e *ProgressEvent) DedupeKey() string {
	return e.LearnerID + "/" + e.EventID
}
