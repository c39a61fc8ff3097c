// Package model contains domain models passed between layers.
package model

import "time"

// UnitProgress is the per-(learner, unit) completion record.
type UnitProgress struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	LearnerID   string     `json:"learner_id" gorm:"not null;size:64;uniqueIndex:idx_unit_progress_learner_unit,priority:1;index:idx_unit_progress_learner_updated,priority:1"`
	UnitID      string     `json:"unit_id" gorm:"not null;size:64;uniqueIndex:idx_unit_progress_learner_unit,priority:2"`
	Completed   bool       `json:"completed" gorm:"not null"`
	Score       int        `json:"score" gorm:"not null"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"not null;index:idx_unit_progress_learner_updated,priority:2"`
}

// TableName pins the table name.
func (UnitProgress) TableName() string { return "unit_progress" }

// InProgress reports a started unit that has not been completed yet.
func (p *UnitProgress) InProgress() bool {
	return p.StartedAt != nil && !p.Completed
}

// AssetProgress is the per-(learner, asset) consumption record.
// Once CompletedAt is set it is never cleared.
type AssetProgress struct {
	ID                 string     `json:"id" gorm:"primaryKey;size:36"`
	LearnerID          string     `json:"learner_id" gorm:"not null;size:64;uniqueIndex:idx_asset_progress_learner_asset,priority:1;index:idx_asset_progress_learner_unit,priority:1"`
	AssetID            string     `json:"asset_id" gorm:"not null;size:64;uniqueIndex:idx_asset_progress_learner_asset,priority:2"`
	UnitID             string     `json:"unit_id" gorm:"not null;size:64;index:idx_asset_progress_learner_unit,priority:2"`
	ProgressPercentage float64    `json:"progress_percentage" gorm:"not null"`
	SecondsWatched     int        `json:"seconds_watched" gorm:"not null"`
	DurationSeconds    *int       `json:"duration_seconds"`
	Completed          bool       `json:"completed" gorm:"not null"`
	CompletedAt        *time.Time `json:"completed_at"`
	CreatedAt          time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time  `json:"updated_at" gorm:"not null"`
}

// TableName pins the table name.
func (AssetProgress) TableName() string { return "asset_progress" }

// PronunciationAttempt is one immutable, pre-scored speaking attempt.
type PronunciationAttempt struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	LearnerID      string    `json:"learner_id" gorm:"not null;size:64;index:idx_attempts_learner_unit,priority:1"`
	UnitID         string    `json:"unit_id" gorm:"not null;size:64;index:idx_attempts_learner_unit,priority:2"`
	AudioReference string    `json:"audio_reference" gorm:"not null"`
	Score          float64   `json:"score" gorm:"not null"`
	Feedback       *string   `json:"feedback" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at" gorm:"not null;index:idx_attempts_learner_unit,priority:3"`
}

// TableName pins the table name.
func (PronunciationAttempt) TableName() string { return "pronunciation_attempts" }

// AttemptStats is the count and arithmetic mean of a set of attempts.
type AttemptStats struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

// AttemptResult is returned after recording an attempt.
type AttemptResult struct {
	Attempt      PronunciationAttempt `json:"attempt"`
	AverageScore float64              `json:"average_score"`
	AttemptCount int                  `json:"attempt_count"`
}

// CompletionResult is returned after completing a unit.
type CompletionResult struct {
	Progress    UnitProgress `json:"progress"`
	PlanUpdated bool         `json:"plan_updated"`
}
