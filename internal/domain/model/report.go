package model

import "time"

// AssetDetail joins an asset progress row with catalog metadata.
type AssetDetail struct {
	AssetProgress
	AssetType  string `json:"asset_type"`
	StorageKey string `json:"storage_key"`
}

// UnitDetail is the per-unit report.
type UnitDetail struct {
	Progress *UnitProgress          `json:"progress"`
	Attempts []PronunciationAttempt `json:"attempts"`
	Assets   []AssetDetail          `json:"assets"`
}

// StoryRollup summarizes the touched units of one story.
type StoryRollup struct {
	StoryID        string  `json:"story_id"`
	StoryTitle     string  `json:"story_title"`
	TotalUnits     int     `json:"total_units"`
	CompletedUnits int     `json:"completed_units"`
	AverageScore   float64 `json:"average_score"`
}

// Summary is the per-learner report.
type Summary struct {
	TotalUnits      int            `json:"total_units"`
	CompletedUnits  int            `json:"completed_units"`
	InProgressUnits int            `json:"in_progress_units"`
	AverageScore    float64        `json:"average_score"`
	Pronunciation   AttemptStats   `json:"pronunciation"`
	Recent          []UnitProgress `json:"recent"`
	Stories         []StoryRollup  `json:"stories"`
}

// UnitStatus is one unit line of a story report.
type UnitStatus struct {
	UnitID         string     `json:"unit_id"`
	Title          string     `json:"title"`
	Position       int        `json:"position"`
	Completed      bool       `json:"completed"`
	Score          int        `json:"score"`
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	AttemptCount   int        `json:"attempt_count"`
	AttemptAverage float64    `json:"attempt_average"`
}

// StoryProgress is the per-story report.
type StoryProgress struct {
	StoryID        string       `json:"story_id"`
	Units          []UnitStatus `json:"units"`
	CompletedUnits int          `json:"completed_units"`
}
