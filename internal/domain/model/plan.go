package model

import "time"

// PlanEntry assigns a unit to a learner on a given date. The rows belong to the
// daily plan; this module only flips their completion fields.
type PlanEntry struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	LearnerID string    `json:"learner_id" gorm:"not null;size:64;index:idx_plan_learner_unit,priority:1"`
	UnitID    string    `json:"unit_id" gorm:"not null;size:64;index:idx_plan_learner_unit,priority:2"`
	PlanDate  time.Time `json:"plan_date" gorm:"type:date;not null"`
	Completed bool      `json:"completed" gorm:"not null"`
	Score     int       `json:"score" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name.
func (PlanEntry) TableName() string { return "daily_plan_entries" }
