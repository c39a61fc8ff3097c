// Package plan reads and updates daily plan entries owned by the scheduling
// service. It can only flip completion fields; entries are never created or
// deleted from here.
package plan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/okian/lingotrack/internal/domain/model"
)

// ErrEntryMissing is returned when MarkEntry matches no row for the learner.
var ErrEntryMissing = errors.New("plan entry missing")

// Store finds and updates plan entries by (learner, unit).
type Store interface {
	// EntriesForUnit returns every entry of the learner that references
	// unitID, across all plan dates.
	EntriesForUnit(ctx context.Context, learnerID, unitID string) ([]model.PlanEntry, error)
	MarkEntry(ctx context.Context, learnerID, entryID string, completed bool, score int) error
}

// GormStore implements Store over the daily_plan_entries table.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a plan store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates the plan table for dev and test databases.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&model.PlanEntry{}); err != nil {
		return fmt.Errorf("migrate plan table: %w", err)
	}
	return nil
}

func (s *GormStore) EntriesForUnit(ctx context.Context, learnerID, unitID string) ([]model.PlanEntry, error) {
	var out []model.PlanEntry
	err := s.db.WithContext(ctx).
		Where("learner_id = ? AND unit_id = ?", learnerID, unitID).
		Order("plan_date").Order("id").
		Find(&out).Error
	return out, err
}

func (s *GormStore) MarkEntry(ctx context.Context, learnerID, entryID string, completed bool, score int) error {
	res := s.db.WithContext(ctx).Model(&model.PlanEntry{}).
		Where("id = ? AND learner_id = ?", entryID, learnerID).
		UpdateColumns(map[string]any{
			"completed":  completed,
			"score":      score,
			"updated_at": s.now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrEntryMissing, entryID)
	}
	return nil
}
