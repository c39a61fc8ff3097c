package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/okian/lingotrack/internal/domain/model"
	"github.com/okian/lingotrack/pkg/metrics"
)

// GormStore implements Store on gorm. Every write that can race on a first
// insert is an INSERT ... ON CONFLICT on the (learner, unit) or
// (learner, asset) unique index.
type GormStore struct {
	db    *gorm.DB
	newID func() string
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a store over an open database.
func NewGormStore(db *gorm.DB, opts ...Option) *GormStore {
	s := &GormStore{db: db, newID: newUUIDv7}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func observe(query string, start time.Time) {
	metrics.RecordStoreQueryLatency(query, float64(time.Since(start).Microseconds())/1000)
}

// Migrate creates or updates the progress tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&model.UnitProgress{},
		&model.AssetProgress{},
		&model.PronunciationAttempt{},
	); err != nil {
		return fmt.Errorf("migrate progress tables: %w", err)
	}
	return nil
}

func (s *GormStore) EnsureUnitStarted(ctx context.Context, learnerID, unitID string, now time.Time) (model.UnitProgress, error) {
	defer observe("ensure_unit_started", time.Now())

	row := model.UnitProgress{
		ID:        s.newID(),
		LearnerID: learnerID,
		UnitID:    unitID,
		StartedAt: &now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "learner_id"}, {Name: "unit_id"}},
		DoNothing: true,
	}).Create(&row).Error; err != nil {
		return model.UnitProgress{}, err
	}
	// rows created before started_at existed, or by a lazy write path
	if err := db.Model(&model.UnitProgress{}).
		Where("learner_id = ? AND unit_id = ? AND started_at IS NULL", learnerID, unitID).
		UpdateColumns(map[string]any{"started_at": now, "updated_at": now}).Error; err != nil {
		return model.UnitProgress{}, err
	}
	return s.takeUnit(ctx, learnerID, unitID)
}

func (s *GormStore) takeUnit(ctx context.Context, learnerID, unitID string) (model.UnitProgress, error) {
	var out model.UnitProgress
	err := s.db.WithContext(ctx).
		Where("learner_id = ? AND unit_id = ?", learnerID, unitID).
		Take(&out).Error
	return out, err
}

func (s *GormStore) FindUnitProgress(ctx context.Context, learnerID, unitID string) (*model.UnitProgress, error) {
	defer observe("find_unit_progress", time.Now())

	var rows []model.UnitProgress
	if err := s.db.WithContext(ctx).
		Where("learner_id = ? AND unit_id = ?", learnerID, unitID).
		Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *GormStore) ListUnitProgress(ctx context.Context, learnerID string) ([]model.UnitProgress, error) {
	defer observe("list_unit_progress", time.Now())

	var rows []model.UnitProgress
	err := s.db.WithContext(ctx).
		Where("learner_id = ?", learnerID).
		Order("unit_id").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) RecentUnitProgress(ctx context.Context, learnerID string, limit int) ([]model.UnitProgress, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	defer observe("recent_unit_progress", time.Now())

	var rows []model.UnitProgress
	err := s.db.WithContext(ctx).
		Where("learner_id = ?", learnerID).
		Order("updated_at DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) MarkUnitCompleted(ctx context.Context, learnerID, unitID string, score int, now time.Time) (model.UnitProgress, error) {
	defer observe("mark_unit_completed", time.Now())

	res := s.db.WithContext(ctx).Model(&model.UnitProgress{}).
		Where("learner_id = ? AND unit_id = ?", learnerID, unitID).
		UpdateColumns(map[string]any{
			"completed":    true,
			"score":        score,
			"completed_at": gorm.Expr("COALESCE(completed_at, ?)", now),
			"updated_at":   now,
		})
	if res.Error != nil {
		return model.UnitProgress{}, res.Error
	}
	if res.RowsAffected == 0 {
		return model.UnitProgress{}, fmt.Errorf("%w: learner %s unit %s", ErrRowMissing, learnerID, unitID)
	}
	return s.takeUnit(ctx, learnerID, unitID)
}

// assetConflict targets the (learner, asset) unique index.
var assetConflict = []clause.Column{{Name: "learner_id"}, {Name: "asset_id"}}

// stickyCompletion keeps completion of an existing row once it is set.
var stickyCompletion = clause.Set{
	{Column: clause.Column{Name: "completed"}, Value: gorm.Expr("CASE WHEN asset_progress.completed THEN asset_progress.completed ELSE excluded.completed END")},
	{Column: clause.Column{Name: "completed_at"}, Value: gorm.Expr("COALESCE(asset_progress.completed_at, excluded.completed_at)")},
	{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("excluded.updated_at")},
}

func (s *GormStore) UpsertAssetProgress(ctx context.Context, row model.AssetProgress) (model.AssetProgress, error) {
	defer observe("upsert_asset_progress", time.Now())

	s.prepareAsset(&row)
	set := append(clause.Set{
		{Column: clause.Column{Name: "unit_id"}, Value: gorm.Expr("excluded.unit_id")},
		{Column: clause.Column{Name: "progress_percentage"}, Value: gorm.Expr("excluded.progress_percentage")},
		{Column: clause.Column{Name: "seconds_watched"}, Value: gorm.Expr("excluded.seconds_watched")},
		{Column: clause.Column{Name: "duration_seconds"}, Value: gorm.Expr("COALESCE(excluded.duration_seconds, asset_progress.duration_seconds)")},
	}, stickyCompletion...)

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   assetConflict,
		DoUpdates: set,
	}).Create(&row).Error; err != nil {
		return model.AssetProgress{}, err
	}
	return s.takeAsset(ctx, row.LearnerID, row.AssetID)
}

func (s *GormStore) ForceCompleteAsset(ctx context.Context, row model.AssetProgress) (model.AssetProgress, error) {
	defer observe("force_complete_asset", time.Now())

	row.ProgressPercentage = 100
	row.Completed = true
	if row.CompletedAt == nil {
		at := row.UpdatedAt
		row.CompletedAt = &at
	}
	s.prepareAsset(&row)
	set := append(clause.Set{
		{Column: clause.Column{Name: "progress_percentage"}, Value: gorm.Expr("excluded.progress_percentage")},
	}, stickyCompletion...)

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   assetConflict,
		DoUpdates: set,
	}).Create(&row).Error; err != nil {
		return model.AssetProgress{}, err
	}
	return s.takeAsset(ctx, row.LearnerID, row.AssetID)
}

func (s *GormStore) prepareAsset(row *model.AssetProgress) {
	row.ID = s.newID()
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	row.CreatedAt = row.UpdatedAt
}

func (s *GormStore) takeAsset(ctx context.Context, learnerID, assetID string) (model.AssetProgress, error) {
	var out model.AssetProgress
	err := s.db.WithContext(ctx).
		Where("learner_id = ? AND asset_id = ?", learnerID, assetID).
		Take(&out).Error
	return out, err
}

func (s *GormStore) FindAssetProgress(ctx context.Context, learnerID, assetID string) (*model.AssetProgress, error) {
	defer observe("find_asset_progress", time.Now())

	var rows []model.AssetProgress
	if err := s.db.WithContext(ctx).
		Where("learner_id = ? AND asset_id = ?", learnerID, assetID).
		Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *GormStore) ListAssetProgress(ctx context.Context, learnerID string, assetIDs []string) ([]model.AssetProgress, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}
	defer observe("list_asset_progress", time.Now())

	var rows []model.AssetProgress
	err := s.db.WithContext(ctx).
		Where("learner_id = ? AND asset_id IN ?", learnerID, assetIDs).
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) ListUnitAssetProgress(ctx context.Context, learnerID, unitID string) ([]model.AssetProgress, error) {
	defer observe("list_unit_asset_progress", time.Now())

	var rows []model.AssetProgress
	err := s.db.WithContext(ctx).
		Where("learner_id = ? AND unit_id = ?", learnerID, unitID).
		Order("asset_id").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) AppendAttempt(ctx context.Context, attempt model.PronunciationAttempt) (model.PronunciationAttempt, error) {
	defer observe("append_attempt", time.Now())

	attempt.ID = s.newID()
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&attempt).Error; err != nil {
		return model.PronunciationAttempt{}, err
	}
	return attempt, nil
}

func (s *GormStore) ListAttempts(ctx context.Context, learnerID, unitID string) ([]model.PronunciationAttempt, error) {
	defer observe("list_attempts", time.Now())

	var rows []model.PronunciationAttempt
	err := s.db.WithContext(ctx).
		Where("learner_id = ? AND unit_id = ?", learnerID, unitID).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) AttemptStats(ctx context.Context, learnerID, unitID string) (model.AttemptStats, error) {
	defer observe("attempt_stats", time.Now())

	return s.stats(s.db.WithContext(ctx).Where("learner_id = ? AND unit_id = ?", learnerID, unitID))
}

func (s *GormStore) AttemptTotals(ctx context.Context, learnerID string) (model.AttemptStats, error) {
	defer observe("attempt_totals", time.Now())

	return s.stats(s.db.WithContext(ctx).Where("learner_id = ?", learnerID))
}

// stats recomputes count and mean from the full attempt history.
func (s *GormStore) stats(scoped *gorm.DB) (model.AttemptStats, error) {
	var out struct {
		Count   int64
		Average *float64
	}
	if err := scoped.Model(&model.PronunciationAttempt{}).
		Select("COUNT(*) AS count, AVG(score) AS average").
		Scan(&out).Error; err != nil {
		return model.AttemptStats{}, err
	}
	stats := model.AttemptStats{Count: int(out.Count)}
	if out.Average != nil {
		stats.Average = *out.Average
	}
	return stats, nil
}
