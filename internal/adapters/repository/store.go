// Package repository is the progress store: completion records per
// (learner, unit), consumption records per (learner, asset) and the
// append-only pronunciation attempt log.
package repository

import (
	"context"
	"time"

	"github.com/okian/lingotrack/internal/domain/model"
)

// Store provides learner-scoped read/write access to progress facts.
// Lookups that find nothing return a nil pointer and a nil error.
type Store interface {
	Migrate(ctx context.Context) error

	// EnsureUnitStarted creates the unit row if missing and sets started_at
	// when it is still empty. An existing started_at is never changed.
	EnsureUnitStarted(ctx context.Context, learnerID, unitID string, now time.Time) (model.UnitProgress, error)
	FindUnitProgress(ctx context.Context, learnerID, unitID string) (*model.UnitProgress, error)
	ListUnitProgress(ctx context.Context, learnerID string) ([]model.UnitProgress, error)
	RecentUnitProgress(ctx context.Context, learnerID string, limit int) ([]model.UnitProgress, error)
	// MarkUnitCompleted keeps an already set completed_at.
	MarkUnitCompleted(ctx context.Context, learnerID, unitID string, score int, now time.Time) (model.UnitProgress, error)

	// UpsertAssetProgress writes a consumption record. Completion is sticky:
	// completed and completed_at of an existing completed row survive.
	UpsertAssetProgress(ctx context.Context, row model.AssetProgress) (model.AssetProgress, error)
	// ForceCompleteAsset sets 100% and completed, keeping seconds_watched
	// and any completed_at of an existing row.
	ForceCompleteAsset(ctx context.Context, row model.AssetProgress) (model.AssetProgress, error)
	FindAssetProgress(ctx context.Context, learnerID, assetID string) (*model.AssetProgress, error)
	ListAssetProgress(ctx context.Context, learnerID string, assetIDs []string) ([]model.AssetProgress, error)
	ListUnitAssetProgress(ctx context.Context, learnerID, unitID string) ([]model.AssetProgress, error)

	AppendAttempt(ctx context.Context, attempt model.PronunciationAttempt) (model.PronunciationAttempt, error)
	// ListAttempts returns newest first.
	ListAttempts(ctx context.Context, learnerID, unitID string) ([]model.PronunciationAttempt, error)
	AttemptStats(ctx context.Context, learnerID, unitID string) (model.AttemptStats, error)
	AttemptTotals(ctx context.Context, learnerID string) (model.AttemptStats, error)
}
