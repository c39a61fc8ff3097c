// Package progress coordinates learner progress writes: starting units,
// recording asset consumption and pronunciation attempts, scoring and
// completing units.
package progress

import (
	"context"
	"time"

	"github.com/okian/lingotrack/internal/domain/errs"
	"github.com/okian/lingotrack/internal/domain/model"
	"github.com/okian/lingotrack/internal/domain/scoring"
	"github.com/okian/lingotrack/pkg/logger"
	"github.com/okian/lingotrack/pkg/metrics"
)

// Store is the part of the progress store the Coordinator writes through.
type Store interface {
	EnsureUnitStarted(ctx context.Context, learnerID, unitID string, now time.Time) (model.UnitProgress, error)
	MarkUnitCompleted(ctx context.Context, learnerID, unitID string, score int, now time.Time) (model.UnitProgress, error)
	UpsertAssetProgress(ctx context.Context, row model.AssetProgress) (model.AssetProgress, error)
	ForceCompleteAsset(ctx context.Context, row model.AssetProgress) (model.AssetProgress, error)
	ListAssetProgress(ctx context.Context, learnerID string, assetIDs []string) ([]model.AssetProgress, error)
	AppendAttempt(ctx context.Context, attempt model.PronunciationAttempt) (model.PronunciationAttempt, error)
	AttemptStats(ctx context.Context, learnerID, unitID string) (model.AttemptStats, error)
}

// Catalog lists the assets of a unit in catalog order.
type Catalog interface {
	UnitAssets(ctx context.Context, unitID string) ([]model.Asset, error)
}

// PlanSyncer mirrors a completion onto plan entries.
type PlanSyncer interface {
	SyncCompletion(ctx context.Context, learnerID, unitID string, score int) (bool, error)
}

// AssetUpdate is a raw client report of asset consumption. Numbers are
// sanitized before they are stored.
type AssetUpdate struct {
	LearnerID          string
	UnitID             string
	AssetID            string
	SecondsWatched     float64
	ProgressPercentage float64
	DurationSeconds    *float64
	Completed          *bool
}

// AttemptInput is a pre-scored pronunciation attempt.
type AttemptInput struct {
	LearnerID      string
	UnitID         string
	AudioReference string
	Score          float64
	Feedback       *string
}

// Coordinator implements the progress write operations. Every collaborator
// failure is returned as an errs.ErrStore carrying the cause.
type Coordinator struct {
	store   Store
	catalog Catalog
	plans   PlanSyncer
	now     func() time.Time
	log     logger.Logger
}

// New creates a Coordinator.
func New(store Store, catalog Catalog, plans PlanSyncer, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		catalog: catalog,
		plans:   plans,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("progress")
	}
	return c
}

// track records latency and, on failure, the failure kind of an operation.
func (c *Coordinator) track(ctx context.Context, op string, start time.Time, err error) {
	metrics.RecordOperationLatency(op, float64(time.Since(start).Microseconds())/1000)
	if err == nil {
		return
	}
	kind := errs.Label(err)
	metrics.RecordOperationError(op, kind)
	if kind == "store" || kind == "unknown" {
		c.log.Error(ctx, "progress operation failed", logger.String("op", op), logger.Error(err))
	}
}

// StartUnit creates the unit record on first call and stamps started_at once.
// Repeated calls return the existing record unchanged.
func (c *Coordinator) StartUnit(ctx context.Context, learnerID, unitID string) (_ model.UnitProgress, err error) {
	const op = "progress.start_unit"
	defer func(start time.Time) { c.track(ctx, op, start, err) }(time.Now())

	if err := requireIDs(op, learnerID, unitID); err != nil {
		return model.UnitProgress{}, err
	}
	p, err := c.startUnit(ctx, op, learnerID, unitID)
	if err != nil {
		return model.UnitProgress{}, err
	}
	metrics.RecordUnitStart()
	return p, nil
}

func (c *Coordinator) startUnit(ctx context.Context, op, learnerID, unitID string) (model.UnitProgress, error) {
	p, err := c.store.EnsureUnitStarted(ctx, learnerID, unitID, c.now())
	if err != nil {
		return model.UnitProgress{}, errs.WrapKind(op, errs.ErrStore, err)
	}
	return p, nil
}

// UpdateAssetProgress records consumption of one asset and starts the unit
// if needed. The asset completes on an explicit override, otherwise at the
// completion threshold. A completed asset stays completed.
func (c *Coordinator) UpdateAssetProgress(ctx context.Context, in AssetUpdate) (_ model.AssetProgress, err error) {
	const op = "progress.update_asset_progress"
	defer func(start time.Time) { c.track(ctx, op, start, err) }(time.Now())

	if err := requireIDs(op, in.LearnerID, in.UnitID); err != nil {
		return model.AssetProgress{}, err
	}
	if in.AssetID == "" {
		return model.AssetProgress{}, errs.Validation(op, "asset id is required")
	}
	seconds, err := scoring.Seconds(in.SecondsWatched)
	if err != nil {
		return model.AssetProgress{}, errs.WrapKind(op, errs.ErrValidation, err)
	}
	pct, err := scoring.Percent(in.ProgressPercentage)
	if err != nil {
		return model.AssetProgress{}, errs.WrapKind(op, errs.ErrValidation, err)
	}
	var duration *int
	if in.DurationSeconds != nil {
		d, err := scoring.Seconds(*in.DurationSeconds)
		if err != nil {
			return model.AssetProgress{}, errs.WrapKind(op, errs.ErrValidation, err)
		}
		duration = &d
	}

	if _, err := c.startUnit(ctx, op, in.LearnerID, in.UnitID); err != nil {
		return model.AssetProgress{}, err
	}

	now := c.now()
	row := model.AssetProgress{
		LearnerID:          in.LearnerID,
		UnitID:             in.UnitID,
		AssetID:            in.AssetID,
		ProgressPercentage: pct,
		SecondsWatched:     seconds,
		DurationSeconds:    duration,
		Completed:          scoring.AssetCompleted(pct, in.Completed),
		UpdatedAt:          now,
	}
	if row.Completed {
		row.CompletedAt = &now
	}
	out, err := c.store.UpsertAssetProgress(ctx, row)
	if err != nil {
		return model.AssetProgress{}, errs.WrapKind(op, errs.ErrStore, err)
	}
	metrics.RecordAssetUpdate(out.Completed)
	return out, nil
}

// RecordPronunciationAttempt appends an attempt and returns the mean and
// count recomputed over every stored attempt of the unit.
func (c *Coordinator) RecordPronunciationAttempt(ctx context.Context, in AttemptInput) (_ model.AttemptResult, err error) {
	const op = "progress.record_pronunciation_attempt"
	defer func(start time.Time) { c.track(ctx, op, start, err) }(time.Now())

	if err := requireIDs(op, in.LearnerID, in.UnitID); err != nil {
		return model.AttemptResult{}, err
	}
	if in.AudioReference == "" {
		return model.AttemptResult{}, errs.Validation(op, "audio reference is required")
	}
	score, err := scoring.Percent(in.Score)
	if err != nil {
		return model.AttemptResult{}, errs.WrapKind(op, errs.ErrValidation, err)
	}

	if _, err := c.startUnit(ctx, op, in.LearnerID, in.UnitID); err != nil {
		return model.AttemptResult{}, err
	}
	attempt, err := c.store.AppendAttempt(ctx, model.PronunciationAttempt{
		LearnerID:      in.LearnerID,
		UnitID:         in.UnitID,
		AudioReference: in.AudioReference,
		Score:          score,
		Feedback:       in.Feedback,
		CreatedAt:      c.now(),
	})
	if err != nil {
		return model.AttemptResult{}, errs.WrapKind(op, errs.ErrStore, err)
	}
	stats, err := c.store.AttemptStats(ctx, in.LearnerID, in.UnitID)
	if err != nil {
		return model.AttemptResult{}, errs.WrapKind(op, errs.ErrStore, err)
	}
	metrics.RecordPronunciationAttempt()
	return model.AttemptResult{
		Attempt:      attempt,
		AverageScore: stats.Average,
		AttemptCount: stats.Count,
	}, nil
}

// CalculateUnitScore derives the unit score from stored progress. It writes nothing.
func (c *Coordinator) CalculateUnitScore(ctx context.Context, learnerID, unitID string) (_ int, err error) {
	const op = "progress.calculate_unit_score"
	defer func(start time.Time) { c.track(ctx, op, start, err) }(time.Now())

	if err := requireIDs(op, learnerID, unitID); err != nil {
		return 0, err
	}
	assets, err := c.catalog.UnitAssets(ctx, unitID)
	if err != nil {
		return 0, errs.WrapKind(op, errs.ErrStore, err)
	}
	return c.calculate(ctx, op, learnerID, unitID, assets)
}

func (c *Coordinator) calculate(ctx context.Context, op, learnerID, unitID string, assets []model.Asset) (int, error) {
	rows, err := c.store.ListAssetProgress(ctx, learnerID, model.AssetIDs(assets))
	if err != nil {
		return 0, errs.WrapKind(op, errs.ErrStore, err)
	}
	stats, err := c.store.AttemptStats(ctx, learnerID, unitID)
	if err != nil {
		return 0, errs.WrapKind(op, errs.ErrStore, err)
	}
	return scoring.UnitScore(assets, rows, stats), nil
}

// CompleteUnit force-completes every catalog asset of the unit, persists the
// unit as completed with the override or the computed score, then mirrors the
// result onto plan entries. Writes happen in that order so a retry after a
// partial failure finishes the job.
func (c *Coordinator) CompleteUnit(ctx context.Context, learnerID, unitID string, override *float64) (_ model.CompletionResult, err error) {
	const op = "progress.complete_unit"
	defer func(start time.Time) { c.track(ctx, op, start, err) }(time.Now())

	if err := requireIDs(op, learnerID, unitID); err != nil {
		return model.CompletionResult{}, err
	}
	var score int
	if override != nil {
		if score, err = scoring.OverrideScore(*override); err != nil {
			return model.CompletionResult{}, errs.WrapKind(op, errs.ErrValidation, err)
		}
	}

	if _, err := c.startUnit(ctx, op, learnerID, unitID); err != nil {
		return model.CompletionResult{}, err
	}
	assets, err := c.catalog.UnitAssets(ctx, unitID)
	if err != nil {
		return model.CompletionResult{}, errs.WrapKind(op, errs.ErrStore, err)
	}
	if err := c.forceCompleteAssets(ctx, op, learnerID, unitID, assets); err != nil {
		return model.CompletionResult{}, err
	}

	if override == nil {
		if score, err = c.calculate(ctx, op, learnerID, unitID, assets); err != nil {
			return model.CompletionResult{}, err
		}
	}
	p, err := c.store.MarkUnitCompleted(ctx, learnerID, unitID, score, c.now())
	if err != nil {
		return model.CompletionResult{}, errs.WrapKind(op, errs.ErrStore, err)
	}
	metrics.RecordUnitCompletion(p.Score, override != nil)

	planUpdated, err := c.plans.SyncCompletion(ctx, learnerID, unitID, p.Score)
	if err != nil {
		return model.CompletionResult{}, errs.Wrap(op, err)
	}
	c.log.Info(ctx, "unit completed",
		logger.String("learner_id", learnerID),
		logger.String("unit_id", unitID),
		logger.Int("score", p.Score),
		logger.Bool("overridden", override != nil),
		logger.Bool("plan_updated", planUpdated),
	)
	return model.CompletionResult{Progress: p, PlanUpdated: planUpdated}, nil
}

func (c *Coordinator) forceCompleteAssets(ctx context.Context, op, learnerID, unitID string, assets []model.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	rows, err := c.store.ListAssetProgress(ctx, learnerID, model.AssetIDs(assets))
	if err != nil {
		return errs.WrapKind(op, errs.ErrStore, err)
	}
	done := make(map[string]bool, len(rows))
	for i := range rows {
		done[rows[i].AssetID] = rows[i].Completed
	}

	now := c.now()
	for i := range assets {
		a := &assets[i]
		if done[a.ID] {
			continue
		}
		seconds := 0
		if a.DurationSeconds != nil && *a.DurationSeconds > 0 {
			seconds = *a.DurationSeconds
		}
		if _, err := c.store.ForceCompleteAsset(ctx, model.AssetProgress{
			LearnerID:       learnerID,
			UnitID:          unitID,
			AssetID:         a.ID,
			SecondsWatched:  seconds,
			DurationSeconds: a.DurationSeconds,
			CompletedAt:     &now,
			UpdatedAt:       now,
		}); err != nil {
			return errs.WrapKind(op, errs.ErrStore, err)
		}
	}
	return nil
}

func requireIDs(op, learnerID, unitID string) error {
	switch {
	case learnerID == "":
		return errs.Validation(op, "learner id is required")
	case unitID == "":
		return errs.Validation(op, "unit id is required")
	}
	return nil
}
