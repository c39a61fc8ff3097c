// Package report builds read-only progress rollups per unit, per story and
// per learner.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/okian/lingotrack/internal/domain/errs"
	"github.com/okian/lingotrack/internal/domain/model"
	"github.com/okian/lingotrack/pkg/logger"
	"github.com/okian/lingotrack/pkg/metrics"
)

// RecentLimit is the number of recently updated units in a summary.
const RecentLimit = 10

// Store is the read side of the progress store.
type Store interface {
	FindUnitProgress(ctx context.Context, learnerID, unitID string) (*model.UnitProgress, error)
	ListUnitProgress(ctx context.Context, learnerID string) ([]model.UnitProgress, error)
	RecentUnitProgress(ctx context.Context, learnerID string, limit int) ([]model.UnitProgress, error)
	ListUnitAssetProgress(ctx context.Context, learnerID, unitID string) ([]model.AssetProgress, error)
	ListAttempts(ctx context.Context, learnerID, unitID string) ([]model.PronunciationAttempt, error)
	AttemptStats(ctx context.Context, learnerID, unitID string) (model.AttemptStats, error)
	AttemptTotals(ctx context.Context, learnerID string) (model.AttemptStats, error)
}

// Catalog supplies curriculum metadata for joins.
type Catalog interface {
	UnitAssets(ctx context.Context, unitID string) ([]model.Asset, error)
	StoryUnits(ctx context.Context, storyID string) ([]model.Unit, error)
	Units(ctx context.Context, ids []string) ([]model.Unit, error)
	Stories(ctx context.Context, ids []string) ([]model.Story, error)
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.log = l
		}
	}
}

// Reporter composes store queries with catalog metadata.
type Reporter struct {
	store   Store
	catalog Catalog
	log     logger.Logger
}

// New creates a Reporter.
func New(store Store, catalog Catalog, opts ...Option) *Reporter {
	r := &Reporter{store: store, catalog: catalog}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Get().Named("report")
	}
	return r
}

func (r *Reporter) track(ctx context.Context, op string, start time.Time, err error) {
	metrics.RecordOperationLatency(op, float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		metrics.RecordOperationError(op, errs.Label(err))
		if errs.KindOf(err) != errs.ErrNotFound {
			r.log.Error(ctx, "report failed", logger.String("op", op), logger.Error(err))
		}
	}
}

// UnitProgress returns the unit record (nil when never started), its
// attempts newest first and its asset rows joined with catalog metadata.
func (r *Reporter) UnitProgress(ctx context.Context, learnerID, unitID string) (_ model.UnitDetail, err error) {
	const op = "report.unit_progress"
	defer func(start time.Time) { r.track(ctx, op, start, err) }(time.Now())

	p, err := r.store.FindUnitProgress(ctx, learnerID, unitID)
	if err != nil {
		return model.UnitDetail{}, errs.WrapKind(op, errs.ErrStore, err)
	}
	attempts, err := r.store.ListAttempts(ctx, learnerID, unitID)
	if err != nil {
		return model.UnitDetail{}, errs.WrapKind(op, errs.ErrStore, err)
	}
	rows, err := r.store.ListUnitAssetProgress(ctx, learnerID, unitID)
	if err != nil {
		return model.UnitDetail{}, errs.WrapKind(op, errs.ErrStore, err)
	}
	assets, err := r.catalog.UnitAssets(ctx, unitID)
	if err != nil {
		return model.UnitDetail{}, errs.WrapKind(op, errs.ErrStore, err)
	}

	return model.UnitDetail{
		Progress: p,
		Attempts: attempts,
		Assets:   joinAssets(assets, rows),
	}, nil
}

// joinAssets orders rows by catalog position. Rows for assets missing from
// the catalog go last without metadata.
func joinAssets(assets []model.Asset, rows []model.AssetProgress) []model.AssetDetail {
	byID := make(map[string]model.AssetProgress, len(rows))
	for _, row := range rows {
		byID[row.AssetID] = row
	}
	out := make([]model.AssetDetail, 0, len(rows))
	for _, a := range assets {
		row, ok := byID[a.ID]
		if !ok {
			continue
		}
		out = append(out, model.AssetDetail{AssetProgress: row, AssetType: a.AssetType, StorageKey: a.StorageKey})
		delete(byID, a.ID)
	}
	for _, row := range rows {
		if _, stray := byID[row.AssetID]; stray {
			out = append(out, model.AssetDetail{AssetProgress: row})
		}
	}
	return out
}

// Summary aggregates every unit the learner touched.
func (r *Reporter) Summary(ctx context.Context, learnerID string) (_ model.Summary, err error) {
	const op = "report.summary"
	defer func(start time.Time) { r.track(ctx, op, start, err) }(time.Now())

	rows, err := r.store.ListUnitProgress(ctx, learnerID)
	if err != nil {
		return model.Summary{}, errs.WrapKind(op, errs.ErrStore, err)
	}
	totals, err := r.store.AttemptTotals(ctx, learnerID)
	if err != nil {
		return model.Summary{}, errs.WrapKind(op, errs.ErrStore, err)
	}
	recent, err := r.store.RecentUnitProgress(ctx, learnerID, RecentLimit)
	if err != nil {
		return model.Summary{}, errs.WrapKind(op, errs.ErrStore, err)
	}
	stories, err := r.storyRollups(ctx, rows)
	if err != nil {
		return model.Summary{}, errs.WrapKind(op, errs.ErrStore, err)
	}

	sum := model.Summary{
		TotalUnits:    len(rows),
		Pronunciation: totals,
		Recent:        recent,
		Stories:       stories,
	}
	var acc mean
	for i := range rows {
		switch {
		case rows[i].Completed:
			sum.CompletedUnits++
			acc.add(rows[i].Score)
		case rows[i].InProgress():
			sum.InProgressUnits++
		}
	}
	sum.AverageScore = acc.value()
	return sum, nil
}

func (r *Reporter) storyRollups(ctx context.Context, rows []model.UnitProgress) ([]model.StoryRollup, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].UnitID
	}
	units, err := r.catalog.Units(ctx, ids)
	if err != nil {
		return nil, err
	}
	storyOf := make(map[string]string, len(units))
	var storyIDs []string
	seen := map[string]bool{}
	for _, u := range units {
		storyOf[u.ID] = u.StoryID
		if !seen[u.StoryID] {
			seen[u.StoryID] = true
			storyIDs = append(storyIDs, u.StoryID)
		}
	}
	stories, err := r.catalog.Stories(ctx, storyIDs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(stories, func(i, j int) bool {
		if stories[i].Position != stories[j].Position {
			return stories[i].Position < stories[j].Position
		}
		return stories[i].ID < stories[j].ID
	})

	type tally struct {
		total, completed int
		scores           mean
	}
	tallies := map[string]*tally{}
	for i := range rows {
		sid, ok := storyOf[rows[i].UnitID]
		if !ok {
			continue
		}
		t := tallies[sid]
		if t == nil {
			t = &tally{}
			tallies[sid] = t
		}
		t.total++
		if rows[i].Completed {
			t.completed++
			t.scores.add(rows[i].Score)
		}
	}

	out := make([]model.StoryRollup, 0, len(stories))
	for _, s := range stories {
		t := tallies[s.ID]
		if t == nil {
			continue
		}
		out = append(out, model.StoryRollup{
			StoryID:        s.ID,
			StoryTitle:     s.Title,
			TotalUnits:     t.total,
			CompletedUnits: t.completed,
			AverageScore:   t.scores.value(),
		})
	}
	return out, nil
}

// StoryProgress lists every catalog unit of the story in catalog order with
// the learner's state. Untouched units report zero values.
func (r *Reporter) StoryProgress(ctx context.Context, learnerID, storyID string) (_ model.StoryProgress, err error) {
	const op = "report.story_progress"
	defer func(start time.Time) { r.track(ctx, op, start, err) }(time.Now())

	units, err := r.catalog.StoryUnits(ctx, storyID)
	if err != nil {
		return model.StoryProgress{}, errs.WrapKind(op, errs.ErrStore, err)
	}
	if len(units) == 0 {
		return model.StoryProgress{}, errs.NewKind(op, errs.ErrNotFound)
	}

	out := model.StoryProgress{StoryID: storyID, Units: make([]model.UnitStatus, 0, len(units))}
	for _, u := range units {
		p, err := r.store.FindUnitProgress(ctx, learnerID, u.ID)
		if err != nil {
			return model.StoryProgress{}, errs.WrapKind(op, errs.ErrStore, err)
		}
		stats, err := r.store.AttemptStats(ctx, learnerID, u.ID)
		if err != nil {
			return model.StoryProgress{}, errs.WrapKind(op, errs.ErrStore, err)
		}
		st := model.UnitStatus{
			UnitID:         u.ID,
			Title:          u.Title,
			Position:       u.Position,
			AttemptCount:   stats.Count,
			AttemptAverage: stats.Average,
		}
		if p != nil {
			st.Completed = p.Completed
			st.Score = p.Score
			st.StartedAt = p.StartedAt
			st.CompletedAt = p.CompletedAt
			if p.Completed {
				out.CompletedUnits++
			}
		}
		out.Units = append(out.Units, st)
	}
	return out, nil
}

// mean is an arithmetic mean over integer scores; zero when empty.
type mean struct {
	sum   int
	count int
}

func (m *mean) add(v int) {
	m.sum += v
	m.count++
}

func (m *mean) value() float64 {
	if m.count == 0 {
		return 0
	}
	return float64(m.sum) / float64(m.count)
}
