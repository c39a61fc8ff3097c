package loadevents

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/okian/lingotrack/internal/domain/model"
	"github.com/okian/lingotrack/internal/domain/scoring"
	"github.com/okian/lingotrack/pkg/logger"
)

// Progress bands a learner's asset consumption is drawn from.
const (
	bandStruggling = iota
	bandAverage
	bandStrong
	bandFinisher
	bandCount
)

// target identifies one learner's unit.
type target struct {
	learner string
	unit    string
}

// plan is the generated workload and the unit scores it should produce.
type plan struct {
	events   []Event
	expected map[target]int
}

func randInt(n int64) int64 {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0
	}
	return v.Int64()
}

// randomProgress returns a whole percentage so averages stay exact.
func randomProgress() float64 {
	switch randInt(bandCount) {
	case bandStruggling:
		return float64(randInt(40))
	case bandAverage:
		return float64(40 + randInt(40))
	case bandStrong:
		return float64(80 + randInt(20))
	default:
		return 100
	}
}

func randomAttemptScore() float64 {
	return float64(30 + randInt(71))
}

// generate builds one asset event per learner and asset plus the configured
// number of pronunciation attempts per learner and unit. Each asset gets a
// single report, so the stored progress does not depend on apply order.
func generate(ctx context.Context, cfg *Config, log logger.Logger) (plan, error) {
	p := plan{expected: make(map[target]int, cfg.Learners*len(cfg.Units))}
	now := time.Now().UTC()

	for i := 0; i < cfg.Learners; i++ {
		if err := ctx.Err(); err != nil {
			return plan{}, fmt.Errorf("generation cancelled: %w", err)
		}
		learner := "load-" + uuid.NewString()

		for _, u := range cfg.Units {
			assets := make([]model.Asset, 0, len(u.Assets))
			rows := make([]model.AssetProgress, 0, len(u.Assets))
			for _, assetID := range u.Assets {
				pct := randomProgress()
				secs := pct * 0.6
				p.events = append(p.events, Event{
					LearnerID:          learner,
					EventID:            uuid.NewString(),
					Kind:               string(model.EventAsset),
					UnitID:             u.ID,
					TS:                 now,
					AssetID:            assetID,
					SecondsWatched:     &secs,
					ProgressPercentage: &pct,
				})
				assets = append(assets, model.Asset{ID: assetID, UnitID: u.ID})
				rows = append(rows, model.AssetProgress{AssetID: assetID, ProgressPercentage: pct})
			}

			var sum float64
			for n := 0; n < cfg.Attempts; n++ {
				score := randomAttemptScore()
				sum += score
				p.events = append(p.events, Event{
					LearnerID:      learner,
					EventID:        uuid.NewString(),
					Kind:           string(model.EventPronunciation),
					UnitID:         u.ID,
					TS:             now,
					AudioReference: fmt.Sprintf("load/%s/%s/%d.m4a", learner, u.ID, n),
					Score:          &score,
				})
			}
			stats := model.AttemptStats{Count: cfg.Attempts}
			if cfg.Attempts > 0 {
				stats.Average = sum / float64(cfg.Attempts)
			}
			p.expected[target{learner: learner, unit: u.ID}] = scoring.UnitScore(assets, rows, stats)
		}
	}

	p.events = withDuplicates(p.events, cfg.Duplicates)
	log.Info(ctx, "generated events",
		logger.Int("learners", cfg.Learners),
		logger.Int("units", len(cfg.Units)),
		logger.Int("events", len(p.events)),
	)
	return p, nil
}

// withDuplicates appends a resend of roughly share of the events. A resend
// keeps its event id and must be acknowledged without being applied again.
func withDuplicates(events []Event, share float64) []Event {
	if share <= 0 {
		return events
	}
	const scale = 1_000_000
	cut := int64(share * scale)
	n := len(events)
	for i := 0; i < n; i++ {
		if randInt(scale) < cut {
			events = append(events, events[i])
		}
	}
	return events
}
