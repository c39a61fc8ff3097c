// Package scoring reduces a unit's consumption records and pronunciation
// attempts into a single 0-100 score. Nothing in here performs I/O.
package scoring

import (
	"fmt"
	"math"

	"github.com/okian/lingotrack/internal/domain/model"
)

const (
	minScore = 0
	maxScore = 100

	// CompletionThreshold is the progress percentage at which an asset counts as
	// completed when the client sends no explicit override.
	CompletionThreshold = 90.0
)

// Components holds the two independent score signals of a unit. A nil
// component means the signal is absent, which is different from a zero score.
type Components struct {
	Asset         *float64
	Pronunciation *float64
}

// AssetComponent averages progress over every catalog asset of the unit.
// Catalog assets without a progress row count as zero. Progress rows for assets
// outside the catalog list are ignored. Returns false for a unit with no assets.
func AssetComponent(assets []model.Asset, progress []model.AssetProgress) (float64, bool) {
	if len(assets) == 0 {
		return 0, false
	}
	byAsset := make(map[string]float64, len(progress))
	for i := range progress {
		byAsset[progress[i].AssetID] = progress[i].ProgressPercentage
	}
	var sum float64
	for i := range assets {
		sum += byAsset[assets[i].ID]
	}
	return sum / float64(len(assets)), true
}

// PronunciationComponent is the mean of all attempts, or false with no attempts.
func PronunciationComponent(stats model.AttemptStats) (float64, bool) {
	if stats.Count == 0 {
		return 0, false
	}
	return stats.Average, true
}

// Compose builds both components for a unit.
func Compose(assets []model.Asset, progress []model.AssetProgress, stats model.AttemptStats) Components {
	var c Components
	if v, ok := AssetComponent(assets, progress); ok {
		c.Asset = &v
	}
	if v, ok := PronunciationComponent(stats); ok {
		c.Pronunciation = &v
	}
	return c
}

// Score returns the unweighted average of the present components, 0 when none is present.
func (c Components) Score() int {
	switch {
	case c.Asset != nil && c.Pronunciation != nil:
		return Round((*c.Asset + *c.Pronunciation) / 2)
	case c.Asset != nil:
		return Round(*c.Asset)
	case c.Pronunciation != nil:
		return Round(*c.Pronunciation)
	default:
		return 0
	}
}

// UnitScore is Compose followed by Score.
func UnitScore(assets []model.Asset, progress []model.AssetProgress, stats model.AttemptStats) int {
	return Compose(assets, progress, stats).Score()
}

// Round rounds half away from zero and clamps to [0,100].
func Round(v float64) int {
	if math.IsNaN(v) {
		return minScore
	}
	return int(math.Round(clamp(v, minScore, maxScore)))
}

// Percent clamps a percentage or score to [0,100]. Infinities are clamped too.
func Percent(v float64) (float64, error) {
	if math.IsNaN(v) {
		return 0, fmt.Errorf("percent: %w", ErrNotANumber)
	}
	return clamp(v, minScore, maxScore), nil
}

// Seconds floors a duration to a non-negative whole number of seconds.
func Seconds(v float64) (int, error) {
	if math.IsNaN(v) {
		return 0, fmt.Errorf("seconds: %w", ErrNotANumber)
	}
	if v <= 0 {
		return 0, nil
	}
	if v >= math.MaxInt32 {
		return math.MaxInt32, nil
	}
	return int(math.Floor(v)), nil
}

// OverrideScore turns a client supplied final score into a persisted integer score.
func OverrideScore(v float64) (int, error) {
	p, err := Percent(v)
	if err != nil {
		return 0, err
	}
	return Round(p), nil
}

// AssetCompleted applies the completion policy: an explicit override wins,
// otherwise the asset completes at CompletionThreshold.
func AssetCompleted(progress float64, override *bool) bool {
	if override != nil {
		return *override
	}
	return progress >= CompletionThreshold
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
