package loadevents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"

	"github.com/okian/lingotrack/internal/domain/model"
	"github.com/okian/lingotrack/pkg/logger"
)

// ErrMismatch is returned when the service reports other scores than the
// generated workload implies.
var ErrMismatch = errors.New("progress mismatch")

const pollInterval = 50 * time.Millisecond

// serviceStats is the subset of GET /stats a run watches.
type serviceStats struct {
	Started       bool  `json:"started"`
	QueueLength   int64 `json:"queueLength"`
	ActiveWorkers int64 `json:"activeWorkers"`
	EventsApplied int64 `json:"eventsApplied"`
	EventsFailed  int64 `json:"eventsFailed"`
}

func (s serviceStats) handled() int64 { return s.EventsApplied + s.EventsFailed }

func fetchStats(ctx context.Context, client *httpClient) (serviceStats, error) {
	status, body, err := client.get(ctx, "/stats", "")
	if err != nil {
		return serviceStats{}, fmt.Errorf("fetch stats: %w", err)
	}
	if status != http.StatusOK {
		return serviceStats{}, fmt.Errorf("fetch stats: status %d", status)
	}
	var s serviceStats
	if err := sonic.Unmarshal(body, &s); err != nil {
		return serviceStats{}, fmt.Errorf("decode stats: %w", err)
	}
	return s, nil
}

// waitForDrain polls /stats until the workers have handled every event this
// run got accepted, counted from baseline.
func waitForDrain(ctx context.Context, cfg *Config, client *httpClient, baseline serviceStats, accepted int, log logger.Logger) error {
	log.Info(ctx, "waiting for events to be applied", logger.Int("accepted", accepted))

	ctx, cancel := context.WithTimeout(ctx, cfg.SettleTimeout)
	defer cancel()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		s, err := fetchStats(ctx, client)
		if err == nil && s.handled()-baseline.handled() >= int64(accepted) && s.QueueLength == 0 {
			if failed := s.EventsFailed - baseline.EventsFailed; failed > 0 {
				log.Warn(ctx, "service failed to apply events", logger.Int64("failed", failed))
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("events not applied in %s: %w", cfg.SettleTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

type scoreBody struct {
	UnitID string `json:"unit_id"`
	Score  int    `json:"score"`
}

// verifyResults compares every learner's unit scores with the expected ones
// and checks each learner summary against the generated workload.
func verifyResults(ctx context.Context, cfg *Config, client *httpClient, p *plan, stats *Stats, log logger.Logger) error {
	log.Info(ctx, "verifying scores", logger.Int("units", len(p.expected)))

	targets := make([]target, 0, len(p.expected))
	learners := map[string]bool{}
	for t := range p.expected {
		targets = append(targets, t)
		learners[t.learner] = true
	}

	var checked, mismatched atomic.Int64
	work := make(chan target, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range work {
				got, err := fetchScore(ctx, client, t)
				checked.Add(1)
				if want := p.expected[t]; err != nil || got != want {
					mismatched.Add(1)
					log.Warn(ctx, "unit score mismatch",
						logger.String("learner_id", t.learner),
						logger.String("unit_id", t.unit),
						logger.Int("want", want),
						logger.Int("got", got),
						logger.Error(err),
					)
				}
			}
		}()
	}
	for _, t := range targets {
		work <- t
	}
	close(work)
	wg.Wait()

	wantUnits, wantAttempts := summaryExpectation(cfg)
	for learner := range learners {
		s, err := fetchSummary(ctx, client, learner)
		checked.Add(1)
		if err != nil || s.TotalUnits != wantUnits || s.Pronunciation.Count != wantAttempts {
			mismatched.Add(1)
			log.Warn(ctx, "summary mismatch",
				logger.String("learner_id", learner),
				logger.Int("want_units", wantUnits),
				logger.Int("got_units", s.TotalUnits),
				logger.Int("want_attempts", wantAttempts),
				logger.Int("got_attempts", s.Pronunciation.Count),
				logger.Error(err),
			)
		}
	}

	stats.ScoresChecked = int(checked.Load())
	stats.ScoresMismatched = int(mismatched.Load())
	if stats.ScoresMismatched > 0 {
		return fmt.Errorf("%w: %d of %d checks", ErrMismatch, stats.ScoresMismatched, stats.ScoresChecked)
	}
	log.Info(ctx, "scores verified", logger.Int("checks", stats.ScoresChecked))
	return nil
}

// summaryExpectation counts the units a learner starts through events and
// the attempts recorded across them.
func summaryExpectation(cfg *Config) (units, attempts int) {
	for _, u := range cfg.Units {
		if len(u.Assets) > 0 || cfg.Attempts > 0 {
			units++
		}
	}
	return units, cfg.Attempts * len(cfg.Units)
}

func fetchScore(ctx context.Context, client *httpClient, t target) (int, error) {
	status, body, err := client.get(ctx, "/v1/units/"+url.PathEscape(t.unit)+"/score", t.learner)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("score: status %d", status)
	}
	var out scoreBody
	if err := sonic.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("decode score: %w", err)
	}
	return out.Score, nil
}

func fetchSummary(ctx context.Context, client *httpClient, learner string) (model.Summary, error) {
	status, body, err := client.get(ctx, "/v1/progress/summary", learner)
	if err != nil {
		return model.Summary{}, err
	}
	if status != http.StatusOK {
		return model.Summary{}, fmt.Errorf("summary: status %d", status)
	}
	var out model.Summary
	if err := sonic.Unmarshal(body, &out); err != nil {
		return model.Summary{}, fmt.Errorf("decode summary: %w", err)
	}
	return out, nil
}
