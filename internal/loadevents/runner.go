// Package loadevents drives a running service with synthetic progress
// events and checks the unit scores it reports afterwards.
package loadevents

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"

	"github.com/okian/lingotrack/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
	percentMultiplier   = 100
)

// Run executes a complete load run: health check, generate, submit, wait
// for the workers to drain, verify.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		log = logger.Get().Named("loadevents")
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = time.Minute
	}

	stats := &Stats{StartTime: time.Now()}
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("learners", cfg.Learners),
		logger.Int("units", len(cfg.Units)),
		logger.Int("attempts", cfg.Attempts),
		logger.Int("workers", cfg.Workers),
	)

	if err := checkServiceHealth(ctx, client, log); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}
	baseline, err := fetchStats(ctx, client)
	if err != nil {
		return stats, err
	}
	if !baseline.Started {
		return stats, fmt.Errorf("service workers are not started")
	}

	p, err := generate(ctx, cfg, log)
	if err != nil {
		return stats, fmt.Errorf("event generation failed: %w", err)
	}
	stats.EventsGenerated = len(p.events)

	submitEvents(ctx, cfg, client, p.events, stats, log)
	if stats.EventsFailed > 0 {
		log.Warn(ctx, "some events were not accepted", logger.Int("failed", stats.EventsFailed))
	}

	if err := waitForDrain(ctx, cfg, client, baseline, stats.EventsAccepted, log); err != nil {
		return stats, err
	}
	verifyErr := verifyResults(ctx, cfg, client, &p, stats, log)

	if cfg.OutputFile != "" {
		if err := saveEventsToFile(cfg.OutputFile, p.events); err != nil {
			log.Warn(ctx, "failed to save events to file", logger.Error(err))
		} else {
			log.Info(ctx, "events saved to file", logger.String("filename", cfg.OutputFile))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats, log)
	return stats, verifyErr
}

// checkServiceHealth verifies the service and its database answer.
func checkServiceHealth(ctx context.Context, client *httpClient, log logger.Logger) error {
	status, _, err := client.get(ctx, "/healthz", "")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("health check returned status %d", status)
	}
	log.Info(ctx, "service is healthy")
	return nil
}

// saveEventsToFile writes the generated events as a JSON array.
func saveEventsToFile(filename string, events []Event) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	// learner ids are not part of the wire body, so keep them next to each event
	type record struct {
		LearnerID string `json:"learner_id"`
		Event     Event  `json:"event"`
	}
	out := make([]record, len(events))
	for i := range events {
		out[i] = record{LearnerID: events[i].LearnerID, Event: events[i]}
	}
	data, err := sonic.ConfigStd.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	return os.WriteFile(filename, data, filePermission)
}

func displayFinalStats(ctx context.Context, stats *Stats, log logger.Logger) {
	var acceptRate, eventsPerSecond float64
	if stats.EventsSubmitted > 0 {
		acceptRate = float64(stats.EventsAccepted+stats.EventsDuplicate) / float64(stats.EventsSubmitted) * percentMultiplier
	}
	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsSubmitted", stats.EventsSubmitted),
		logger.Int("eventsAccepted", stats.EventsAccepted),
		logger.Int("eventsDuplicate", stats.EventsDuplicate),
		logger.Int("eventsRetried", stats.EventsRetried),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Int("scoresChecked", stats.ScoresChecked),
		logger.Int("scoresMismatched", stats.ScoresMismatched),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("eventsPerSecond", eventsPerSecond),
	)
}
