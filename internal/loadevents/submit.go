package loadevents

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"

	"github.com/okian/lingotrack/pkg/logger"
)

const (
	maxBackpressureRetries = 6
	initialBackoff         = 25 * time.Millisecond
	maxBackoff             = time.Second
	reportInterval         = time.Second
)

type outcome int

const (
	outcomeAccepted outcome = iota
	outcomeDuplicate
	outcomeFailed
)

// submitEvents posts events with cfg.Workers concurrent submitters. Events
// refused with 429 are retried with backoff since the service forgets them.
func submitEvents(ctx context.Context, cfg *Config, client *httpClient, events []Event, stats *Stats, log logger.Logger) {
	log.Info(ctx, "submitting events", logger.Int("events", len(events)), logger.Int("workers", cfg.Workers))

	var (
		submitted, accepted, duplicate, retried, failed atomic.Int64
		lastReport                                      atomic.Int64
	)
	lastReport.Store(time.Now().UnixNano())

	eventChan := make(chan int, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range eventChan {
				res, retries := submitSingleEvent(ctx, client, &events[idx])
				submitted.Add(1)
				retried.Add(int64(retries))
				switch res {
				case outcomeAccepted:
					accepted.Add(1)
				case outcomeDuplicate:
					duplicate.Add(1)
				default:
					failed.Add(1)
				}

				last := lastReport.Load()
				if cfg.Verbose && time.Since(time.Unix(0, last)) >= reportInterval &&
					lastReport.CompareAndSwap(last, time.Now().UnixNano()) {
					log.Info(ctx, "submission progress",
						logger.Int64("submitted", submitted.Load()),
						logger.Int("total", len(events)),
						logger.Int64("accepted", accepted.Load()),
						logger.Int64("duplicate", duplicate.Load()),
						logger.Int64("failed", failed.Load()),
					)
				}
			}
		}()
	}

	func() {
		defer close(eventChan)
		for i := range events {
			select {
			case <-ctx.Done():
				return
			case eventChan <- i:
			}
		}
	}()
	wg.Wait()

	stats.EventsSubmitted = int(submitted.Load())
	stats.EventsAccepted = int(accepted.Load())
	stats.EventsDuplicate = int(duplicate.Load())
	stats.EventsRetried = int(retried.Load())
	stats.EventsFailed = int(failed.Load())

	log.Info(ctx, "event submission completed",
		logger.Int("accepted", stats.EventsAccepted),
		logger.Int("duplicate", stats.EventsDuplicate),
		logger.Int("retried", stats.EventsRetried),
		logger.Int("failed", stats.EventsFailed),
	)
}

// submitSingleEvent posts one event and reports how it ended and how many
// backpressure retries it took.
func submitSingleEvent(ctx context.Context, client *httpClient, ev *Event) (outcome, int) {
	backoff := initialBackoff
	for attempt := 0; ; attempt++ {
		status, body, err := client.postEvent(ctx, ev)
		if err != nil {
			return outcomeFailed, attempt
		}
		switch status {
		case http.StatusAccepted:
			return outcomeAccepted, attempt
		case http.StatusOK:
			var ack AckResponse
			if err := sonic.Unmarshal(body, &ack); err == nil && ack.Duplicate {
				return outcomeDuplicate, attempt
			}
			return outcomeFailed, attempt
		case http.StatusTooManyRequests:
			if attempt >= maxBackpressureRetries {
				return outcomeFailed, attempt
			}
			select {
			case <-ctx.Done():
				return outcomeFailed, attempt
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
		default:
			return outcomeFailed, attempt
		}
	}
}
