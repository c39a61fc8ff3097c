// Package service assembles the progress engine: store, catalog, plan
// adapters, the coordinator and reporter on top of them, and the
// asynchronous event pipeline.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/okian/lingotrack/internal/adapters/catalog"
	eventqueue "github.com/okian/lingotrack/internal/adapters/mq/queue"
	workerpool "github.com/okian/lingotrack/internal/adapters/mq/worker"
	"github.com/okian/lingotrack/internal/adapters/plan"
	"github.com/okian/lingotrack/internal/adapters/repository"
	"github.com/okian/lingotrack/internal/app/plansync"
	"github.com/okian/lingotrack/internal/app/progress"
	"github.com/okian/lingotrack/internal/app/report"
	"github.com/okian/lingotrack/internal/domain/dedupe"
	"github.com/okian/lingotrack/internal/domain/model"
	"github.com/okian/lingotrack/pkg/logger"
	"github.com/okian/lingotrack/pkg/metrics"
)

// ErrNotStarted is returned by operations that need Start to have run.
var ErrNotStarted = errors.New("service not started")

const (
	defaultQueueSize   = 10_000
	defaultWorkerCount = 8
	defaultDedupeSize  = 50_000
)

// Service owns the lifecycle of every progress component.
type Service struct {
	mu sync.RWMutex

	db  *gorm.DB
	rdb redis.Cmdable

	store       *repository.GormStore
	catalog     catalog.Catalog
	coordinator *progress.Coordinator
	reporter    *report.Reporter
	deduper     dedupe.Deduper
	eventQueue  *eventqueue.InMemoryQueue
	workerPool  *workerpool.Pool

	workerCount int
	queueSize   int
	dedupeSize  int
	autoMigrate bool
	cacheTTL    time.Duration
	clock       func() time.Time

	started      bool
	cancelWorker context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of event workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize bounds the event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds the number of remembered event keys.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithAutoMigrate creates missing tables on Start.
func WithAutoMigrate(enabled bool) Option {
	return func(s *Service) {
		s.autoMigrate = enabled
	}
}

// WithCatalogCache puts a Redis read-through cache in front of the catalog.
func WithCatalogCache(rdb redis.Cmdable, ttl time.Duration) Option {
	return func(s *Service) {
		s.rdb = rdb
		s.cacheTTL = ttl
	}
}

// WithClock overrides the coordinator's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service over an open database. Nothing runs until Start.
func New(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:          db,
		workerCount: defaultWorkerCount,
		queueSize:   defaultQueueSize,
		dedupeSize:  defaultDedupeSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the components and launches the workers. The workers keep
// running after ctx is cancelled; Stop ends them.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting progress service...")

	s.store = repository.NewGormStore(s.db)
	gormCatalog := catalog.NewGormCatalog(s.db)
	plans := plan.NewGormStore(s.db)

	if s.autoMigrate {
		if err := s.migrate(ctx, gormCatalog, plans); err != nil {
			return err
		}
	}

	s.catalog = gormCatalog
	if s.rdb != nil {
		s.catalog = catalog.NewCachedCatalog(gormCatalog, s.rdb,
			catalog.WithTTL(s.cacheTTL),
			catalog.WithLogger(s.logger.Named("catalog_cache")),
		)
		s.logger.Info(ctx, "catalog cache enabled", logger.String("ttl", s.cacheTTL.String()))
	}

	coordOpts := []progress.Option{progress.WithLogger(s.logger.Named("progress"))}
	if s.clock != nil {
		coordOpts = append(coordOpts, progress.WithClock(s.clock))
	}
	syncer := plansync.New(plans, plansync.WithLogger(s.logger.Named("plansync")))
	s.coordinator = progress.New(s.store, s.catalog, syncer, coordOpts...)
	s.reporter = report.New(s.store, s.catalog, report.WithLogger(s.logger.Named("report")))

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.coordinator,
		workerpool.WithPoolLogger(s.logger.Named("worker-pool")),
		workerpool.WithWorkerOptions(workerpool.WithFailureHandler(s.forgetFailed)),
	)

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelWorker = cancel
	s.workerPool.Start(workerCtx)

	s.started = true
	s.logger.Info(ctx, "progress service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

func (s *Service) migrate(ctx context.Context, migrators ...interface{ Migrate(context.Context) error }) error {
	if err := s.store.Migrate(ctx); err != nil {
		return err
	}
	for _, m := range migrators {
		if err := m.Migrate(ctx); err != nil {
			return err
		}
	}
	s.logger.Info(ctx, "database schema migrated")
	return nil
}

// forgetFailed lets a client retry an event that could not be applied.
func (s *Service) forgetFailed(ctx context.Context, ev model.ProgressEvent, _ error) { //nolint:gocritic // hugeParam: matches FailureHandler
	s.deduper.Unrecord(ctx, ev.DedupeKey())
}

// Stop closes the queue, waits for the workers to drain it until ctx
// expires, then releases them.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping progress service...")

	err := s.workerPool.Shutdown(ctx)
	if err != nil {
		s.logger.Warn(ctx, "event queue not fully drained", logger.Error(err))
	}
	s.cancelWorker()

	s.started = false
	s.logger.Info(ctx, "progress service stopped")
	return err
}

// Coordinator returns the progress write path. Nil before Start.
func (s *Service) Coordinator() *progress.Coordinator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coordinator
}

// Reporter returns the read path. Nil before Start.
func (s *Service) Reporter() *report.Reporter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reporter
}

// Catalog returns the catalog, cached when a Redis client was configured.
// Nil before Start.
func (s *Service) Catalog() catalog.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// SeenAndRecord reports whether key was already accepted, recording it if not.
func (s *Service) SeenAndRecord(ctx context.Context, key string) bool {
	seen := s.deduper.SeenAndRecord(ctx, key)
	if seen {
		metrics.RecordEventDuplicate()
	}
	return seen
}

// Unrecord forgets key so the event can be submitted again.
func (s *Service) Unrecord(ctx context.Context, key string) {
	s.deduper.Unrecord(ctx, key)
}

// Size returns the number of remembered event keys.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// Enqueue hands an event to the workers without blocking. It returns
// eventqueue.ErrFull on backpressure.
func (s *Service) Enqueue(ctx context.Context, ev model.ProgressEvent) error { //nolint:gocritic // hugeParam: events are values
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}
	if err := s.eventQueue.Enqueue(ctx, ev); err != nil {
		return err
	}
	metrics.RecordEventAccepted()
	s.logger.Debug(ctx, "event enqueued",
		logger.String("event_id", ev.EventID),
		logger.String("learner_id", ev.LearnerID),
		logger.String("kind", string(ev.Kind)),
	)
	return nil
}

// Ping checks the database connection.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":      s.started,
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
		"dedupeSize":   s.dedupeSize,
		"catalogCache": s.rdb != nil,
	}
	if s.started {
		queueLen := s.eventQueue.Len()
		stats["queueLength"] = queueLen
		stats["dedupeEntries"] = s.deduper.Size()
		stats["activeWorkers"] = s.workerPool.Active()
		stats["eventsApplied"] = s.workerPool.Processed()
		stats["eventsFailed"] = s.workerPool.Failed()

		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}
