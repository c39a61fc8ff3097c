package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/lingotrack/internal/loadevents"
	"github.com/okian/lingotrack/pkg/logger"
)

// Default configuration constants.
const (
	defaultLearners    = 200
	defaultAttempts    = 2
	defaultDuplicates  = 0.05
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultSettle      = time.Minute
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	var (
		baseURL    = flag.String("url", "http://localhost:8080", "Base URL of the service")
		learners   = flag.Int("learners", defaultLearners, "Number of synthetic learners")
		units      = flag.String("units", "", `Units and their assets, "u1:a1,a2;u2:a3"`)
		attempts   = flag.Int("attempts", defaultAttempts, "Pronunciation attempts per learner and unit")
		duplicates = flag.Float64("duplicates", defaultDuplicates, "Share of events sent twice")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", defaultSettle, "How long to wait for the workers to drain")
		outputFile = flag.String("output", "", "File to write the generated events to")
		verbose    = flag.Bool("verbose", false, "Log submission progress")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadevents.ShowHelp()
		return 0
	}

	if err := logger.Init(); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Named("load-events")

	plans, err := loadevents.ParseUnits(*units)
	if err != nil {
		log.Error(context.Background(), "invalid -units", logger.Error(err))
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultTestTimeout)
	defer cancel()

	_, err = loadevents.Run(ctx, &loadevents.Config{
		BaseURL:       *baseURL,
		Learners:      *learners,
		Units:         plans,
		Attempts:      *attempts,
		Duplicates:    *duplicates,
		Workers:       *workers,
		Timeout:       *timeout,
		SettleTimeout: *settle,
		OutputFile:    *outputFile,
		Verbose:       *verbose,
		Log:           log,
	})
	switch {
	case err == nil:
		return 0
	case errors.Is(err, loadevents.ErrMismatch):
		log.Error(ctx, "load run finished with mismatches", logger.Error(err))
		return 3
	default:
		log.Error(ctx, "load run failed", logger.Error(err))
		return 1
	}
}
