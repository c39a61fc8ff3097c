package loadevents

import "os"

// ShowHelp prints usage information for the load tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`lingotrack load events
======================

Posts synthetic progress events for many learners and checks the unit scores
and summaries the service reports once its workers have drained.

Usage:
  go run ./cmd/load-events [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8080")
  -learners int
        Number of synthetic learners (default 200)
  -units string
        Units and their assets in catalog order, "u1:a1,a2;u2:a3" (required)
  -attempts int
        Pronunciation attempts per learner and unit (default 2)
  -duplicates float
        Share of events sent twice to exercise deduplication (default 0.05)
  -workers int
        Number of concurrent submitters (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -settle duration
        How long to wait for the workers to apply everything (default 1m)
  -output string
        File to write the generated events to
  -verbose
        Log submission progress every second
  -help
        Show this help message

Examples:
  go run ./cmd/load-events -units "u1:a1,a2;u2:a3"
  go run ./cmd/load-events -learners 2000 -workers 32 -units "u1:a1" -url http://localhost:9090
`)
}
