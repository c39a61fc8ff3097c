package loadevents

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/lingotrack/pkg/logger"
)

// ErrInvalidConfig is returned for settings Run cannot work with.
var ErrInvalidConfig = errors.New("invalid load config")

// Config holds configuration for a load run.
type Config struct {
	BaseURL       string        // Base URL of the service
	Learners      int           // Number of synthetic learners
	Units         []UnitPlan    // Units each learner works through
	Attempts      int           // Pronunciation attempts per learner and unit
	Duplicates    float64       // Share of events sent twice, in [0,1]
	Workers       int           // Number of concurrent submitters
	Timeout       time.Duration // HTTP request timeout
	SettleTimeout time.Duration // How long to wait for the workers to drain
	OutputFile    string        // Optional file for the generated events
	Verbose       bool

	Log logger.Logger
}

// UnitPlan names a catalog unit and its assets in catalog order.
type UnitPlan struct {
	ID     string
	Assets []string
}

// ParseUnits reads "u1:a1,a2;u2:a3" into unit plans. A unit without assets
// is written as "u3:" or "u3".
func ParseUnits(s string) ([]UnitPlan, error) {
	var out []UnitPlan
	seen := map[string]bool{}
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, assets, _ := strings.Cut(part, ":")
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("%w: unit id missing in %q", ErrInvalidConfig, part)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: unit %q listed twice", ErrInvalidConfig, id)
		}
		seen[id] = true

		u := UnitPlan{ID: id}
		for _, a := range strings.Split(assets, ",") {
			if a = strings.TrimSpace(a); a != "" {
				u.Assets = append(u.Assets, a)
			}
		}
		out = append(out, u)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no units", ErrInvalidConfig)
	}
	return out, nil
}

func (c *Config) validate() error {
	switch {
	case strings.TrimSpace(c.BaseURL) == "":
		return fmt.Errorf("%w: base url is empty", ErrInvalidConfig)
	case c.Learners <= 0:
		return fmt.Errorf("%w: learners must be positive", ErrInvalidConfig)
	case len(c.Units) == 0:
		return fmt.Errorf("%w: no units", ErrInvalidConfig)
	case c.Attempts < 0:
		return fmt.Errorf("%w: attempts must not be negative", ErrInvalidConfig)
	case c.Duplicates < 0 || c.Duplicates > 1:
		return fmt.Errorf("%w: duplicates must be within [0,1]", ErrInvalidConfig)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	return nil
}

// Event is one body for POST /v1/progress/events plus the learner it is sent for.
type Event struct {
	LearnerID          string    `json:"-"`
	EventID            string    `json:"event_id"`
	Kind               string    `json:"kind"`
	UnitID             string    `json:"unit_id"`
	TS                 time.Time `json:"ts"`
	AssetID            string    `json:"asset_id,omitempty"`
	SecondsWatched     *float64  `json:"seconds_watched,omitempty"`
	ProgressPercentage *float64  `json:"progress_percentage,omitempty"`
	AudioReference     string    `json:"audio_reference,omitempty"`
	Score              *float64  `json:"score,omitempty"`
}

// AckResponse is the body returned for an accepted or duplicate event.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds run statistics.
type Stats struct {
	EventsGenerated  int
	EventsSubmitted  int
	EventsAccepted   int
	EventsDuplicate  int
	EventsRetried    int
	EventsFailed     int
	ScoresChecked    int
	ScoresMismatched int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
