package progress

import (
	"context"
	"fmt"

	"github.com/okian/lingotrack/internal/domain/errs"
	"github.com/okian/lingotrack/internal/domain/model"
)

// Apply routes an asynchronous progress event to the matching operation.
func (c *Coordinator) Apply(ctx context.Context, ev model.ProgressEvent) error {
	switch ev.Kind {
	case model.EventAsset:
		_, err := c.UpdateAssetProgress(ctx, AssetUpdate{
			LearnerID:          ev.LearnerID,
			UnitID:             ev.UnitID,
			AssetID:            ev.AssetID,
			SecondsWatched:     ev.SecondsWatched,
			ProgressPercentage: ev.ProgressPercentage,
			DurationSeconds:    ev.DurationSeconds,
			Completed:          ev.Completed,
		})
		return err
	case model.EventPronunciation:
		_, err := c.RecordPronunciationAttempt(ctx, AttemptInput{
			LearnerID:      ev.LearnerID,
			UnitID:         ev.UnitID,
			AudioReference: ev.AudioReference,
			Score:          ev.Score,
			Feedback:       ev.Feedback,
		})
		return err
	default:
		return errs.Validation("progress.apply", fmt.Sprintf("unknown event kind %q", ev.Kind))
	}
}
