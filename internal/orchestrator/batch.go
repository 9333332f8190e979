package orchestrator

import (
	"context"
	"errors"

	"github.com/mvanhorn/capscribe/internal/capture"
	"github.com/mvanhorn/capscribe/internal/locator"
)

// Outcome is one video's result in a batch run.
type Outcome struct {
	Video  locator.Video
	Result capture.Result
	Err    error
}

// ProcessAll captures every video in order. A failed video is recorded
// and the batch moves on; only cancellation stops the run early.
func (c *Controller) ProcessAll(ctx context.Context, videos []locator.Video) []Outcome {
	outcomes := make([]Outcome, 0, len(videos))
	for i, video := range videos {
		if i > 0 {
			if err := sleepCtx(ctx, c.cfg.BatchPause); err != nil {
				outcomes = append(outcomes, Outcome{Video: video, Err: err})
				return outcomes
			}
		}

		c.cfg.Sink.Batch(i+1, len(videos))
		res, err := c.Process(ctx, video)
		outcomes = append(outcomes, Outcome{Video: video, Result: res, Err: err})

		if errors.Is(err, context.Canceled) || errors.Is(err, capture.ErrCancelled) {
			return outcomes
		}
	}
	return outcomes
}
