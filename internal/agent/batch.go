package agent

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"batch-agent/pkg/executor"
	"batch-agent/pkg/types"
)

// SkippedMessage is the result message of items not run because an earlier
// item of the group failed.
const SkippedMessage = "skipped: a preceding job in the group failed"

// ProcessRunner runs one program to completion.
type ProcessRunner interface {
	Run(ctx context.Context, task executor.Task) executor.Result
}

// BatchRunner executes the items of a batch group in order. Once an item
// fails, the rest are reported as failures without being run.
type BatchRunner struct {
	runner   ProcessRunner
	reporter Reporter
}

// NewBatchRunner creates a batch runner.
func NewBatchRunner(runner ProcessRunner, reporter Reporter) *BatchRunner {
	return &BatchRunner{runner: runner, reporter: reporter}
}

// Run executes items in the order received and reports each result before
// moving on to the next item. It returns the results in the same order.
func (b *BatchRunner) Run(ctx context.Context, items []types.JobRequestItem) []types.JobResultItem {
	results := make([]types.JobResultItem, 0, len(items))
	failed := false

	for _, item := range items {
		var result types.JobResultItem
		result.Stamp(item, len(items))

		logger := log.With().
			Str("batch_log_id", item.BatchLogID).
			Str("program_id", item.ProgramID).
			Int("order", item.Order).
			Logger()

		if failed {
			now := types.Millis(time.Now())
			result.Status = types.StatusFail
			result.Message = SkippedMessage
			result.StartedAt, result.EndedAt = now, now
			logger.Info().Msg("job skipped")
		} else {
			logger.Info().Str("path", item.Path).Msg("job started")

			res := b.runner.Run(ctx, executor.Task{Path: item.Path, Param: item.Param})
			res.Apply(&result)

			ev := logger.Info()
			if !result.IsSuccess() {
				ev = logger.Warn().Err(res.Err)
				failed = true
			}
			ev.Str("status", result.Status.String()).
				Int("exit_code", res.ExitCode).
				Dur("duration", result.Duration()).
				Msg("job finished")
		}

		b.reporter.Report(ctx, &result)
		results = append(results, result)
	}

	return results
}
