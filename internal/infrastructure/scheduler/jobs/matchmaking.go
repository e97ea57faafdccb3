// Package jobs contains the scheduled jobs of the matchmaking worker.
package jobs

import (
	"context"

	"go.uber.org/zap"

	"github.com/studyhub/groupmatch/internal/application/matchmaking"
)

// Runner runs one matchmaking tick over every course.
type Runner interface {
	RunAll(ctx context.Context) (matchmaking.RunReport, error)
}

// MatchmakingJob runs the orchestrator on each scheduler tick.
type MatchmakingJob struct {
	runner Runner
	logger *zap.Logger
}

// NewMatchmakingJob creates a MatchmakingJob.
func NewMatchmakingJob(runner Runner, logger *zap.Logger) *MatchmakingJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchmakingJob{runner: runner, logger: logger.Named("matchmaking_job")}
}

// Name returns the job name.
func (j *MatchmakingJob) Name() string { return "matchmaking" }

// Description returns the job description.
func (j *MatchmakingJob) Description() string {
	return "Forms and fills study groups from each course queue"
}

// Run executes one tick. Per-course failures are reported, not returned;
// only a failure to list courses fails the job.
func (j *MatchmakingJob) Run(ctx context.Context) error {
	report, err := j.runner.RunAll(ctx)
	if err != nil {
		return err
	}
	if report.Failures > 0 {
		j.logger.Warn("matchmaking tick had failures",
			zap.Int("failures", report.Failures),
			zap.Int("groups_formed", report.GroupsFormed))
	}
	return nil
}
