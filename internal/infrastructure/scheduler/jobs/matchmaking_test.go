package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/studyhub/groupmatch/internal/application/matchmaking"
)

type stubRunner struct {
	report matchmaking.RunReport
	err    error
	calls  int
}

func (r *stubRunner) RunAll(context.Context) (matchmaking.RunReport, error) {
	r.calls++
	return r.report, r.err
}

func TestMatchmakingJob(t *testing.T) {
	r := &stubRunner{report: matchmaking.RunReport{GroupsFormed: 1, Failures: 2}}
	job := NewMatchmakingJob(r, nil)

	assert.Equal(t, "matchmaking", job.Name())
	assert.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, r.calls)

	r.err = errors.New("db down")
	assert.EqualError(t, job.Run(context.Background()), "db down")
}
