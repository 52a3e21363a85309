package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-ingest/pkg/logger"
)

type countingJob struct {
	name     string
	schedule string
	failures int32 // calls that fail before the first success
	calls    int32
	block    chan struct{}
}

func (j *countingJob) Name() string     { return j.name }
func (j *countingJob) Schedule() string { return j.schedule }

func (j *countingJob) Run(ctx context.Context) error {
	n := atomic.AddInt32(&j.calls, 1)
	if j.block != nil {
		<-j.block
	}
	if n <= j.failures {
		return errors.New("provider unavailable")
	}
	return nil
}

func TestAddAndRemoveJob(t *testing.T) {
	s := New(logger.Nop(), 0, 0)
	job := &countingJob{name: "daily_update", schedule: "0 0 18 * * 1-5"}

	require.NoError(t, s.AddJob(job))
	assert.Error(t, s.AddJob(job), "duplicate names are rejected")
	assert.Error(t, s.AddJob(&countingJob{name: "bad", schedule: "not a schedule"}))
	assert.Equal(t, []string{"daily_update"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("daily_update"))
	assert.Error(t, s.RemoveJob("daily_update"))
	assert.Empty(t, s.GetAllJobs())
	assert.Empty(t, s.cron.Entries())
}

func TestRunJobRetries(t *testing.T) {
	s := New(logger.Nop(), 2, time.Millisecond)
	job := &countingJob{name: "health_check", schedule: "@daily", failures: 2}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJob(context.Background(), "health_check")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Empty(t, result.Error)

	_, err = s.RunJob(context.Background(), "missing")
	assert.Error(t, err)
}

func TestRunJobExhaustsRetries(t *testing.T) {
	s := New(logger.Nop(), 1, time.Millisecond)
	job := &countingJob{name: "daily_update", schedule: "@daily", failures: 10}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJob(context.Background(), "daily_update")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, "provider unavailable", result.Error)

	stats := s.GetJobStats()["daily_update"]
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.FailureCount)
	require.NotNil(t, stats.LastFailure)
	assert.Nil(t, stats.LastSuccess)
}

func TestRunJobStopsOnCancel(t *testing.T) {
	s := New(logger.Nop(), 5, time.Hour)
	job := &countingJob{name: "daily_update", schedule: "@daily", failures: 10}
	require.NoError(t, s.AddJob(job))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := s.RunJob(ctx, "daily_update")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
}

func TestRunJobSkipsOverlap(t *testing.T) {
	s := New(logger.Nop(), 0, 0)
	job := &countingJob{name: "daily_update", schedule: "@daily", block: make(chan struct{})}
	require.NoError(t, s.AddJob(job))

	done := make(chan JobResult)
	go func() {
		r, _ := s.RunJob(context.Background(), "daily_update")
		done <- r
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&job.calls) == 1 }, time.Second, time.Millisecond)

	second, err := s.RunJob(context.Background(), "daily_update")
	require.NoError(t, err)
	assert.True(t, second.Skipped)

	close(job.block)
	first := <-done
	assert.True(t, first.Success)
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	assert.Equal(t, 0.0, h.GetSuccessRate())
	assert.Empty(t, h.GetLatestResults(5))

	for i := 0; i < maxHistory+10; i++ {
		h.AddResult(JobResult{Success: i%2 == 0})
	}
	assert.Len(t, h.Results, maxHistory)
	assert.Len(t, h.GetLatestResults(3), 3)
	assert.Len(t, h.GetFailedResults(), maxHistory/2)
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 1e-9)
}
