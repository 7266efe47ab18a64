package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/loflimit/pkg/config"
	"github.com/wonny/loflimit/pkg/logger"
)

type countingJob struct {
	name string
	runs atomic.Int32
}

func (j *countingJob) Name() string     { return j.name }
func (j *countingJob) Schedule() string { return "0 0 4 * * *" }
func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return nil
}

func testScheduler() *Scheduler {
	return New(logger.New(&config.Config{LogLevel: "error", LogFormat: "json", Env: "development"}))
}

func TestAddJobRejectsDuplicates(t *testing.T) {
	s := testScheduler()

	require.NoError(t, s.AddJob(&countingJob{name: "sync"}))
	assert.Error(t, s.AddJob(&countingJob{name: "sync"}))
	assert.Equal(t, []string{"sync"}, s.GetAllJobs())
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := testScheduler()

	bad := &badScheduleJob{}
	assert.Error(t, s.AddJob(bad))
}

type badScheduleJob struct{}

func (j *badScheduleJob) Name() string                  { return "bad" }
func (j *badScheduleJob) Schedule() string              { return "not a schedule" }
func (j *badScheduleJob) Run(ctx context.Context) error { return nil }

func TestRunJobRecordsHistory(t *testing.T) {
	s := testScheduler()
	job := &countingJob{name: "rebuild"}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("rebuild"))

	// RunJob executes asynchronously; stats are copied under the lock.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if stats := s.GetJobStats(); stats["rebuild"].TotalRuns > 0 {
			assert.Equal(t, 1, stats["rebuild"].SuccessCount)
			assert.Zero(t, stats["rebuild"].FailureCount)
			assert.EqualValues(t, 1, job.runs.Load())
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("job result never recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunJobUnknown(t *testing.T) {
	s := testScheduler()
	assert.Error(t, s.RunJob("missing"))
}

func TestJobHistoryRolling(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < 150; i++ {
		h.AddResult(JobResult{JobName: "x", Success: i%2 == 0})
	}

	assert.Len(t, h.Results, 100)
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 0.01)
	assert.Len(t, h.GetLatestResults(10), 10)
}
