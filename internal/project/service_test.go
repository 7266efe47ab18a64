package project

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/loflimit/internal/contracts"
	"github.com/wonny/loflimit/pkg/config"
	"github.com/wonny/loflimit/pkg/logger"
)

type stubIntervals struct {
	byTicker map[string][]*contracts.CanonicalInterval
	err      error
	calls    int
}

func (s *stubIntervals) GetByTicker(_ context.Context, ticker string) ([]*contracts.CanonicalInterval, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.byTicker[ticker], nil
}

func (s *stubIntervals) ApplyDelta(context.Context, string, []int64, *contracts.IntervalDelta) error {
	return errors.New("read-only stub")
}

func (s *stubIntervals) ListTickers(context.Context) ([]string, error) {
	return nil, nil
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func testLogger() *logger.Logger {
	return logger.New(&config.Config{LogLevel: "error", LogFormat: "json", Env: "development"})
}

func TestProjectWithoutCache(t *testing.T) {
	end := day("2025-01-20")
	ceiling := 100.0
	repo := &stubIntervals{byTicker: map[string][]*contracts.CanonicalInterval{
		"161005": {{
			Ticker:    "161005",
			StartDate: day("2025-01-05"),
			EndDate:   &end,
			Ceiling:   &ceiling,
		}},
	}}

	s := NewService(repo, nil, 0, testLogger())
	limits, err := s.Project(context.Background(), "161005", day("2025-01-01"), day("2025-01-10"))

	require.NoError(t, err)
	require.Len(t, limits, 10)
	assert.True(t, limits[0].Unlimited())
	assert.Equal(t, 100.0, limits[5].Ceiling)
	assert.Equal(t, 1, repo.calls)
}

func TestProjectPropagatesRepositoryError(t *testing.T) {
	repo := &stubIntervals{err: errors.New("connection refused")}
	s := NewService(repo, nil, 0, testLogger())

	_, err := s.Project(context.Background(), "161005", day("2025-01-01"), day("2025-01-10"))
	assert.Error(t, err)
}

func TestProjectInvalidRange(t *testing.T) {
	repo := &stubIntervals{byTicker: map[string][]*contracts.CanonicalInterval{}}
	s := NewService(repo, nil, 0, testLogger())

	_, err := s.Project(context.Background(), "161005", day("2025-01-10"), day("2025-01-01"))
	assert.Error(t, err)
}
