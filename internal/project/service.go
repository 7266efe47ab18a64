// Package project exposes the daily-limit query interface consumed by
// the backtest simulator and the API.
package project

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/loflimit/internal/contracts"
	"github.com/wonny/loflimit/internal/timeline"
	"github.com/wonny/loflimit/pkg/logger"
	"github.com/wonny/loflimit/pkg/redis"
)

// Service answers project(ticker, date range) queries, caching the
// per-range answer in Redis. The cache is invalidated after a rebuild
// touches a fund.
type Service struct {
	intervals contracts.IntervalRepository
	cache     *redis.Cache // nil when Redis is disabled
	ttl       time.Duration
	log       *logger.Logger
}

func NewService(intervals contracts.IntervalRepository, cache *redis.Cache, ttl time.Duration, log *logger.Logger) *Service {
	if ttl <= 0 {
		ttl = redis.TTLLong
	}
	return &Service{intervals: intervals, cache: cache, ttl: ttl, log: log}
}

// Project returns the daily purchase ceiling for every date in
// [from, to].
func (s *Service) Project(ctx context.Context, ticker string, from, to time.Time) ([]contracts.DailyLimit, error) {
	key := redis.ProjectionKey(ticker, from.Format("2006-01-02"), to.Format("2006-01-02"))

	if s.cache != nil {
		var cached []contracts.DailyLimit
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.WithTicker(ticker).WithError(err).Warn("projection cache read failed")
		} else if hit {
			return cached, nil
		}
	}

	intervals, err := s.intervals.GetByTicker(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("load intervals for %s: %w", ticker, err)
	}

	limits, err := timeline.Project(intervals, from, to)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, limits, s.ttl); err != nil {
			s.log.WithTicker(ticker).WithError(err).Warn("projection cache write failed")
		}
	}

	return limits, nil
}

// Intervals returns a fund's canonical interval set, for callers that
// want the timeline itself rather than a dense projection.
func (s *Service) Intervals(ctx context.Context, ticker string) ([]*contracts.CanonicalInterval, error) {
	return s.intervals.GetByTicker(ctx, ticker)
}

// Invalidate drops every cached projection for a fund. Called after a
// rebuild changed its canonical set.
func (s *Service) Invalidate(ctx context.Context, ticker string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePattern(ctx, redis.ProjectionPattern(ticker)); err != nil {
		s.log.WithTicker(ticker).WithError(err).Warn("projection cache invalidation failed")
	}
}
