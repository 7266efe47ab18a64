package timeline

import (
	"context"
	"sort"
	"time"

	"github.com/wonny/loflimit/internal/contracts"
	"github.com/wonny/loflimit/pkg/config"
	"github.com/wonny/loflimit/pkg/logger"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dayPtr(s string) *time.Time {
	t := day(s)
	return &t
}

func amount(f float64) *float64 { return &f }

func quietLogger() *logger.Logger {
	return logger.New(&config.Config{LogLevel: "error", LogFormat: "json", Env: "development"})
}

func complete(ticker, sourceID, announced, start, end string, ceiling *float64) *contracts.RawAssertion {
	return &contracts.RawAssertion{
		Ticker:      ticker,
		AnnouncedAt: day(announced),
		SourceID:    sourceID,
		Kind:        contracts.KindComplete,
		StartDate:   dayPtr(start),
		EndDate:     dayPtr(end),
		Ceiling:     ceiling,
	}
}

func openStart(ticker, sourceID, announced, start string, ceiling *float64) *contracts.RawAssertion {
	return &contracts.RawAssertion{
		Ticker:      ticker,
		AnnouncedAt: day(announced),
		SourceID:    sourceID,
		Kind:        contracts.KindOpenStart,
		StartDate:   dayPtr(start),
		Ceiling:     ceiling,
	}
}

func endOnly(ticker, sourceID, announced, end string) *contracts.RawAssertion {
	return &contracts.RawAssertion{
		Ticker:      ticker,
		AnnouncedAt: day(announced),
		SourceID:    sourceID,
		Kind:        contracts.KindEndOnly,
		EndDate:     dayPtr(end),
	}
}

// memRepo is an in-memory IntervalRepository for reconciler and
// pipeline tests.
type memRepo struct {
	intervals map[int64]*contracts.CanonicalInterval
	auditLog  []contracts.AuditEntry
	nextID    int64
	failStale int // number of ApplyDelta calls to reject as stale
	applied   int // successful ApplyDelta count
}

func newMemRepo() *memRepo {
	return &memRepo{intervals: make(map[int64]*contracts.CanonicalInterval), nextID: 1}
}

func (m *memRepo) GetByTicker(_ context.Context, ticker string) ([]*contracts.CanonicalInterval, error) {
	var out []*contracts.CanonicalInterval
	for _, ci := range m.intervals {
		if ci.Ticker == ticker {
			c := *ci
			c.SourceIDs = append([]string(nil), ci.SourceIDs...)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (m *memRepo) ApplyDelta(_ context.Context, ticker string, priorIDs []int64, delta *contracts.IntervalDelta) error {
	if m.failStale > 0 {
		m.failStale--
		return contracts.ErrStaleRead
	}

	var current []int64
	for id, ci := range m.intervals {
		if ci.Ticker == ticker {
			current = append(current, id)
		}
	}
	if !sameIDSet(current, priorIDs) {
		return contracts.ErrStaleRead
	}

	for _, id := range delta.Removals {
		delete(m.intervals, id)
	}
	for _, ci := range delta.Upserts {
		stored := *ci
		stored.SourceIDs = append([]string(nil), ci.SourceIDs...)
		if stored.ID == 0 {
			stored.ID = m.nextID
			ci.ID = m.nextID
			m.nextID++
		}
		m.intervals[stored.ID] = &stored
	}
	m.auditLog = append(m.auditLog, delta.Entries...)
	m.applied++
	return nil
}

func (m *memRepo) ListTickers(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, ci := range m.intervals {
		if !seen[ci.Ticker] {
			seen[ci.Ticker] = true
			out = append(out, ci.Ticker)
		}
	}
	sort.Strings(out)
	return out, nil
}
