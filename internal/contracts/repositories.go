package contracts

import (
	"context"
	"time"
)

// IntervalRepository persists canonical purchase-limit intervals.
type IntervalRepository interface {
	// GetByTicker returns the persisted intervals for one fund,
	// ordered by start date.
	GetByTicker(ctx context.Context, ticker string) ([]*CanonicalInterval, error)

	// ApplyDelta applies a reconciliation delta atomically. priorIDs
	// is the set of interval IDs the delta was diffed against; when
	// the persisted set no longer matches, ApplyDelta returns
	// ErrStaleRead without writing anything.
	ApplyDelta(ctx context.Context, ticker string, priorIDs []int64, delta *IntervalDelta) error

	// ListTickers returns every ticker with at least one interval.
	ListTickers(ctx context.Context) ([]string, error)
}

// AuditLogRepository reads the append-only mutation log.
type AuditLogRepository interface {
	GetAuditLog(ctx context.Context, ticker string, limit int) ([]*AuditEntry, error)
}

// ParseRepository persists extracted announcement assertions.
type ParseRepository interface {
	SaveParse(ctx context.Context, a *RawAssertion, rawText string) error
	// GetAssertions returns all stored assertions for a fund announced
	// up to asOf, in storage order. The sequencer re-sorts them.
	GetAssertions(ctx context.Context, ticker string, asOf time.Time) ([]*RawAssertion, error)
	ListTickers(ctx context.Context) ([]string, error)
}
