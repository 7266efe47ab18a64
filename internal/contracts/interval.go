package contracts

import (
	"encoding/json"
	"math"
	"time"
)

// DraftInterval is an interval produced by the sequencer or merger,
// not yet reconciled with storage. It lives only within one pipeline
// run for one fund.
type DraftInterval struct {
	Ticker    string     `json:"ticker"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"` // nil = open-ended
	Ceiling   *float64   `json:"ceiling,omitempty"`
	SourceIDs []string   `json:"source_ids"` // provenance of contributing assertions
}

// IsOpenEnded reports whether the draft has no end date
func (d *DraftInterval) IsOpenEnded() bool {
	return d.EndDate == nil
}

// AddSource appends a source announcement ID, keeping the set unique
func (d *DraftInterval) AddSource(sourceID string) {
	for _, id := range d.SourceIDs {
		if id == sourceID {
			return
		}
	}
	d.SourceIDs = append(d.SourceIDs, sourceID)
}

// CanonicalInterval is the persisted, authoritative representation of a
// restriction period. The canonical set of one fund is pairwise
// non-overlapping and sorted by start date, with at most one open tail.
type CanonicalInterval struct {
	ID        int64      `json:"id"`
	Ticker    string     `json:"ticker"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"` // nil = open-ended
	Ceiling   *float64   `json:"ceiling,omitempty"`
	SourceIDs []string   `json:"source_ids"`
	Note      string     `json:"note,omitempty"`
}

// IsOpenEnded is derived from EndDate so it cannot drift out of sync
// with the stored column.
func (c *CanonicalInterval) IsOpenEnded() bool {
	return c.EndDate == nil
}

// Contains reports whether the given date falls inside the interval.
// Both bounds are inclusive; an open-ended interval contains every
// date at or after its start.
func (c *CanonicalInterval) Contains(date time.Time) bool {
	if date.Before(c.StartDate) {
		return false
	}
	if c.EndDate == nil {
		return true
	}
	return !date.After(*c.EndDate)
}

// CeilingAmount returns the purchase cap during the interval. A
// restriction announced without an amount suspends purchases outright,
// so a nil ceiling projects as zero.
func (c *CanonicalInterval) CeilingAmount() float64 {
	if c.Ceiling == nil {
		return 0
	}
	return *c.Ceiling
}

// IntervalDelta is the minimal set of storage operations that moves a
// fund's persisted canonical set to a freshly computed one. Applied
// atomically per fund together with its audit entries.
type IntervalDelta struct {
	Upserts  []*CanonicalInterval
	Removals []int64 // IDs of intervals absorbed by a merge
	Entries  []AuditEntry
}

// Empty reports whether the delta is a no-op
func (d *IntervalDelta) Empty() bool {
	return len(d.Upserts) == 0 && len(d.Removals) == 0
}

// DailyLimit is the projection answer for one date. Ceiling is
// math.Inf(1) when no restriction applies.
type DailyLimit struct {
	Date    time.Time
	Ceiling float64
}

// Unlimited reports whether no restriction applies on the date.
func (d DailyLimit) Unlimited() bool {
	return math.IsInf(d.Ceiling, 1)
}

type dailyLimitJSON struct {
	Date    string   `json:"date"`
	Ceiling *float64 `json:"ceiling"` // null = unlimited
}

// MarshalJSON encodes the unlimited sentinel as a null ceiling, since
// JSON has no infinity.
func (d DailyLimit) MarshalJSON() ([]byte, error) {
	out := dailyLimitJSON{Date: d.Date.Format("2006-01-02")}
	if !d.Unlimited() {
		c := d.Ceiling
		out.Ceiling = &c
	}
	return json.Marshal(out)
}

func (d *DailyLimit) UnmarshalJSON(b []byte) error {
	var in dailyLimitJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	t, err := time.Parse("2006-01-02", in.Date)
	if err != nil {
		return err
	}
	d.Date = t
	if in.Ceiling == nil {
		d.Ceiling = math.Inf(1)
	} else {
		d.Ceiling = *in.Ceiling
	}
	return nil
}
