package timeline

import (
	"sort"
	"time"

	"github.com/wonny/loflimit/internal/contracts"
)

// Merge collapses one fund's draft intervals into the minimal
// non-overlapping set: sort by start date, then sweep with an
// accumulator, merging any draft that starts at or before the
// accumulator's effective end. On a merge the stricter (lower) ceiling
// wins and an absent end date dominates. Each merge is recorded.
//
// Returns an *contracts.IntegrityViolation when more than one
// open-ended interval survives the sweep. That means the input
// describes two simultaneously open restrictions, which the fold's
// single-open-state assumption cannot represent; it is surfaced, never
// resolved by guessing.
func Merge(ticker string, drafts []*contracts.DraftInterval, rec *Recorder) ([]*contracts.DraftInterval, error) {
	if len(drafts) == 0 {
		return nil, nil
	}

	sorted := make([]*contracts.DraftInterval, len(drafts))
	copy(sorted, drafts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].StartDate.Equal(sorted[j].StartDate) {
			return sorted[i].StartDate.Before(sorted[j].StartDate)
		}
		// Same start: closed before open so the open end absorbs.
		if sorted[i].IsOpenEnded() != sorted[j].IsOpenEnded() {
			return !sorted[i].IsOpenEnded()
		}
		if sorted[i].IsOpenEnded() {
			return false
		}
		return sorted[i].EndDate.Before(*sorted[j].EndDate)
	})

	acc := cloneDraft(sorted[0])
	var merged []*contracts.DraftInterval

	for _, d := range sorted[1:] {
		// An open-ended accumulator absorbs everything after it.
		if acc.IsOpenEnded() || !d.StartDate.After(*acc.EndDate) {
			mergeInto(ticker, acc, d, rec)
			continue
		}
		merged = append(merged, acc)
		acc = cloneDraft(d)
	}
	merged = append(merged, acc)

	// The sweep itself cannot leave two open intervals, an open
	// accumulator absorbs everything after it. This check guards
	// drafts that did not come through the fold.
	openCount := 0
	for _, m := range merged {
		if m.IsOpenEnded() {
			openCount++
		}
	}
	if openCount > 1 {
		return nil, &contracts.IntegrityViolation{Ticker: ticker, OpenCount: openCount}
	}

	return merged, nil
}

// mergeInto folds draft d into the accumulator.
func mergeInto(ticker string, acc, d *contracts.DraftInterval, rec *Recorder) {
	// Absent end dominates: once either side is open-ended the merged
	// interval is open-ended.
	switch {
	case acc.EndDate == nil || d.EndDate == nil:
		acc.EndDate = nil
	case d.EndDate.After(*acc.EndDate):
		end := *d.EndDate
		acc.EndDate = &end
	}

	// Stricter ceiling wins when both sides carry one.
	switch {
	case acc.Ceiling == nil:
		acc.Ceiling = copyCeiling(d.Ceiling)
	case d.Ceiling != nil && *d.Ceiling < *acc.Ceiling:
		acc.Ceiling = copyCeiling(d.Ceiling)
	}

	triggeredBy := ""
	for _, id := range d.SourceIDs {
		acc.AddSource(id)
		triggeredBy = id
	}

	if rec != nil {
		start := acc.StartDate
		rec.Record(ticker, contracts.OpMerge,
			&d.StartDate, copyDate(d.EndDate),
			&start, copyDate(acc.EndDate),
			triggeredBy)
	}
}

func cloneDraft(d *contracts.DraftInterval) *contracts.DraftInterval {
	c := &contracts.DraftInterval{
		Ticker:    d.Ticker,
		StartDate: d.StartDate,
		EndDate:   copyDate(d.EndDate),
		Ceiling:   copyCeiling(d.Ceiling),
	}
	c.SourceIDs = append(c.SourceIDs, d.SourceIDs...)
	return c
}

func copyDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
