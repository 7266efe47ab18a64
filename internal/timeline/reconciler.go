package timeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/wonny/loflimit/internal/contracts"
	"github.com/wonny/loflimit/pkg/logger"
)

// Reconciler diffs a freshly merged canonical set against the
// persisted one and applies the minimal delta atomically per fund.
// A stale prior-state read is retried by re-reading and re-diffing; it
// is never resolved by merging partial writes.
type Reconciler struct {
	repo        contracts.IntervalRepository
	log         *logger.Logger
	maxAttempts int
}

func NewReconciler(repo contracts.IntervalRepository, log *logger.Logger, maxAttempts int) *Reconciler {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Reconciler{repo: repo, log: log, maxAttempts: maxAttempts}
}

// Reconcile persists the merged set for one fund. When the computed
// delta is empty nothing is written, including audit entries: a
// re-run on identical input leaves no trace. Returns the applied
// delta for reporting.
func (r *Reconciler) Reconcile(ctx context.Context, ticker string, merged []*contracts.DraftInterval, rec *Recorder) (*contracts.IntervalDelta, error) {
	mark := rec.Len()

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		prior, err := r.repo.GetByTicker(ctx, ticker)
		if err != nil {
			return nil, fmt.Errorf("read prior intervals for %s: %w", ticker, err)
		}

		rec.Truncate(mark)
		delta := diff(ticker, prior, merged, rec)
		if delta.Empty() {
			return delta, nil
		}
		delta.Entries = rec.Entries()

		err = r.repo.ApplyDelta(ctx, ticker, priorIDs(prior), delta)
		if err == nil {
			return delta, nil
		}
		if !errors.Is(err, contracts.ErrStaleRead) {
			return nil, fmt.Errorf("apply delta for %s: %w", ticker, err)
		}

		r.log.WithTicker(ticker).Warnf("stale prior snapshot, re-diffing (attempt %d/%d)", attempt, r.maxAttempts)
	}

	return nil, &contracts.ReconciliationConflict{Ticker: ticker, Attempts: r.maxAttempts}
}

// diff classifies each merged draft against the prior persisted set:
// unchanged, updated in place (one clear ancestor), merged from
// several priors, or brand new. Priors no draft covers any more are
// closed out.
func diff(ticker string, prior []*contracts.CanonicalInterval, merged []*contracts.DraftInterval, rec *Recorder) *contracts.IntervalDelta {
	delta := &contracts.IntervalDelta{}
	absorbed := make(map[int64]bool)

	for _, d := range merged {
		var ancestors []*contracts.CanonicalInterval
		for _, p := range prior {
			if overlaps(p, d) {
				ancestors = append(ancestors, p)
			}
		}
		for _, p := range ancestors {
			absorbed[p.ID] = true
		}

		switch len(ancestors) {
		case 0:
			ci := draftToCanonical(d)
			delta.Upserts = append(delta.Upserts, ci)
			rec.Record(ticker, contracts.OpCreate, nil, nil, &ci.StartDate, ci.EndDate, latestSource(d))

		case 1:
			p := ancestors[0]
			if sameInterval(p, d) {
				continue
			}
			ci := draftToCanonical(d)
			ci.ID = p.ID
			delta.Upserts = append(delta.Upserts, ci)
			rec.Record(ticker, contracts.OpExtend, &p.StartDate, p.EndDate, &ci.StartDate, ci.EndDate, latestSource(d))

		default:
			// Several priors collapsed into one draft. The result
			// gets a fresh identity; the absorbed rows are removed
			// and each closure references the absorbing bounds.
			ci := draftToCanonical(d)
			ci.Note = fmt.Sprintf("merged from %d prior intervals", len(ancestors))
			delta.Upserts = append(delta.Upserts, ci)
			rec.Record(ticker, contracts.OpMerge, nil, nil, &ci.StartDate, ci.EndDate, latestSource(d))
			for _, p := range ancestors {
				delta.Removals = append(delta.Removals, p.ID)
				rec.Record(ticker, contracts.OpClose, &p.StartDate, p.EndDate, &ci.StartDate, ci.EndDate, latestSource(d))
			}
		}
	}

	// Priors untouched by any draft no longer derive from the input.
	for _, p := range prior {
		if !absorbed[p.ID] {
			delta.Removals = append(delta.Removals, p.ID)
			rec.Record(ticker, contracts.OpClose, &p.StartDate, p.EndDate, nil, nil, "")
		}
	}

	return delta
}

// overlaps treats an absent end as unbounded; touching counts.
func overlaps(p *contracts.CanonicalInterval, d *contracts.DraftInterval) bool {
	if p.EndDate != nil && d.StartDate.After(*p.EndDate) {
		return false
	}
	if d.EndDate != nil && p.StartDate.After(*d.EndDate) {
		return false
	}
	return true
}

func sameInterval(p *contracts.CanonicalInterval, d *contracts.DraftInterval) bool {
	if !p.StartDate.Equal(d.StartDate) {
		return false
	}
	if (p.EndDate == nil) != (d.EndDate == nil) {
		return false
	}
	if p.EndDate != nil && !p.EndDate.Equal(*d.EndDate) {
		return false
	}
	if (p.Ceiling == nil) != (d.Ceiling == nil) {
		return false
	}
	if p.Ceiling != nil && *p.Ceiling != *d.Ceiling {
		return false
	}
	return sameSources(p.SourceIDs, d.SourceIDs)
}

func sameSources(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func draftToCanonical(d *contracts.DraftInterval) *contracts.CanonicalInterval {
	return &contracts.CanonicalInterval{
		Ticker:    d.Ticker,
		StartDate: d.StartDate,
		EndDate:   copyDate(d.EndDate),
		Ceiling:   copyCeiling(d.Ceiling),
		SourceIDs: append([]string(nil), d.SourceIDs...),
	}
}

// latestSource returns the most recently added contributing
// announcement, the one that triggered the transition.
func latestSource(d *contracts.DraftInterval) string {
	if len(d.SourceIDs) == 0 {
		return ""
	}
	return d.SourceIDs[len(d.SourceIDs)-1]
}

func priorIDs(prior []*contracts.CanonicalInterval) []int64 {
	ids := make([]int64, 0, len(prior))
	for _, p := range prior {
		ids = append(ids, p.ID)
	}
	return ids
}
