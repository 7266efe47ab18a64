package timeline

import (
	"sort"

	"github.com/wonny/loflimit/internal/contracts"
)

// SequenceResult is the output of one per-fund fold.
type SequenceResult struct {
	Drafts    []*contracts.DraftInterval
	Ambiguous []*contracts.AmbiguousInputError
}

// Sequence folds validated assertions for one fund into draft
// intervals. Assertions are sorted by (announcement time, source ID)
// before the fold so re-runs are deterministic regardless of input
// order. The fold carries two pieces of state: the currently open
// interval and the most recently closed one, used for the extend case.
func Sequence(assertions []*contracts.RawAssertion) *SequenceResult {
	sorted := make([]*contracts.RawAssertion, len(assertions))
	copy(sorted, assertions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].AnnouncedAt.Equal(sorted[j].AnnouncedAt) {
			return sorted[i].AnnouncedAt.Before(sorted[j].AnnouncedAt)
		}
		return sorted[i].SourceID < sorted[j].SourceID
	})

	result := &SequenceResult{}
	var open *contracts.DraftInterval
	var lastClosed *contracts.DraftInterval

	for _, a := range sorted {
		switch a.Kind {
		case contracts.KindComplete:
			// Emitted as its own draft regardless of open state.
			// Overlap with anything else is the merger's job.
			end := *a.EndDate
			d := &contracts.DraftInterval{
				Ticker:    a.Ticker,
				StartDate: *a.StartDate,
				EndDate:   &end,
				Ceiling:   copyCeiling(a.Ceiling),
			}
			d.AddSource(a.SourceID)
			result.Drafts = append(result.Drafts, d)

		case contracts.KindOpenStart:
			// A second open start while one is already open: emit the
			// first still open-ended and let the merger reconcile.
			if open != nil {
				result.Drafts = append(result.Drafts, open)
			}
			open = &contracts.DraftInterval{
				Ticker:    a.Ticker,
				StartDate: *a.StartDate,
				Ceiling:   copyCeiling(a.Ceiling),
			}
			open.AddSource(a.SourceID)

		case contracts.KindEndOnly:
			switch {
			case open != nil:
				// Resume: close the open interval.
				end := *a.EndDate
				open.EndDate = &end
				if open.Ceiling == nil && a.Ceiling != nil {
					open.Ceiling = copyCeiling(a.Ceiling)
				}
				open.AddSource(a.SourceID)
				result.Drafts = append(result.Drafts, open)
				lastClosed = open
				open = nil
			case lastClosed != nil:
				// Extend: push the last closed draft's end forward.
				// The draft is updated in place in the result list.
				if a.EndDate.After(*lastClosed.EndDate) {
					end := *a.EndDate
					lastClosed.EndDate = &end
				}
				lastClosed.AddSource(a.SourceID)
			default:
				// No context at all: never fabricated into a
				// zero-length interval.
				result.Ambiguous = append(result.Ambiguous, &contracts.AmbiguousInputError{SourceID: a.SourceID})
			}
		}
	}

	if open != nil {
		result.Drafts = append(result.Drafts, open)
	}

	return result
}

func copyCeiling(c *float64) *float64 {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}
