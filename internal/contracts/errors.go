package contracts

import (
	"errors"
	"fmt"
)

// ErrStaleRead is returned by IntervalRepository.ApplyDelta when the
// persisted set changed under a concurrent writer since the diff was
// computed. The reconciler re-reads and re-diffs a bounded number of
// times before giving up on the fund.
var ErrStaleRead = errors.New("prior interval snapshot is stale")

// ValidationError rejects one structurally invalid assertion. The
// offending assertion is excluded and counted; processing of the fund
// continues.
type ValidationError struct {
	SourceID string
	Rule     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid assertion %s: %s", e.SourceID, e.Rule)
}

// AmbiguousInputError marks an end-only assertion with no open or
// previously closed interval to resolve against. It is excluded, never
// fabricated into a zero-length interval.
type AmbiguousInputError struct {
	SourceID string
}

func (e *AmbiguousInputError) Error() string {
	return fmt.Sprintf("ambiguous end-only assertion %s: no interval context", e.SourceID)
}

// IntegrityViolation signals that more than one open-ended interval
// survived merging for a fund. It aborts that fund's run and is
// surfaced to the caller, never defaulted away.
type IntegrityViolation struct {
	Ticker    string
	OpenCount int
}

func (e *IntegrityViolation) Error() string {
	return fmt.Sprintf("fund %s: %d open-ended intervals after merge, expected at most 1", e.Ticker, e.OpenCount)
}

// ReconciliationConflict is surfaced when stale-read retries are
// exhausted for a fund. The fund is reported as failed; other funds in
// the batch are unaffected.
type ReconciliationConflict struct {
	Ticker   string
	Attempts int
}

func (e *ReconciliationConflict) Error() string {
	return fmt.Sprintf("fund %s: reconciliation still stale after %d attempts", e.Ticker, e.Attempts)
}
