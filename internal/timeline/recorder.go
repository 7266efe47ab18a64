package timeline

import (
	"time"

	"github.com/wonny/loflimit/internal/contracts"
	"github.com/wonny/loflimit/pkg/logger"
)

// Recorder collects audit entries for one fund run. Entries are
// emitted (logged) the moment a transition happens, independent of
// whether the reconciler's write later succeeds; the collected slice
// rides along in the delta so the store keeps the same record.
type Recorder struct {
	log     *logger.Logger
	entries []contracts.AuditEntry
}

func NewRecorder(log *logger.Logger) *Recorder {
	return &Recorder{log: log}
}

// Record appends one audit entry and logs it.
func (r *Recorder) Record(ticker string, op contracts.AuditOperation, oldStart, oldEnd, newStart, newEnd *time.Time, triggeredBy string) {
	entry := contracts.AuditEntry{
		Ticker:      ticker,
		Operation:   op,
		OldStart:    oldStart,
		OldEnd:      oldEnd,
		NewStart:    newStart,
		NewEnd:      newEnd,
		TriggeredBy: triggeredBy,
		CreatedAt:   time.Now().UTC(),
	}
	r.entries = append(r.entries, entry)

	if r.log != nil {
		r.log.WithFields(map[string]interface{}{
			"ticker":       ticker,
			"operation":    string(op),
			"old_start":    formatDate(oldStart),
			"old_end":      formatDate(oldEnd),
			"new_start":    formatDate(newStart),
			"new_end":      formatDate(newEnd),
			"triggered_by": triggeredBy,
		}).Debug("timeline transition")
	}
}

// Entries returns the entries recorded so far, in emission order.
func (r *Recorder) Entries() []contracts.AuditEntry {
	return r.entries
}

// Len returns the number of entries recorded so far.
func (r *Recorder) Len() int {
	return len(r.entries)
}

// Truncate drops entries recorded after position n. The reconciler
// uses it to discard diff entries from a stale attempt before
// re-diffing.
func (r *Recorder) Truncate(n int) {
	if n < len(r.entries) {
		r.entries = r.entries[:n]
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
