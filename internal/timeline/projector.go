package timeline

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/loflimit/internal/contracts"
)

// Unlimited is the projection sentinel for a date under no restriction.
var Unlimited = math.Inf(1)

// Project answers the applicable purchase ceiling for every date in
// [from, to] inclusive. The intervals must already satisfy the
// canonical invariants (sorted by start date, non-overlapping); the
// walk advances a single cursor over them, so the cost is proportional
// to dates plus intervals, never their product.
func Project(intervals []*contracts.CanonicalInterval, from, to time.Time) ([]contracts.DailyLimit, error) {
	from = truncateToDay(from)
	to = truncateToDay(to)
	if to.Before(from) {
		return nil, fmt.Errorf("invalid projection range: %s after %s",
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	limits := make([]contracts.DailyLimit, 0, int(to.Sub(from).Hours()/24)+1)
	idx := 0

	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		// Skip intervals that ended before this date. An open-ended
		// interval never ends, so the cursor parks on it.
		for idx < len(intervals) && intervals[idx].EndDate != nil && intervals[idx].EndDate.Before(date) {
			idx++
		}

		ceiling := Unlimited
		if idx < len(intervals) && !date.Before(intervals[idx].StartDate) {
			ceiling = intervals[idx].CeilingAmount()
		}
		limits = append(limits, contracts.DailyLimit{Date: date, Ceiling: ceiling})
	}

	return limits, nil
}

// truncateToDay normalizes a timestamp to UTC midnight, the
// representation all interval dates use.
func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
