package timeline

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/loflimit/internal/contracts"
)

func canonical(start, end string, ceiling *float64) *contracts.CanonicalInterval {
	ci := &contracts.CanonicalInterval{Ticker: "F", StartDate: day(start), Ceiling: ceiling}
	if end != "" {
		ci.EndDate = dayPtr(end)
	}
	return ci
}

// Dates before an open tail are unlimited; from its start onward the
// ceiling applies forever.
func TestProjectOpenTail(t *testing.T) {
	limits, err := Project(
		[]*contracts.CanonicalInterval{canonical("2025-01-05", "", amount(100))},
		day("2025-01-01"), day("2025-01-10"))

	require.NoError(t, err)
	require.Len(t, limits, 10)

	for i := 0; i < 4; i++ {
		assert.True(t, math.IsInf(limits[i].Ceiling, 1), "date %s should be unlimited", limits[i].Date.Format("2006-01-02"))
	}
	for i := 4; i < 10; i++ {
		assert.Equal(t, 100.0, limits[i].Ceiling, "date %s should be capped", limits[i].Date.Format("2006-01-02"))
	}
}

func TestProjectGapsAreUnlimited(t *testing.T) {
	intervals := []*contracts.CanonicalInterval{
		canonical("2024-01-02", "2024-01-03", amount(50)),
		canonical("2024-01-06", "2024-01-07", amount(80)),
	}

	limits, err := Project(intervals, day("2024-01-01"), day("2024-01-08"))
	require.NoError(t, err)
	require.Len(t, limits, 8)

	want := []float64{Unlimited, 50, 50, Unlimited, Unlimited, 80, 80, Unlimited}
	for i, w := range want {
		assert.Equal(t, w, limits[i].Ceiling, "date %s", limits[i].Date.Format("2006-01-02"))
	}
}

// A restriction with no announced amount suspends purchases: its dates
// project as zero, not unlimited.
func TestProjectNilCeilingMeansSuspension(t *testing.T) {
	limits, err := Project(
		[]*contracts.CanonicalInterval{canonical("2024-01-02", "2024-01-03", nil)},
		day("2024-01-02"), day("2024-01-03"))

	require.NoError(t, err)
	for _, l := range limits {
		assert.Equal(t, 0.0, l.Ceiling)
	}
}

func TestProjectEmptyCanonicalSet(t *testing.T) {
	limits, err := Project(nil, day("2024-01-01"), day("2024-01-03"))
	require.NoError(t, err)
	require.Len(t, limits, 3)
	for _, l := range limits {
		assert.True(t, math.IsInf(l.Ceiling, 1))
	}
}

func TestProjectSingleDayRange(t *testing.T) {
	limits, err := Project(
		[]*contracts.CanonicalInterval{canonical("2024-01-02", "2024-01-05", amount(10))},
		day("2024-01-03"), day("2024-01-03"))

	require.NoError(t, err)
	require.Len(t, limits, 1)
	assert.Equal(t, 10.0, limits[0].Ceiling)
}

func TestProjectInvalidRange(t *testing.T) {
	_, err := Project(nil, day("2024-01-05"), day("2024-01-01"))
	assert.Error(t, err)
}

// Every date in the range gets exactly one answer, and a date strictly
// inside an interval answers that interval's ceiling.
func TestProjectCoverage(t *testing.T) {
	intervals := []*contracts.CanonicalInterval{
		canonical("2024-01-03", "2024-01-10", amount(100)),
		canonical("2024-02-01", "", amount(40)),
	}

	from, to := day("2023-12-28"), day("2024-02-10")
	limits, err := Project(intervals, from, to)
	require.NoError(t, err)

	wantDays := int(to.Sub(from).Hours()/24) + 1
	require.Len(t, limits, wantDays)

	for i, l := range limits {
		assert.Equal(t, from.AddDate(0, 0, i), l.Date, "dense, ordered date coverage")

		inside := false
		for _, ci := range intervals {
			if ci.Contains(l.Date) {
				inside = true
				assert.Equal(t, ci.CeilingAmount(), l.Ceiling)
			}
		}
		if !inside {
			assert.True(t, math.IsInf(l.Ceiling, 1))
		}
	}
}

func TestProjectNormalizesTimestamps(t *testing.T) {
	from := day("2024-01-01").Add(15 * time.Hour) // mid-afternoon timestamp
	limits, err := Project(nil, from, day("2024-01-02"))
	require.NoError(t, err)
	require.Len(t, limits, 2)
	assert.Equal(t, day("2024-01-01"), limits[0].Date)
}
