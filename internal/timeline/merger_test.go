package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/loflimit/internal/contracts"
)

func draft(start string, end string, ceiling *float64, sources ...string) *contracts.DraftInterval {
	d := &contracts.DraftInterval{Ticker: "F", StartDate: day(start), Ceiling: ceiling}
	if end != "" {
		d.EndDate = dayPtr(end)
	}
	for _, s := range sources {
		d.AddSource(s)
	}
	return d
}

// Overlapping drafts collapse to one interval with the stricter
// ceiling and the union of both spans.
func TestMergeOverlapTakesStricterCeiling(t *testing.T) {
	rec := NewRecorder(quietLogger())
	merged, err := Merge("F", []*contracts.DraftInterval{
		draft("2024-01-01", "2024-01-10", amount(100), "a1"),
		draft("2024-01-05", "2024-01-15", amount(80), "a2"),
	}, rec)

	require.NoError(t, err)
	require.Len(t, merged, 1)

	m := merged[0]
	assert.Equal(t, day("2024-01-01"), m.StartDate)
	require.NotNil(t, m.EndDate)
	assert.Equal(t, day("2024-01-15"), *m.EndDate)
	require.NotNil(t, m.Ceiling)
	assert.Equal(t, 80.0, *m.Ceiling)
	assert.ElementsMatch(t, []string{"a1", "a2"}, m.SourceIDs)

	require.Len(t, rec.Entries(), 1)
	assert.Equal(t, contracts.OpMerge, rec.Entries()[0].Operation)
}

func TestMergeKeepsSeparateOneDayIntervals(t *testing.T) {
	rec := NewRecorder(quietLogger())
	merged, err := Merge("F", []*contracts.DraftInterval{
		draft("2024-04-18", "2024-04-18", amount(100), "a1"),
		draft("2024-04-21", "2024-04-21", amount(100), "a2"),
		draft("2024-07-01", "2024-07-01", amount(100), "a3"),
	}, rec)

	require.NoError(t, err)
	require.Len(t, merged, 3)
	assert.Empty(t, rec.Entries(), "disjoint intervals produce no merge entries")
}

func TestMergeSameDayAdjacency(t *testing.T) {
	// d.start equal to the accumulator's end counts as mergeable.
	merged, err := Merge("F", []*contracts.DraftInterval{
		draft("2024-01-01", "2024-01-10", amount(100), "a1"),
		draft("2024-01-10", "2024-01-12", amount(100), "a2"),
	}, NewRecorder(quietLogger()))

	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, day("2024-01-12"), *merged[0].EndDate)
}

func TestMergeConsecutiveDaysStaySeparate(t *testing.T) {
	// A gap of one day, however small, is still a gap.
	merged, err := Merge("F", []*contracts.DraftInterval{
		draft("2024-01-01", "2024-01-10", amount(100), "a1"),
		draft("2024-01-11", "2024-01-12", amount(100), "a2"),
	}, NewRecorder(quietLogger()))

	require.NoError(t, err)
	assert.Len(t, merged, 2)
}

func TestMergeOpenEndDominates(t *testing.T) {
	merged, err := Merge("F", []*contracts.DraftInterval{
		draft("2024-01-01", "2024-01-10", amount(100), "a1"),
		draft("2024-01-05", "", amount(90), "a2"),
	}, NewRecorder(quietLogger()))

	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.True(t, merged[0].IsOpenEnded())
	assert.Equal(t, 90.0, *merged[0].Ceiling)
}

func TestMergeOpenAccumulatorAbsorbsEverythingLater(t *testing.T) {
	// Two open starts from the fold: the earlier open interval
	// absorbs the later one, leaving a single open tail.
	merged, err := Merge("F", []*contracts.DraftInterval{
		draft("2024-01-02", "", amount(100), "a1"),
		draft("2024-02-02", "", amount(50), "a2"),
	}, NewRecorder(quietLogger()))

	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.True(t, merged[0].IsOpenEnded())
	assert.Equal(t, day("2024-01-02"), merged[0].StartDate)
	assert.Equal(t, 50.0, *merged[0].Ceiling, "stricter ceiling survives the absorb")
}

func TestMergeMissingCeilingInheritsPresentOne(t *testing.T) {
	merged, err := Merge("F", []*contracts.DraftInterval{
		draft("2024-01-01", "2024-01-10", nil, "a1"),
		draft("2024-01-05", "2024-01-15", amount(70), "a2"),
	}, NewRecorder(quietLogger()))

	require.NoError(t, err)
	require.Len(t, merged, 1)
	require.NotNil(t, merged[0].Ceiling)
	assert.Equal(t, 70.0, *merged[0].Ceiling)
}

func TestMergeInputOrderIrrelevant(t *testing.T) {
	a := []*contracts.DraftInterval{
		draft("2024-01-05", "2024-01-15", amount(80), "a2"),
		draft("2024-01-01", "2024-01-10", amount(100), "a1"),
	}

	merged, err := Merge("F", a, NewRecorder(quietLogger()))
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, day("2024-01-01"), merged[0].StartDate)
}

func TestMergeEmptyInput(t *testing.T) {
	merged, err := Merge("F", nil, NewRecorder(quietLogger()))
	require.NoError(t, err)
	assert.Empty(t, merged)
}

// Merge never mutates its input drafts; the accumulator works on
// copies so a retry can re-merge from the same drafts.
func TestMergeDoesNotMutateInput(t *testing.T) {
	in := []*contracts.DraftInterval{
		draft("2024-01-01", "2024-01-10", amount(100), "a1"),
		draft("2024-01-05", "2024-01-15", amount(80), "a2"),
	}

	_, err := Merge("F", in, NewRecorder(quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, day("2024-01-10"), *in[0].EndDate)
	assert.Equal(t, 100.0, *in[0].Ceiling)
	assert.Equal(t, []string{"a1"}, in[0].SourceIDs)
}
