package timeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/loflimit/internal/contracts"
)

func newTestPipeline(repo *memRepo) *Pipeline {
	log := quietLogger()
	return NewPipeline(nil, NewReconciler(repo, log, 3), log)
}

// The full announcement sequence from open through extend lands as two
// canonical intervals.
func TestPipelineOpenExtendSequence(t *testing.T) {
	repo := newMemRepo()
	p := newTestPipeline(repo)

	result := p.Run(context.Background(), "F", []*contracts.RawAssertion{
		complete("F", "a1", "2024-01-01", "2024-01-01", "2024-01-03", amount(100)),
		openStart("F", "a2", "2024-01-04", "2024-01-05", amount(100)),
		endOnly("F", "a3", "2024-01-08", "2024-01-09"),
		endOnly("F", "a4", "2024-01-12", "2024-01-13"),
	})

	require.NoError(t, result.Err)
	assert.Equal(t, 2, result.Intervals)
	assert.Zero(t, result.Invalid)
	assert.Zero(t, result.Ambiguous)

	stored, _ := repo.GetByTicker(context.Background(), "F")
	require.Len(t, stored, 2)

	assert.Equal(t, day("2024-01-01"), stored[0].StartDate)
	assert.Equal(t, day("2024-01-03"), *stored[0].EndDate)
	assert.Equal(t, 100.0, *stored[0].Ceiling)

	assert.Equal(t, day("2024-01-05"), stored[1].StartDate)
	assert.Equal(t, day("2024-01-13"), *stored[1].EndDate)
	assert.Equal(t, 100.0, *stored[1].Ceiling)
}

// Running twice on identical input leaves the canonical set and audit
// log untouched on the second run.
func TestPipelineIdempotence(t *testing.T) {
	repo := newMemRepo()
	p := newTestPipeline(repo)
	ctx := context.Background()

	assertions := []*contracts.RawAssertion{
		complete("F", "a1", "2024-01-01", "2024-01-01", "2024-01-10", amount(100)),
		complete("F", "a2", "2024-01-02", "2024-01-05", "2024-01-15", amount(80)),
		openStart("F", "a3", "2024-02-01", "2024-02-10", amount(50)),
	}

	first := p.Run(ctx, "F", assertions)
	require.NoError(t, first.Err)
	require.True(t, first.Changed())

	storedFirst, _ := repo.GetByTicker(ctx, "F")
	auditFirst := len(repo.auditLog)
	appliedFirst := repo.applied

	second := p.Run(ctx, "F", assertions)
	require.NoError(t, second.Err)
	assert.False(t, second.Changed())

	storedSecond, _ := repo.GetByTicker(ctx, "F")
	assert.Equal(t, storedFirst, storedSecond)
	assert.Equal(t, auditFirst, len(repo.auditLog), "no spurious audit entries on re-run")
	assert.Equal(t, appliedFirst, repo.applied)
}

// A late correction is purely additive: the rebuild converges to the
// set derivable from the extended input.
func TestPipelineLateCorrectionConverges(t *testing.T) {
	repo := newMemRepo()
	p := newTestPipeline(repo)
	ctx := context.Background()

	base := []*contracts.RawAssertion{
		openStart("F", "a1", "2024-01-01", "2024-01-02", amount(100)),
	}
	result := p.Run(ctx, "F", base)
	require.NoError(t, result.Err)

	stored, _ := repo.GetByTicker(ctx, "F")
	require.Len(t, stored, 1)
	assert.True(t, stored[0].IsOpenEnded())

	// The closing announcement arrives late.
	extended := append(base, endOnly("F", "a2", "2024-03-01", "2024-02-15"))
	result = p.Run(ctx, "F", extended)
	require.NoError(t, result.Err)

	stored, _ = repo.GetByTicker(ctx, "F")
	require.Len(t, stored, 1)
	require.NotNil(t, stored[0].EndDate)
	assert.Equal(t, day("2024-02-15"), *stored[0].EndDate)
}

func TestPipelineCountsInvalidAndAmbiguous(t *testing.T) {
	repo := newMemRepo()
	p := newTestPipeline(repo)

	bad := complete("F", "bad", "2024-01-01", "2024-01-10", "2024-01-02", amount(100)) // start after end
	result := p.Run(context.Background(), "F", []*contracts.RawAssertion{
		bad,
		endOnly("F", "orphan", "2024-01-01", "2024-01-05"),
		complete("F", "ok", "2024-01-02", "2024-02-01", "2024-02-03", amount(100)),
	})

	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Invalid)
	assert.Equal(t, 1, result.Ambiguous)
	assert.Equal(t, 1, result.Intervals, "processing continues with the valid remainder")
}

func TestPipelineEmptyInput(t *testing.T) {
	repo := newMemRepo()
	p := newTestPipeline(repo)

	result := p.Run(context.Background(), "F", nil)
	require.NoError(t, result.Err)
	assert.Zero(t, result.Intervals)
	assert.False(t, result.Changed())
	assert.Zero(t, repo.applied)
}

// Canonical invariants hold over a messy input: sorted, pairwise
// non-overlapping, at most one open tail and only at the latest start.
func TestPipelineCanonicalInvariants(t *testing.T) {
	repo := newMemRepo()
	p := newTestPipeline(repo)
	ctx := context.Background()

	result := p.Run(ctx, "F", []*contracts.RawAssertion{
		complete("F", "a1", "2024-01-01", "2024-01-01", "2024-01-10", amount(100)),
		complete("F", "a2", "2024-01-02", "2024-01-08", "2024-01-20", amount(70)),
		complete("F", "a3", "2024-01-03", "2024-03-01", "2024-03-02", amount(60)),
		openStart("F", "a4", "2024-04-01", "2024-04-05", amount(40)),
		complete("F", "a5", "2024-04-02", "2024-04-10", "2024-04-20", amount(30)),
	})
	require.NoError(t, result.Err)

	stored, _ := repo.GetByTicker(ctx, "F")
	require.NotEmpty(t, stored)

	openCount := 0
	for i, ci := range stored {
		if ci.IsOpenEnded() {
			openCount++
			assert.Equal(t, len(stored)-1, i, "open tail must have the latest start date")
		}
		if i == 0 {
			continue
		}
		prev := stored[i-1]
		assert.True(t, prev.StartDate.Before(ci.StartDate), "sorted by start date")
		require.NotNil(t, prev.EndDate, "only the last interval may be open")
		assert.True(t, prev.EndDate.Before(ci.StartDate), "pairwise non-overlapping")
	}
	assert.LessOrEqual(t, openCount, 1)
}
