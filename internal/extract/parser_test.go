package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/loflimit/internal/contracts"
)

func TestParseResponseCleanReply(t *testing.T) {
	reply := `{
		"ticker": "161005",
		"limit_amount": 100.0,
		"start_date": "2024-01-15",
		"end_date": "2024-03-01",
		"announcement_type": "complete",
		"is_purchase_limit_announcement": true,
		"confidence": 0.95
	}`

	result, err := ParseResponse(reply)
	require.NoError(t, err)

	assert.Equal(t, "161005", result.Ticker)
	require.NotNil(t, result.LimitAmount)
	assert.Equal(t, 100.0, *result.LimitAmount)
	require.NotNil(t, result.StartDate)
	assert.Equal(t, "2024-01-15", *result.StartDate)
	assert.Equal(t, "complete", result.Type)
	assert.True(t, result.IsPurchaseLimit)
	assert.Equal(t, 0.95, result.Confidence)
}

func TestParseResponseWithCodeFenceAndProse(t *testing.T) {
	reply := "Here is the extraction:\n```json\n" +
		`{"ticker": "161005", "limit_amount": null, "start_date": null, "end_date": "2024-02-01", "announcement_type": "end-only", "is_purchase_limit_announcement": true, "confidence": 0.9}` +
		"\n```\nLet me know if you need anything else."

	result, err := ParseResponse(reply)
	require.NoError(t, err)
	assert.Nil(t, result.LimitAmount)
	require.NotNil(t, result.EndDate)
	assert.Equal(t, "2024-02-01", *result.EndDate)
	assert.Equal(t, "end-only", result.Type)
}

func TestParseResponseNoJSON(t *testing.T) {
	_, err := ParseResponse("I could not find any limit information.")
	assert.Error(t, err)
}

func TestParseResponseNormalizesChineseDates(t *testing.T) {
	reply := `{"ticker": null, "start_date": "2024年1月15日", "end_date": "2024/03/01", "announcement_type": "complete", "is_purchase_limit_announcement": true, "confidence": 0.8}`

	result, err := ParseResponse(reply)
	require.NoError(t, err)
	require.NotNil(t, result.StartDate)
	assert.Equal(t, "2024-01-15", *result.StartDate)
	require.NotNil(t, result.EndDate)
	assert.Equal(t, "2024-03-01", *result.EndDate)
}

func TestParseResponseRejectsImpossibleDate(t *testing.T) {
	reply := `{"start_date": "2024-02-31", "is_purchase_limit_announcement": true, "confidence": 0.8}`

	result, err := ParseResponse(reply)
	require.NoError(t, err)
	assert.Nil(t, result.StartDate)
}

func TestParseResponseAmountAsString(t *testing.T) {
	reply := `{"limit_amount": "1,000", "is_purchase_limit_announcement": true, "confidence": "0.7"}`

	result, err := ParseResponse(reply)
	require.NoError(t, err)
	require.NotNil(t, result.LimitAmount)
	assert.Equal(t, 1000.0, *result.LimitAmount)
	assert.Equal(t, 0.7, result.Confidence)
}

func TestParseResponseDropsUnknownTypeLabel(t *testing.T) {
	reply := `{"announcement_type": "suspension", "is_purchase_limit_announcement": true, "confidence": 0.8}`

	result, err := ParseResponse(reply)
	require.NoError(t, err)
	assert.Empty(t, result.Type)
}

func TestToAssertionKindFollowsFields(t *testing.T) {
	announced := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		start    *string
		end      *string
		wantKind contracts.AssertionKind
	}{
		{"both dates", strPtr("2024-01-15"), strPtr("2024-03-01"), contracts.KindComplete},
		{"start only", strPtr("2024-01-15"), nil, contracts.KindOpenStart},
		{"end only", nil, strPtr("2024-03-01"), contracts.KindEndOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &ParseResult{
				StartDate:       tt.start,
				EndDate:         tt.end,
				IsPurchaseLimit: true,
				Confidence:      0.9,
			}
			a, ok := r.ToAssertion("161005", "ann-1", announced)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, a.Kind)
			assert.Equal(t, "161005", a.Ticker)
			assert.Equal(t, announced, a.AnnouncedAt)
		})
	}
}

func TestToAssertionSkipsNonLimit(t *testing.T) {
	r := &ParseResult{IsPurchaseLimit: false, StartDate: strPtr("2024-01-15")}
	_, ok := r.ToAssertion("161005", "ann-1", time.Now())
	assert.False(t, ok)
}

func TestToAssertionSkipsDatelessParse(t *testing.T) {
	r := &ParseResult{IsPurchaseLimit: true}
	_, ok := r.ToAssertion("161005", "ann-1", time.Now())
	assert.False(t, ok)
}

func TestToAssertionFallsBackToParsedTicker(t *testing.T) {
	r := &ParseResult{
		Ticker:          "161005",
		StartDate:       strPtr("2024-01-15"),
		IsPurchaseLimit: true,
	}
	a, ok := r.ToAssertion("", "ann-1", time.Now())
	require.True(t, ok)
	assert.Equal(t, "161005", a.Ticker)

	r.Ticker = ""
	_, ok = r.ToAssertion("", "ann-1", time.Now())
	assert.False(t, ok, "no ticker from any side drops the parse")
}

func strPtr(s string) *string { return &s }
