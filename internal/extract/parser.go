package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/loflimit/internal/contracts"
)

// ParseResult is the cleaned extraction output for one announcement.
type ParseResult struct {
	Ticker          string   `json:"ticker"`
	LimitAmount     *float64 `json:"limit_amount"`
	StartDate       *string  `json:"start_date"`
	EndDate         *string  `json:"end_date"`
	Type            string   `json:"announcement_type"`
	IsPurchaseLimit bool     `json:"is_purchase_limit_announcement"`
	Confidence      float64  `json:"confidence"`
}

const promptTemplate = `You are a financial document parser specializing in Chinese fund announcements.

Extract purchase limit information from the announcement text below and
return a single JSON object with these fields:

- "ticker": fund code string or null
- "limit_amount": maximum purchase amount in CNY as a number, null if unlimited or unspecified
- "start_date": "YYYY-MM-DD" or null
- "end_date": "YYYY-MM-DD" or null
- "announcement_type": one of "complete", "open-start", "end-only", "modify", or null
- "is_purchase_limit_announcement": boolean, false for reports, dividends and other non-limit notices
- "confidence": number 0-1

Type definitions:
1. complete: both start and end date are stated
2. open-start: the limit is already active, only the end date is stated
3. end-only: announces the end or lifting of an existing limit
4. modify: changes the amount or dates of an existing limit

Normalize Chinese date formats (2024年1月15日) to YYYY-MM-DD and amounts
in 万元 to plain CNY. Use null for anything not clearly stated.

Announcement text:
---
%s
---

Return ONLY the JSON object, no additional explanation.`

// BuildPrompt formats the extraction prompt for one announcement text.
func BuildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, text)
}

var (
	jsonBlockRe = regexp.MustCompile("(?s)\\{.*\\}")
	numDateRe   = regexp.MustCompile(`(\d{4})[-/.年](\d{1,2})[-/.月](\d{1,2})日?`)
)

// ParseResponse decodes a raw model reply into a cleaned ParseResult.
// Models wrap JSON in prose or code fences; the first JSON object in
// the reply is taken. Dates and amounts are normalized, unknown type
// labels dropped.
func ParseResponse(raw string) (*ParseResult, error) {
	block := jsonBlockRe.FindString(raw)
	if block == "" {
		return nil, fmt.Errorf("no JSON object in model reply")
	}

	var loose struct {
		Ticker          interface{} `json:"ticker"`
		LimitAmount     interface{} `json:"limit_amount"`
		StartDate       interface{} `json:"start_date"`
		EndDate         interface{} `json:"end_date"`
		Type            interface{} `json:"announcement_type"`
		IsPurchaseLimit interface{} `json:"is_purchase_limit_announcement"`
		Confidence      interface{} `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(block), &loose); err != nil {
		return nil, fmt.Errorf("failed to decode model reply: %w", err)
	}

	result := &ParseResult{}

	if s, ok := loose.Ticker.(string); ok {
		result.Ticker = strings.TrimSpace(s)
	}
	result.LimitAmount = toAmount(loose.LimitAmount)
	result.StartDate = normalizeDate(loose.StartDate)
	result.EndDate = normalizeDate(loose.EndDate)

	if s, ok := loose.Type.(string); ok {
		switch s {
		case "complete", "open-start", "end-only", "modify":
			result.Type = s
		}
	}
	if b, ok := loose.IsPurchaseLimit.(bool); ok {
		result.IsPurchaseLimit = b
	}
	if c := toAmount(loose.Confidence); c != nil && *c >= 0 && *c <= 1 {
		result.Confidence = *c
	}

	return result, nil
}

func toAmount(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", ""), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

// normalizeDate accepts the date formats models produce (ISO, slashed,
// dotted, Chinese) and returns YYYY-MM-DD, or nil when unparseable.
func normalizeDate(v interface{}) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return nil
	}

	m := numDateRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// Reject wrapped dates like 2024-02-31.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return nil
	}
	out := t.Format("2006-01-02")
	return &out
}

// ToAssertion converts a parse result into a raw assertion for the
// timeline. The kind is decided by which dates are actually present,
// not by the model's type label: labels drift, fields do not. Returns
// false for non-limit announcements and parses with no usable dates.
func (r *ParseResult) ToAssertion(ticker, sourceID string, announcedAt time.Time) (*contracts.RawAssertion, bool) {
	if !r.IsPurchaseLimit {
		return nil, false
	}
	if ticker == "" {
		ticker = r.Ticker
	}
	if ticker == "" {
		return nil, false
	}

	a := &contracts.RawAssertion{
		Ticker:      ticker,
		AnnouncedAt: announcedAt,
		SourceID:    sourceID,
		Ceiling:     r.LimitAmount,
		Confidence:  r.Confidence,
	}

	start := parseDatePtr(r.StartDate)
	end := parseDatePtr(r.EndDate)

	switch {
	case start != nil && end != nil:
		a.Kind = contracts.KindComplete
		a.StartDate = start
		a.EndDate = end
	case start != nil:
		a.Kind = contracts.KindOpenStart
		a.StartDate = start
	case end != nil:
		a.Kind = contracts.KindEndOnly
		a.EndDate = end
	default:
		return nil, false
	}

	return a, true
}

func parseDatePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil
	}
	return &t
}
