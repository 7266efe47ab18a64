package contracts

import "time"

// AssertionKind classifies how an announcement describes a restriction
// period. The three kinds are a closed set; anything else is rejected
// before it reaches the timeline fold.
type AssertionKind string

const (
	// KindComplete carries both a start and an end date.
	KindComplete AssertionKind = "complete"

	// KindOpenStart opens a restriction with a start date and no end.
	KindOpenStart AssertionKind = "open-start"

	// KindEndOnly closes or extends a previously announced restriction.
	KindEndOnly AssertionKind = "end-only"
)

// Valid reports whether k is one of the known kinds
func (k AssertionKind) Valid() bool {
	switch k {
	case KindComplete, KindOpenStart, KindEndOnly:
		return true
	}
	return false
}

// RawAssertion is one machine-extracted claim about a purchase
// restriction, tied to one source announcement. Assertions arrive in
// announcement order, not timeline order.
type RawAssertion struct {
	Ticker      string        `json:"ticker"`
	AnnouncedAt time.Time     `json:"announced_at"` // ordering key
	SourceID    string        `json:"source_id"`    // originating announcement, provenance + tie-break
	Kind        AssertionKind `json:"kind"`
	StartDate   *time.Time    `json:"start_date,omitempty"` // set iff Complete or OpenStart
	EndDate     *time.Time    `json:"end_date,omitempty"`   // set iff Complete or EndOnly
	Ceiling     *float64      `json:"ceiling,omitempty"`    // nil = unspecified, inherit context
	Confidence  float64       `json:"confidence"`           // informational only, never thresholded here
}
