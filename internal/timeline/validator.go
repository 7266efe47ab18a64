package timeline

import (
	"math"

	"github.com/wonny/loflimit/internal/contracts"
)

// Validate checks one raw assertion against the structural rules of its
// kind. It returns nil when the assertion may enter the fold, or a
// *contracts.ValidationError naming the violated rule. Pure function,
// no side effects.
func Validate(a *contracts.RawAssertion) error {
	if a.Ticker == "" {
		return &contracts.ValidationError{SourceID: a.SourceID, Rule: "missing ticker"}
	}
	if !a.Kind.Valid() {
		return &contracts.ValidationError{SourceID: a.SourceID, Rule: "unknown kind " + string(a.Kind)}
	}

	switch a.Kind {
	case contracts.KindComplete:
		if a.StartDate == nil || a.EndDate == nil {
			return &contracts.ValidationError{SourceID: a.SourceID, Rule: "complete assertion requires both start and end date"}
		}
		if a.EndDate.Before(*a.StartDate) {
			return &contracts.ValidationError{SourceID: a.SourceID, Rule: "start date after end date"}
		}
	case contracts.KindOpenStart:
		if a.StartDate == nil {
			return &contracts.ValidationError{SourceID: a.SourceID, Rule: "open-start assertion requires a start date"}
		}
		if a.EndDate != nil {
			return &contracts.ValidationError{SourceID: a.SourceID, Rule: "open-start assertion must not carry an end date"}
		}
	case contracts.KindEndOnly:
		if a.EndDate == nil {
			return &contracts.ValidationError{SourceID: a.SourceID, Rule: "end-only assertion requires an end date"}
		}
		if a.StartDate != nil {
			return &contracts.ValidationError{SourceID: a.SourceID, Rule: "end-only assertion must not carry a start date"}
		}
	}

	if a.Ceiling != nil {
		if math.IsNaN(*a.Ceiling) || math.IsInf(*a.Ceiling, 0) {
			return &contracts.ValidationError{SourceID: a.SourceID, Rule: "ceiling must be finite"}
		}
		if *a.Ceiling < 0 {
			return &contracts.ValidationError{SourceID: a.SourceID, Rule: "ceiling must not be negative"}
		}
	}

	return nil
}
