package contracts

import "time"

// AuditOperation names a timeline state transition
type AuditOperation string

const (
	OpCreate AuditOperation = "create"
	OpExtend AuditOperation = "extend"
	OpClose  AuditOperation = "close"
	OpMerge  AuditOperation = "merge"
)

// AuditEntry is an immutable record of one timeline transition.
// Entries are append-only: never mutated, never deleted.
type AuditEntry struct {
	ID          int64          `json:"id"`
	Ticker      string         `json:"ticker"`
	Operation   AuditOperation `json:"operation"`
	OldStart    *time.Time     `json:"old_start,omitempty"`
	OldEnd      *time.Time     `json:"old_end,omitempty"`
	NewStart    *time.Time     `json:"new_start,omitempty"`
	NewEnd      *time.Time     `json:"new_end,omitempty"`
	TriggeredBy string         `json:"triggered_by"` // source announcement ID
	CreatedAt   time.Time      `json:"created_at"`
}
