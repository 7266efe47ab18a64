package timeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/loflimit/internal/contracts"
)

// Repository persists canonical intervals and the audit log. It is the
// only writer of limits.limit_events and limits.limit_event_log.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ contracts.IntervalRepository = (*Repository)(nil)
var _ contracts.AuditLogRepository = (*Repository)(nil)

// GetByTicker returns one fund's intervals ordered by start date.
func (r *Repository) GetByTicker(ctx context.Context, ticker string) ([]*contracts.CanonicalInterval, error) {
	query := `
		SELECT id, ticker, start_date, end_date, max_amount,
		       source_announcement_ids, COALESCE(reason, '')
		FROM limits.limit_events
		WHERE ticker = $1
		ORDER BY start_date
	`

	rows, err := r.pool.Query(ctx, query, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to query intervals: %w", err)
	}
	defer rows.Close()

	var intervals []*contracts.CanonicalInterval
	for rows.Next() {
		var ci contracts.CanonicalInterval
		var sourcesJSON []byte

		err := rows.Scan(&ci.ID, &ci.Ticker, &ci.StartDate, &ci.EndDate,
			&ci.Ceiling, &sourcesJSON, &ci.Note)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interval: %w", err)
		}
		if len(sourcesJSON) > 0 {
			if err := json.Unmarshal(sourcesJSON, &ci.SourceIDs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal source ids: %w", err)
			}
		}
		intervals = append(intervals, &ci)
	}

	return intervals, rows.Err()
}

// ApplyDelta applies one fund's reconciliation delta in a single
// transaction. The fund's interval rows are locked and their IDs
// compared to the snapshot the diff was computed against; on mismatch
// nothing is written and contracts.ErrStaleRead is returned.
func (r *Repository) ApplyDelta(ctx context.Context, ticker string, priorIDs []int64, delta *contracts.IntervalDelta) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockIntervalIDs(ctx, tx, ticker)
	if err != nil {
		return err
	}
	if !sameIDSet(current, priorIDs) {
		return contracts.ErrStaleRead
	}

	if len(delta.Removals) > 0 {
		_, err = tx.Exec(ctx,
			`DELETE FROM limits.limit_events WHERE ticker = $1 AND id = ANY($2)`,
			ticker, delta.Removals)
		if err != nil {
			return fmt.Errorf("failed to delete absorbed intervals: %w", err)
		}
	}

	for _, ci := range delta.Upserts {
		sourcesJSON, err := json.Marshal(ci.SourceIDs)
		if err != nil {
			return fmt.Errorf("failed to marshal source ids: %w", err)
		}

		if ci.ID == 0 {
			err = tx.QueryRow(ctx, `
				INSERT INTO limits.limit_events
					(ticker, start_date, end_date, max_amount, reason, source_announcement_ids)
				VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
				RETURNING id
			`, ci.Ticker, ci.StartDate, ci.EndDate, ci.Ceiling, ci.Note, sourcesJSON).Scan(&ci.ID)
			if err != nil {
				return fmt.Errorf("failed to insert interval: %w", err)
			}
		} else {
			_, err = tx.Exec(ctx, `
				UPDATE limits.limit_events
				SET start_date = $2, end_date = $3, max_amount = $4,
				    reason = NULLIF($5, ''), source_announcement_ids = $6
				WHERE id = $1
			`, ci.ID, ci.StartDate, ci.EndDate, ci.Ceiling, ci.Note, sourcesJSON)
			if err != nil {
				return fmt.Errorf("failed to update interval %d: %w", ci.ID, err)
			}
		}
	}

	for _, e := range delta.Entries {
		_, err = tx.Exec(ctx, `
			INSERT INTO limits.limit_event_log
				(ticker, operation, old_start, old_end, new_start, new_end, triggered_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, e.Ticker, string(e.Operation), e.OldStart, e.OldEnd, e.NewStart, e.NewEnd,
			e.TriggeredBy, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert audit entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit delta: %w", err)
	}

	return nil
}

// ListTickers returns every ticker that has at least one interval.
func (r *Repository) ListTickers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT ticker FROM limits.limit_events ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}

	return tickers, rows.Err()
}

// GetAuditLog returns the newest audit entries for a fund.
func (r *Repository) GetAuditLog(ctx context.Context, ticker string, limit int) ([]*contracts.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, ticker, operation, old_start, old_end, new_start, new_end,
		       triggered_by, created_at
		FROM limits.limit_event_log
		WHERE ticker = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*contracts.AuditEntry
	for rows.Next() {
		var e contracts.AuditEntry
		var op string
		err := rows.Scan(&e.ID, &e.Ticker, &op, &e.OldStart, &e.OldEnd,
			&e.NewStart, &e.NewEnd, &e.TriggeredBy, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Operation = contracts.AuditOperation(op)
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

func lockIntervalIDs(ctx context.Context, tx pgx.Tx, ticker string) ([]int64, error) {
	rows, err := tx.Query(ctx,
		`SELECT id FROM limits.limit_events WHERE ticker = $1 ORDER BY id FOR UPDATE`,
		ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to lock intervals: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan interval id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func sameIDSet(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[int64]bool, len(a))
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		if !seen[id] {
			return false
		}
	}
	return true
}
