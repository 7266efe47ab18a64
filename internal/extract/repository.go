package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/loflimit/internal/contracts"
)

// Repository persists extraction results in limits.announcement_parses.
type Repository struct {
	pool *pgxpool.Pool
}

func NewParseRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ contracts.ParseRepository = (*Repository)(nil)

// SaveParse upserts one extracted assertion keyed by its source
// announcement, so re-parsing the same document cannot duplicate it.
// The announcement's raw text is stored alongside the assertion so a
// parse can be redone without refetching.
func (r *Repository) SaveParse(ctx context.Context, a *contracts.RawAssertion, rawText string) error {
	parseJSON, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal assertion: %w", err)
	}

	query := `
		INSERT INTO limits.announcement_parses
			(ticker, announcement_date, source_id, raw_text, parse_result, parse_type, confidence, processed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		ON CONFLICT (source_id) DO UPDATE SET
			ticker = EXCLUDED.ticker,
			announcement_date = EXCLUDED.announcement_date,
			raw_text = EXCLUDED.raw_text,
			parse_result = EXCLUDED.parse_result,
			parse_type = EXCLUDED.parse_type,
			confidence = EXCLUDED.confidence,
			processed = TRUE
	`

	_, err = r.pool.Exec(ctx, query,
		a.Ticker, a.AnnouncedAt, a.SourceID, rawText, parseJSON, string(a.Kind), a.Confidence)
	if err != nil {
		return fmt.Errorf("failed to save parse: %w", err)
	}

	return nil
}

// GetAssertions loads the stored assertions for one fund announced up
// to asOf.
func (r *Repository) GetAssertions(ctx context.Context, ticker string, asOf time.Time) ([]*contracts.RawAssertion, error) {
	query := `
		SELECT parse_result
		FROM limits.announcement_parses
		WHERE ticker = $1 AND announcement_date <= $2 AND parse_result IS NOT NULL
		ORDER BY announcement_date, source_id
	`

	rows, err := r.pool.Query(ctx, query, ticker, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query parses: %w", err)
	}
	defer rows.Close()

	var assertions []*contracts.RawAssertion
	for rows.Next() {
		var parseJSON []byte
		if err := rows.Scan(&parseJSON); err != nil {
			return nil, fmt.Errorf("failed to scan parse: %w", err)
		}
		var a contracts.RawAssertion
		if err := json.Unmarshal(parseJSON, &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal assertion: %w", err)
		}
		assertions = append(assertions, &a)
	}

	return assertions, rows.Err()
}

// ListTickers returns every fund with at least one stored parse.
func (r *Repository) ListTickers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT ticker FROM limits.announcement_parses WHERE ticker <> '' ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to list parse tickers: %w", err)
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

// PruneRawText drops the stored raw text of processed parses announced
// before the cutoff, returning the number of rows trimmed. The
// extracted assertion in parse_result is untouched, so timeline
// replays are unaffected.
func (r *Repository) PruneRawText(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE limits.announcement_parses
		 SET raw_text = NULL
		 WHERE processed AND raw_text IS NOT NULL AND announcement_date < $1`,
		olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune raw text: %w", err)
	}

	return tag.RowsAffected(), nil
}

// HasParse reports whether a source announcement was already parsed.
func (r *Repository) HasParse(ctx context.Context, sourceID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM limits.announcement_parses WHERE source_id = $1)`,
		sourceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check parse: %w", err)
	}
	return exists, nil
}
