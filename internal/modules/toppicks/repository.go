package toppicks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/optiwealth/internal/database"
	"github.com/rs/zerolog"
)

// Pick is a stored top pick
type Pick struct {
	Symbol         string    `json:"symbol"`
	Period         string    `json:"period"`
	CompanyName    string    `json:"companyName"`
	Sector         string    `json:"sector"`
	LastPrice      float64   `json:"lastPrice"`
	ExpectedTarget float64   `json:"expectedTarget"`
	ReturnPercent  float64   `json:"returnPercent"`
	Score          float64   `json:"score"`
	Rationale      string    `json:"rationale"`
	RunID          string    `json:"runId"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

const pickColumns = `symbol, period, company_name, sector, last_price, expected_target,
	return_percent, score, rationale, run_id, updated_at`

const upsertPick = `
	INSERT INTO top_picks (` + pickColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(symbol, period) DO UPDATE SET
		company_name = excluded.company_name,
		sector = excluded.sector,
		last_price = excluded.last_price,
		expected_target = excluded.expected_target,
		return_percent = excluded.return_percent,
		score = excluded.score,
		rationale = excluded.rationale,
		run_id = excluded.run_id,
		updated_at = excluded.updated_at
`

// Repository persists top picks in the top_picks table
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new top picks repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "top_picks").Logger(),
	}
}

// Upsert inserts or updates a single pick keyed on (symbol, period)
func (r *Repository) Upsert(ctx context.Context, pick Pick) error {
	if _, err := r.db.ExecContext(ctx, upsertPick, pickArgs(pick)...); err != nil {
		return fmt.Errorf("failed to upsert top pick %s/%s: %w", pick.Symbol, pick.Period, err)
	}
	return nil
}

// ReplacePeriod swaps the stored picks of a period in one transaction.
// Symbols that dropped out of the ranking are removed.
func (r *Repository) ReplacePeriod(ctx context.Context, period string, picks []Pick) error {
	err := database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM top_picks WHERE period = ?`, period); err != nil {
			return fmt.Errorf("failed to clear period: %w", err)
		}
		for _, pick := range picks {
			pick.Period = period
			if _, err := tx.ExecContext(ctx, upsertPick, pickArgs(pick)...); err != nil {
				return fmt.Errorf("failed to store %s: %w", pick.Symbol, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace top picks for %s: %w", period, err)
	}

	r.log.Debug().Str("period", period).Int("picks", len(picks)).Msg("Top picks stored")
	return nil
}

// ListByPeriod returns the picks of one period, best score first
func (r *Repository) ListByPeriod(ctx context.Context, period string) ([]Pick, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+pickColumns+` FROM top_picks WHERE period = ? ORDER BY score DESC, symbol`, period)
	if err != nil {
		return nil, fmt.Errorf("failed to query top picks: %w", err)
	}
	defer rows.Close()
	return scanPicks(rows)
}

// ListAll returns every stored pick grouped by period name
func (r *Repository) ListAll(ctx context.Context) (map[string][]Pick, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+pickColumns+` FROM top_picks ORDER BY period, score DESC, symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query top picks: %w", err)
	}
	defer rows.Close()

	picks, err := scanPicks(rows)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]Pick)
	for _, pick := range picks {
		grouped[pick.Period] = append(grouped[pick.Period], pick)
	}
	return grouped, nil
}

func pickArgs(p Pick) []interface{} {
	return []interface{}{
		p.Symbol, p.Period, p.CompanyName, p.Sector, p.LastPrice, p.ExpectedTarget,
		p.ReturnPercent, p.Score, p.Rationale, p.RunID, p.UpdatedAt.Unix(),
	}
}

func scanPicks(rows *sql.Rows) ([]Pick, error) {
	picks := []Pick{}
	for rows.Next() {
		var p Pick
		var updatedAt int64
		if err := rows.Scan(&p.Symbol, &p.Period, &p.CompanyName, &p.Sector, &p.LastPrice,
			&p.ExpectedTarget, &p.ReturnPercent, &p.Score, &p.Rationale, &p.RunID, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan top pick: %w", err)
		}
		p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		picks = append(picks, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate top picks: %w", err)
	}
	return picks, nil
}
