package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/iwvelando/capex-depreciation/pkg/depreciation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Investment is an amount booked against a project in a year, and
// optionally a month.
type Investment struct {
	ProjectID string          `json:"projectId"`
	Year      int             `json:"year"`
	Month     int             `json:"month,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
}

// DepreciationStart marks the year and month depreciation begins.
type DepreciationStart struct {
	ProjectID string `json:"projectId"`
	Year      int    `json:"year"`
	Month     int    `json:"month"`
}

type projectYear struct {
	projectID string
	year      int
}

// SaveInvestments stores investments in one transaction. For every
// (project, year) present in the batch the previously stored investments of
// that year are replaced, so importing the same sheet twice is idempotent.
func (s *Store) SaveInvestments(ctx context.Context, investments []Investment) error {
	seen := make(map[projectYear]bool)
	var years []projectYear
	for _, inv := range investments {
		key := projectYear{inv.ProjectID, inv.Year}
		if !seen[key] {
			seen[key] = true
			years = append(years, key)
		}
	}

	deleteYear := s.rebind(`DELETE FROM investments WHERE project_id = ? AND year = ?`)
	insert := s.rebind(`INSERT INTO investments (project_id, year, month, amount) VALUES (?, ?, ?, ?)`)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, key := range years {
			if _, err := tx.ExecContext(ctx, deleteYear, key.projectID, key.year); err != nil {
				return fmt.Errorf("store: clear investments %s/%d: %w", key.projectID, key.year, err)
			}
		}

		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return fmt.Errorf("store: prepare investment insert: %w", err)
		}
		defer stmt.Close()

		for _, inv := range investments {
			month := sql.NullInt64{Int64: int64(inv.Month), Valid: inv.Month != 0}
			if _, err := stmt.ExecContext(ctx, inv.ProjectID, inv.Year, month, inv.Amount); err != nil {
				return fmt.Errorf("store: insert investment %s/%d: %w", inv.ProjectID, inv.Year, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug(fmt.Sprintf("saved %d investments across %d project years", len(investments), len(years)),
		zap.String("op", "store.SaveInvestments"),
	)
	return nil
}

// AddInvestment appends one investment. Investments already stored for the
// same year are kept and summed with it.
func (s *Store) AddInvestment(ctx context.Context, inv Investment) error {
	insert := s.rebind(`INSERT INTO investments (project_id, year, month, amount) VALUES (?, ?, ?, ?)`)
	month := sql.NullInt64{Int64: int64(inv.Month), Valid: inv.Month != 0}
	if _, err := s.db.ExecContext(ctx, insert, inv.ProjectID, inv.Year, month, inv.Amount); err != nil {
		return fmt.Errorf("store: insert investment %s/%d: %w", inv.ProjectID, inv.Year, err)
	}

	s.logger.Debug(fmt.Sprintf("added investment of %s to project %s in %d", inv.Amount, inv.ProjectID, inv.Year),
		zap.String("op", "store.AddInvestment"),
	)
	return nil
}

// SaveDepreciationStart upserts one start marker and leaves the project's
// other start years untouched.
func (s *Store) SaveDepreciationStart(ctx context.Context, st DepreciationStart) error {
	upsert := s.rebind(`
		INSERT INTO depreciation_starts (project_id, start_year, start_month)
		VALUES (?, ?, ?)
		ON CONFLICT (project_id, start_year) DO UPDATE SET start_month = excluded.start_month`)
	if _, err := s.db.ExecContext(ctx, upsert, st.ProjectID, st.Year, st.Month); err != nil {
		return fmt.Errorf("store: save depreciation start %s/%d: %w", st.ProjectID, st.Year, err)
	}
	return nil
}

// SaveDepreciationStarts upserts start markers. For every project in the
// batch, stored starts whose year is not part of the batch are removed.
func (s *Store) SaveDepreciationStarts(ctx context.Context, starts []DepreciationStart) error {
	keep := make(map[string]map[int]bool)
	for _, st := range starts {
		if keep[st.ProjectID] == nil {
			keep[st.ProjectID] = make(map[int]bool)
		}
		keep[st.ProjectID][st.Year] = true
	}

	upsert := s.rebind(`
		INSERT INTO depreciation_starts (project_id, start_year, start_month)
		VALUES (?, ?, ?)
		ON CONFLICT (project_id, start_year) DO UPDATE SET start_month = excluded.start_month`)
	selectYears := s.rebind(`SELECT start_year FROM depreciation_starts WHERE project_id = ?`)
	deleteYear := s.rebind(`DELETE FROM depreciation_starts WHERE project_id = ? AND start_year = ?`)

	removed := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, st := range starts {
			if _, err := tx.ExecContext(ctx, upsert, st.ProjectID, st.Year, st.Month); err != nil {
				return fmt.Errorf("store: save depreciation start %s/%d: %w", st.ProjectID, st.Year, err)
			}
		}

		for projectID, years := range keep {
			stored, err := queryInts(ctx, tx, selectYears, projectID)
			if err != nil {
				return fmt.Errorf("store: list depreciation starts for %s: %w", projectID, err)
			}
			for _, year := range stored {
				if years[year] {
					continue
				}
				if _, err := tx.ExecContext(ctx, deleteYear, projectID, year); err != nil {
					return fmt.Errorf("store: remove depreciation start %s/%d: %w", projectID, year, err)
				}
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug(fmt.Sprintf("saved %d depreciation starts and removed %d obsolete ones", len(starts), removed),
		zap.String("op", "store.SaveDepreciationStarts"),
	)
	return nil
}

// Investments returns a project's stored investments ordered by year.
func (s *Store) Investments(ctx context.Context, projectID string) ([]Investment, error) {
	query := s.rebind(`
		SELECT year, month, amount FROM investments
		WHERE project_id = ?
		ORDER BY year, investment_id`)
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: load investments for %s: %w", projectID, err)
	}
	defer rows.Close()

	var investments []Investment
	for rows.Next() {
		var (
			inv   = Investment{ProjectID: projectID}
			month sql.NullInt64
		)
		if err := rows.Scan(&inv.Year, &month, &inv.Amount); err != nil {
			return nil, fmt.Errorf("store: scan investment: %w", err)
		}
		inv.Month = int(month.Int64)
		investments = append(investments, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate investments: %w", err)
	}
	return investments, nil
}

// DepreciationStarts returns a project's start markers ordered by year.
// A missing month is reported as January.
func (s *Store) DepreciationStarts(ctx context.Context, projectID string) ([]DepreciationStart, error) {
	query := s.rebind(`
		SELECT start_year, start_month FROM depreciation_starts
		WHERE project_id = ?
		ORDER BY start_year`)
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: load depreciation starts for %s: %w", projectID, err)
	}
	defer rows.Close()

	var starts []DepreciationStart
	for rows.Next() {
		var (
			st    = DepreciationStart{ProjectID: projectID}
			month sql.NullInt64
		)
		if err := rows.Scan(&st.Year, &month); err != nil {
			return nil, fmt.Errorf("store: scan depreciation start: %w", err)
		}
		st.Month = int(month.Int64)
		if st.Month == 0 {
			st.Month = 1
		}
		starts = append(starts, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate depreciation starts: %w", err)
	}
	return starts, nil
}

// InvestmentEvents joins a project's investments with its start markers.
// Every marker becomes a zero-amount event at its own year and month, so only
// investment booked up to and including the start lands in the opening slot.
func (s *Store) InvestmentEvents(ctx context.Context, projectID string) ([]depreciation.InvestmentEvent, error) {
	investments, err := s.Investments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	starts, err := s.DepreciationStarts(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return joinEvents(investments, starts), nil
}

// joinEvents orders events by calendar month. Markers follow investments of
// the same month.
func joinEvents(investments []Investment, starts []DepreciationStart) []depreciation.InvestmentEvent {
	events := make([]depreciation.InvestmentEvent, 0, len(investments)+len(starts))
	for _, inv := range investments {
		events = append(events, depreciation.InvestmentEvent{
			Year:   inv.Year,
			Month:  inv.Month,
			Amount: inv.Amount,
		})
	}
	for _, st := range starts {
		events = append(events, depreciation.InvestmentEvent{
			Year:   st.Year,
			Month:  st.Month,
			Amount: decimal.Zero,
			Start:  &depreciation.StartMarker{Year: st.Year, Month: st.Month},
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Period().Before(events[j].Period())
	})
	return events
}

func queryInts(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]int, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
