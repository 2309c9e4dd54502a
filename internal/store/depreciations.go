package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iwvelando/capex-depreciation/pkg/datetime"
	"github.com/iwvelando/capex-depreciation/pkg/depreciation"
	"go.uber.org/zap"
)

// Schedule is the stored depreciation of one project.
type Schedule struct {
	ProjectID string
	Kind      depreciation.Kind
	Records   []depreciation.Record
}

// ReplaceDepreciationRecords atomically replaces every stored record of the
// project.
func (s *Store) ReplaceDepreciationRecords(ctx context.Context, projectID string, kind depreciation.Kind, records []depreciation.Record) error {
	deleteAll := s.rebind(`DELETE FROM calculated_depreciations WHERE project_id = ?`)
	insert := s.rebind(`
		INSERT INTO calculated_depreciations (project_id, year, month, method, base, charge, remaining)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deleteAll, projectID); err != nil {
			return fmt.Errorf("store: delete depreciation for %s: %w", projectID, err)
		}

		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return fmt.Errorf("store: prepare depreciation insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			if _, err := stmt.ExecContext(ctx, projectID, r.Period.Year, r.Period.Month, string(kind),
				r.Base, r.Charge, r.Remaining); err != nil {
				return fmt.Errorf("store: insert depreciation %s/%s: %w", projectID, r.Period, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug(fmt.Sprintf("replaced depreciation of project %s with %d records", projectID, len(records)),
		zap.String("op", "store.ReplaceDepreciationRecords"),
	)
	return nil
}

// DepreciationSchedule loads the stored records of a project in period order.
// A project without records yields an empty schedule.
func (s *Store) DepreciationSchedule(ctx context.Context, projectID string) (Schedule, error) {
	query := s.rebind(`
		SELECT year, month, method, base, charge, remaining
		FROM calculated_depreciations
		WHERE project_id = ?
		ORDER BY year, month`)
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return Schedule{}, fmt.Errorf("store: load depreciation for %s: %w", projectID, err)
	}
	defer rows.Close()

	schedule := Schedule{ProjectID: projectID}
	for rows.Next() {
		var (
			r           depreciation.Record
			year, month int
			kind        string
		)
		if err := rows.Scan(&year, &month, &kind, &r.Base, &r.Charge, &r.Remaining); err != nil {
			return Schedule{}, fmt.Errorf("store: scan depreciation: %w", err)
		}
		r.Period = datetime.Monthly(year, month)
		schedule.Kind = depreciation.Kind(kind)
		schedule.Records = append(schedule.Records, r)
	}
	if err := rows.Err(); err != nil {
		return Schedule{}, fmt.Errorf("store: iterate depreciation: %w", err)
	}
	return schedule, nil
}

// DepreciationSchedules loads the schedules of every project that has one.
func (s *Store) DepreciationSchedules(ctx context.Context) ([]Schedule, error) {
	ids, err := s.ProjectIDs(ctx)
	if err != nil {
		return nil, err
	}

	var schedules []Schedule
	for _, id := range ids {
		schedule, err := s.DepreciationSchedule(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(schedule.Records) > 0 {
			schedules = append(schedules, schedule)
		}
	}
	return schedules, nil
}

// HasCalculatedDepreciations reports whether any records are stored for the
// project.
func (s *Store) HasCalculatedDepreciations(ctx context.Context, projectID string) (bool, error) {
	var count int
	query := s.rebind(`SELECT COUNT(*) FROM calculated_depreciations WHERE project_id = ?`)
	if err := s.db.QueryRowContext(ctx, query, projectID).Scan(&count); err != nil {
		return false, fmt.Errorf("store: count depreciation for %s: %w", projectID, err)
	}
	return count > 0, nil
}

// ClearCalculations removes every calculated record.
func (s *Store) ClearCalculations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM calculated_depreciations`); err != nil {
		return fmt.Errorf("store: clear calculations: %w", err)
	}
	s.logger.Info("cleared calculated depreciation", zap.String("op", "store.ClearCalculations"))
	return nil
}

// Reset removes all data while keeping the schema.
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{
		"calculated_depreciations",
		"depreciation_starts",
		"investments",
		"project_classifications",
		"projects",
		"depreciation_methods",
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("store: clear %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("database reset", zap.String("op", "store.Reset"))
	return nil
}
