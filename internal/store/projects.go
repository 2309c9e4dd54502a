package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iwvelando/capex-depreciation/internal/ledger"
	"github.com/iwvelando/capex-depreciation/pkg/depreciation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Project is a capital investment project.
type Project struct {
	ID             string          `json:"projectId" yaml:"projectId"`
	Branch         string          `json:"branch" yaml:"branch"`
	Operations     string          `json:"operations" yaml:"operations"`
	Description    string          `json:"description" yaml:"description"`
	MethodID       *int64          `json:"methodId,omitempty" yaml:"methodId,omitempty"`
	Classification *Classification `json:"classification,omitempty" yaml:"classification,omitempty"`
}

// Classification ranks a project.
type Classification struct {
	ProjectID  string `json:"-" yaml:"-"`
	Importance int    `json:"importance" yaml:"importance"`
	Type       int    `json:"type" yaml:"type"`
}

// Method is a stored depreciation method. Exactly one of Rate and Duration
// is expected to be set.
type Method struct {
	ID          int64               `json:"id" yaml:"id"`
	Rate        decimal.NullDecimal `json:"rate" yaml:"rate"`
	Duration    *int                `json:"duration,omitempty" yaml:"duration,omitempty"`
	Description string              `json:"description" yaml:"description"`
}

// ProjectFilter narrows SearchProjects. Query matches id, branch, operations
// or description case-insensitively; Branch must match exactly when set.
type ProjectFilter struct {
	Query  string
	Branch string
}

// SaveProject inserts or updates a project.
func (s *Store) SaveProject(ctx context.Context, p Project) error {
	return s.SaveProjects(ctx, []Project{p})
}

// SaveProjects upserts projects, and their classifications when present, in
// a single transaction.
func (s *Store) SaveProjects(ctx context.Context, projects []Project) error {
	upsertProject := s.rebind(`
		INSERT INTO projects (project_id, branch, operations, description, method_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (project_id) DO UPDATE SET
			branch = excluded.branch,
			operations = excluded.operations,
			description = excluded.description,
			method_id = excluded.method_id`)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range projects {
			if strings.TrimSpace(p.ID) == "" {
				return fmt.Errorf("store: project id is required")
			}
			if _, err := tx.ExecContext(ctx, upsertProject,
				p.ID, p.Branch, p.Operations, p.Description, nullInt64(p.MethodID)); err != nil {
				return fmt.Errorf("store: save project %s: %w", p.ID, err)
			}
			if p.Classification != nil {
				c := *p.Classification
				c.ProjectID = p.ID
				if err := s.saveClassification(ctx, tx, c); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug(fmt.Sprintf("saved %d projects", len(projects)),
		zap.String("op", "store.SaveProjects"),
	)
	return nil
}

// SaveClassifications upserts project classifications in one transaction.
func (s *Store) SaveClassifications(ctx context.Context, classifications []Classification) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, c := range classifications {
			if err := s.saveClassification(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) saveClassification(ctx context.Context, tx *sql.Tx, c Classification) error {
	query := s.rebind(`
		INSERT INTO project_classifications (project_id, importance, type)
		VALUES (?, ?, ?)
		ON CONFLICT (project_id) DO UPDATE SET
			importance = excluded.importance,
			type = excluded.type`)
	if _, err := tx.ExecContext(ctx, query, c.ProjectID, c.Importance, c.Type); err != nil {
		return fmt.Errorf("store: save classification for %s: %w", c.ProjectID, err)
	}
	return nil
}

// Project loads a single project. Unknown ids return ledger.ErrProjectNotFound.
func (s *Store) Project(ctx context.Context, id string) (Project, error) {
	query := s.rebind(projectSelect + ` WHERE p.project_id = ?`)
	row := s.db.QueryRowContext(ctx, query, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, fmt.Errorf("%w: %s", ledger.ErrProjectNotFound, id)
	}
	if err != nil {
		return Project{}, fmt.Errorf("store: load project %s: %w", id, err)
	}
	return p, nil
}

// SearchProjects lists projects matching the filter ordered by id.
func (s *Store) SearchProjects(ctx context.Context, filter ProjectFilter) ([]Project, error) {
	var (
		conditions []string
		args       []any
	)
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		conditions = append(conditions,
			`(LOWER(p.project_id) LIKE ? OR LOWER(p.branch) LIKE ? OR LOWER(p.operations) LIKE ? OR LOWER(p.description) LIKE ?)`)
		args = append(args, pattern, pattern, pattern, pattern)
	}
	if filter.Branch != "" {
		conditions = append(conditions, `p.branch = ?`)
		args = append(args, filter.Branch)
	}

	query := projectSelect
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, ` AND `)
	}
	query += ` ORDER BY p.project_id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("store: search projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate projects: %w", err)
	}
	return projects, nil
}

// ProjectIDs returns every project id in ascending order.
func (s *Store) ProjectIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT project_id FROM projects ORDER BY project_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list project ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate project ids: %w", err)
	}
	return ids, nil
}

// MethodParameters returns the method configuration referenced by a project.
func (s *Store) MethodParameters(ctx context.Context, projectID string) (depreciation.MethodParameters, error) {
	query := s.rebind(`
		SELECT p.method_id, m.rate, m.duration_years
		FROM projects p
		LEFT JOIN depreciation_methods m ON m.method_id = p.method_id
		WHERE p.project_id = ?`)

	var (
		methodID sql.NullInt64
		rate     decimal.NullDecimal
		duration sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query, projectID).Scan(&methodID, &rate, &duration)
	if errors.Is(err, sql.ErrNoRows) {
		return depreciation.MethodParameters{}, fmt.Errorf("%w: %s", ledger.ErrProjectNotFound, projectID)
	}
	if err != nil {
		return depreciation.MethodParameters{}, fmt.Errorf("store: load method for %s: %w", projectID, err)
	}

	params := depreciation.MethodParameters{
		HasMethod: methodID.Valid,
		MethodID:  methodID.Int64,
		Rate:      rate,
	}
	if duration.Valid {
		d := int(duration.Int64)
		params.Duration = &d
	}
	return params, nil
}

// ListMethods returns all stored depreciation methods ordered by id.
func (s *Store) ListMethods(ctx context.Context) ([]Method, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT method_id, rate, duration_years, description FROM depreciation_methods ORDER BY method_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list methods: %w", err)
	}
	defer rows.Close()

	var methods []Method
	for rows.Next() {
		var (
			m        Method
			duration sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.Rate, &duration, &m.Description); err != nil {
			return nil, fmt.Errorf("store: scan method: %w", err)
		}
		if duration.Valid {
			d := int(duration.Int64)
			m.Duration = &d
		}
		methods = append(methods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate methods: %w", err)
	}
	return methods, nil
}

// SaveMethod stores a method and returns its id. A method with the same rate
// or the same duration is updated in place instead of duplicated.
func (s *Store) SaveMethod(ctx context.Context, m Method) (int64, error) {
	if m.Rate.Valid == (m.Duration != nil) {
		return 0, fmt.Errorf("%w: exactly one of rate and duration must be set", depreciation.ErrConfiguration)
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var lookup string
		var arg any
		if m.Rate.Valid {
			lookup, arg = `SELECT method_id FROM depreciation_methods WHERE rate = ?`, m.Rate.Decimal
		} else {
			lookup, arg = `SELECT method_id FROM depreciation_methods WHERE duration_years = ?`, *m.Duration
		}

		err := tx.QueryRowContext(ctx, s.rebind(lookup), arg).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			insert := s.rebind(`
				INSERT INTO depreciation_methods (rate, duration_years, description)
				VALUES (?, ?, ?)
				RETURNING method_id`)
			if err := tx.QueryRowContext(ctx, insert, m.Rate, nullInt(m.Duration), m.Description).Scan(&id); err != nil {
				return fmt.Errorf("store: insert method: %w", err)
			}
		case err != nil:
			return fmt.Errorf("store: look up method: %w", err)
		default:
			update := s.rebind(`UPDATE depreciation_methods SET description = ? WHERE method_id = ?`)
			if _, err := tx.ExecContext(ctx, update, m.Description, id); err != nil {
				return fmt.Errorf("store: update method %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

const projectSelect = `
	SELECT p.project_id, p.branch, p.operations, p.description, p.method_id,
		c.importance, c.type
	FROM projects p
	LEFT JOIN project_classifications c ON c.project_id = p.project_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (Project, error) {
	var (
		p          Project
		methodID   sql.NullInt64
		importance sql.NullInt64
		kind       sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Branch, &p.Operations, &p.Description, &methodID, &importance, &kind); err != nil {
		return Project{}, err
	}
	if methodID.Valid {
		id := methodID.Int64
		p.MethodID = &id
	}
	if importance.Valid || kind.Valid {
		p.Classification = &Classification{
			ProjectID:  p.ID,
			Importance: int(importance.Int64),
			Type:       int(kind.Int64),
		}
	}
	return p, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
