package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fleetgate/fleetgate/internal/domain"
	"github.com/fleetgate/fleetgate/internal/domain/evaluation"
)

const suiteColumns = `id, tenant_id, name, is_default, test_cases, created_at`

func scanSuite(row scannable) (evaluation.Suite, error) {
	var su evaluation.Suite
	var casesJSON []byte
	if err := row.Scan(&su.ID, &su.TenantID, &su.Name, &su.IsDefault, &casesJSON, &su.CreatedAt); err != nil {
		return su, err
	}
	if len(casesJSON) > 0 {
		if err := json.Unmarshal(casesJSON, &su.TestCases); err != nil {
			return su, fmt.Errorf("unmarshal test_cases: %w", err)
		}
	}
	return su, nil
}

func (s *Store) ListSuites(ctx context.Context) ([]evaluation.Suite, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+suiteColumns+` FROM eval_suites WHERE tenant_id = $1 ORDER BY created_at DESC`,
		tenantFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("list suites: %w", err)
	}
	defer rows.Close()

	var suites []evaluation.Suite
	for rows.Next() {
		su, err := scanSuite(rows)
		if err != nil {
			return nil, err
		}
		suites = append(suites, su)
	}
	return suites, rows.Err()
}

func (s *Store) GetSuite(ctx context.Context, id string) (*evaluation.Suite, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+suiteColumns+` FROM eval_suites WHERE id = $1 AND tenant_id = $2`,
		id, tenantFromCtx(ctx))

	su, err := scanSuite(row)
	if err != nil {
		return nil, notFoundWrap(err, "get suite %s", id)
	}
	return &su, nil
}

func (s *Store) GetDefaultSuite(ctx context.Context) (*evaluation.Suite, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+suiteColumns+` FROM eval_suites
		 WHERE is_default AND tenant_id = $1 ORDER BY created_at DESC LIMIT 1`,
		tenantFromCtx(ctx))

	su, err := scanSuite(row)
	if err != nil {
		return nil, notFoundWrap(err, "get default suite")
	}
	return &su, nil
}

func (s *Store) CreateSuite(ctx context.Context, suite *evaluation.Suite) (*evaluation.Suite, error) {
	casesJSON, err := json.Marshal(orEmpty(suite.TestCases))
	if err != nil {
		return nil, fmt.Errorf("marshal test_cases: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO eval_suites (tenant_id, name, is_default, test_cases)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+suiteColumns,
		tenantFromCtx(ctx), suite.Name, suite.IsDefault, casesJSON)

	created, err := scanSuite(row)
	if err != nil {
		return nil, fmt.Errorf("create suite: %w", err)
	}
	return &created, nil
}

const runColumns = `id, tenant_id, suite_id, version_id, status, results, overall_score, pass_rate, version, created_at, started_at, completed_at`

func scanRun(row scannable) (evaluation.Run, error) {
	var r evaluation.Run
	var resultsJSON []byte
	if err := row.Scan(&r.ID, &r.TenantID, &r.SuiteID, &r.VersionID, &r.Status, &resultsJSON,
		&r.OverallScore, &r.PassRate, &r.Version, &r.CreatedAt, &r.StartedAt, &r.CompletedAt); err != nil {
		return r, err
	}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &r.Results); err != nil {
			return r, fmt.Errorf("unmarshal results: %w", err)
		}
	}
	return r, nil
}

func (s *Store) ListRuns(ctx context.Context, versionID string) ([]evaluation.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM eval_runs
		 WHERE version_id = $1 AND tenant_id = $2 ORDER BY created_at DESC`,
		versionID, tenantFromCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []evaluation.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Store) GetRun(ctx context.Context, id string) (*evaluation.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM eval_runs WHERE id = $1 AND tenant_id = $2`,
		id, tenantFromCtx(ctx))

	r, err := scanRun(row)
	if err != nil {
		return nil, notFoundWrap(err, "get run %s", id)
	}
	return &r, nil
}

func (s *Store) CreateRun(ctx context.Context, run *evaluation.Run) (*evaluation.Run, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO eval_runs (tenant_id, suite_id, version_id, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+runColumns,
		tenantFromCtx(ctx), run.SuiteID, run.VersionID, string(run.Status))

	created, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return &created, nil
}

func (s *Store) UpdateRun(ctx context.Context, run *evaluation.Run, expectedVersion int) error {
	resultsJSON, err := json.Marshal(orEmpty(run.Results))
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE eval_runs
		 SET status = $2, results = $3, overall_score = $4, pass_rate = $5,
		     started_at = $6, completed_at = $7, version = version + 1
		 WHERE id = $1 AND version = $8 AND tenant_id = $9`,
		run.ID, string(run.Status), resultsJSON, run.OverallScore, run.PassRate,
		run.StartedAt, run.CompletedAt, expectedVersion, tenantFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update run %s: %w", run.ID, domain.ErrConflict)
	}
	run.Version++
	return nil
}
