package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/stepflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Definitions ---

func (s *LibSQLStore) SaveDefinition(ctx context.Context, def *Definition) error {
	raw, err := json.Marshal(def.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO definitions (name, definition, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET definition=excluded.definition, updated_at=CURRENT_TIMESTAMP`,
		def.Name, string(raw), timeOrNow(def.CreatedAt), timeOrNow(def.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetDefinition(ctx context.Context, name string) (*Definition, error) {
	d := &Definition{}
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, definition, created_at, updated_at FROM definitions WHERE name = ?`, name,
	).Scan(&d.Name, &raw, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("definition", name)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &d.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return d, nil
}

func (s *LibSQLStore) ListDefinitions(ctx context.Context, filter DefinitionFilter) ([]*Definition, error) {
	query := `SELECT name, definition, created_at, updated_at FROM definitions ORDER BY name`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*Definition
	for rows.Next() {
		d := &Definition{}
		var raw string
		if err := rows.Scan(&d.Name, &raw, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &d.Definition); err != nil {
			return nil, fmt.Errorf("unmarshal definition: %w", err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

func (s *LibSQLStore) DeleteDefinition(ctx context.Context, name string) error {
	var active int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM executions WHERE workflow_name = ? AND status IN ('pending', 'running', 'paused')`,
		name,
	).Scan(&active)
	if err != nil {
		return err
	}
	if active > 0 {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"definition %q has %d active executions", name, active)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM definitions WHERE name = ?`, name)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "definition", name)
}

// --- Executions ---

func (s *LibSQLStore) CreateExecution(ctx context.Context, exec *Execution) error {
	def, err := json.Marshal(exec.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	input, err := marshalMapOrDefault(exec.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	variables, err := marshalMapOrDefault(exec.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	results, err := marshalResults(exec.StepResults)
	if err != nil {
		return fmt.Errorf("marshal step_results: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, workflow_name, definition, status, input, variables, step_results, error, created_at, started_at, completed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.WorkflowName, string(def), string(exec.Status),
		string(input), string(variables), string(results), nullStr(exec.Error),
		timeOrNow(exec.CreatedAt), nullTime(exec.StartedAt), nullTime(exec.CompletedAt), timeOrNow(exec.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_name, definition, status, input, variables, step_results, error, created_at, started_at, completed_at, updated_at
		 FROM executions WHERE id = ?`, id,
	)
	exec, err := scanExecution(row.Scan)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("execution", id)
	}
	return exec, err
}

func (s *LibSQLStore) UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Variables != nil {
		raw, err := json.Marshal(update.Variables)
		if err != nil {
			return fmt.Errorf("marshal variables: %w", err)
		}
		sets = append(sets, "variables = ?")
		args = append(args, string(raw))
	}
	if update.StepResults != nil {
		raw, err := json.Marshal(update.StepResults)
		if err != nil {
			return fmt.Errorf("marshal step_results: %w", err)
		}
		sets = append(sets, "step_results = ?")
		args = append(args, string(raw))
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, nullStr(*update.Error))
	}
	if update.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *update.StartedAt)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE executions SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", id)
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	var where []string
	var args []any

	if filter.WorkflowName != "" {
		where = append(where, "workflow_name = ?")
		args = append(args, filter.WorkflowName)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, workflow_name, definition, status, input, variables, step_results, error, created_at, started_at, completed_at, updated_at FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows.Scan)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

func scanExecution(scan func(...any) error) (*Execution, error) {
	exec := &Execution{}
	var (
		defJSON                string
		inputJSON, varsJSON    sql.NullString
		resultsJSON, errMsg    sql.NullString
		startedAt, completedAt sql.NullTime
		status                 string
	)
	err := scan(&exec.ID, &exec.WorkflowName, &defJSON, &status,
		&inputJSON, &varsJSON, &resultsJSON, &errMsg,
		&exec.CreatedAt, &startedAt, &completedAt, &exec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	exec.Status = schema.ExecutionStatus(status)
	if err := json.Unmarshal([]byte(defJSON), &exec.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	if inputJSON.Valid && inputJSON.String != "" {
		_ = json.Unmarshal([]byte(inputJSON.String), &exec.Input)
	}
	if varsJSON.Valid && varsJSON.String != "" {
		_ = json.Unmarshal([]byte(varsJSON.String), &exec.Variables)
	}
	if resultsJSON.Valid && resultsJSON.String != "" {
		_ = json.Unmarshal([]byte(resultsJSON.String), &exec.StepResults)
	}
	exec.Error = errMsg.String
	if startedAt.Valid {
		exec.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		exec.CompletedAt = &completedAt.Time
	}
	return exec, nil
}

// --- Scheduled Jobs ---

func (s *LibSQLStore) CreateScheduledJob(ctx context.Context, job *ScheduledJob) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (id, workflow_name, cron_expression, input, enabled, last_run_at, next_run_at, last_run_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.WorkflowName, job.CronExpression, nullRaw(job.Input),
		job.Enabled, nullTime(job.LastRunAt), nullTime(job.NextRunAt),
		nullStr(job.LastRunStatus), timeOrNow(job.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error) {
	j := &ScheduledJob{}
	var input, lastStatus sql.NullString
	var lastRun, nextRun sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_name, cron_expression, input, enabled, last_run_at, next_run_at, last_run_status, created_at
		 FROM scheduled_jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.WorkflowName, &j.CronExpression, &input, &j.Enabled, &lastRun, &nextRun, &lastStatus, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("scheduled_job", id)
	}
	if err != nil {
		return nil, err
	}
	j.Input = rawOrNil(input)
	j.LastRunStatus = lastStatus.String
	if lastRun.Valid {
		j.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		j.NextRunAt = &nextRun.Time
	}
	return j, nil
}

func (s *LibSQLStore) UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error {
	var sets []string
	var args []any

	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, *update.Enabled)
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE scheduled_jobs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled_job", id)
}

func (s *LibSQLStore) ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	var where []string
	var args []any

	if filter.WorkflowName != "" {
		where = append(where, "workflow_name = ?")
		args = append(args, filter.WorkflowName)
	}
	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, *filter.Enabled)
	}

	query := `SELECT id, workflow_name, cron_expression, input, enabled, last_run_at, next_run_at, last_run_status, created_at FROM scheduled_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ScheduledJob
	for rows.Next() {
		j := &ScheduledJob{}
		var input, lastStatus sql.NullString
		var lastRun, nextRun sql.NullTime
		if err := rows.Scan(&j.ID, &j.WorkflowName, &j.CronExpression, &input, &j.Enabled, &lastRun, &nextRun, &lastStatus, &j.CreatedAt); err != nil {
			return nil, err
		}
		j.Input = rawOrNil(input)
		j.LastRunStatus = lastStatus.String
		if lastRun.Valid {
			j.LastRunAt = &lastRun.Time
		}
		if nextRun.Valid {
			j.NextRunAt = &nextRun.Time
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *LibSQLStore) DeleteScheduledJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled_job", id)
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func marshalMapOrDefault(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(m)
}

func marshalResults(m map[string]*schema.StepResult) (json.RawMessage, error) {
	if len(m) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(m)
}
