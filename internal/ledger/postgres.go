package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocksentry/stocksentry/pkg/types"
)

const executionsDDL = `
CREATE TABLE IF NOT EXISTS executions (
    id                TEXT PRIMARY KEY,
    rule_id           TEXT NOT NULL,
    status            TEXT NOT NULL,
    start_time        TIMESTAMPTZ NOT NULL,
    end_time          TIMESTAMPTZ,
    records_processed INTEGER NOT NULL DEFAULT 0,
    records_affected  INTEGER NOT NULL DEFAULT 0,
    errors            JSONB,
    result            JSONB
);
CREATE INDEX IF NOT EXISTS idx_executions_rule ON executions (rule_id, start_time DESC);
CREATE INDEX IF NOT EXISTS idx_executions_status ON executions (status);
CREATE INDEX IF NOT EXISTS idx_executions_start ON executions (start_time DESC);
`

// Postgres is a pgx-backed ledger.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a ledger and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the executions table and indexes.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, executionsDDL); err != nil {
		return fmt.Errorf("postgres migrate executions: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Record(ctx context.Context, exec types.Execution) error {
	errsJSON, resultJSON, err := marshalExecutionParts(exec)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO executions (id, rule_id, status, start_time, end_time,
			records_processed, records_affected, errors, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, exec.ID, exec.RuleID, string(exec.Status), exec.StartTime, exec.EndTime,
		exec.RecordsProcessed, exec.RecordsAffected, errsJSON, resultJSON)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// Finalize writes the terminal state. The status guard in the WHERE clause
// makes the first terminal write win even with concurrent finalizers.
func (p *Postgres) Finalize(ctx context.Context, exec types.Execution) error {
	errsJSON, resultJSON, err := marshalExecutionParts(exec)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE executions SET status = $2, end_time = $3,
			records_processed = $4, records_affected = $5, errors = $6, result = $7
		WHERE id = $1 AND status = 'running'
	`, exec.ID, string(exec.Status), exec.EndTime,
		exec.RecordsProcessed, exec.RecordsAffected, errsJSON, resultJSON)
	if err != nil {
		return fmt.Errorf("finalize execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, gerr := p.Get(ctx, exec.ID); errors.Is(gerr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrAlreadyFinal
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (types.Execution, error) {
	row := p.pool.QueryRow(ctx, executionSelect+` WHERE id = $1`, id)
	exec, err := scanExecution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Execution{}, ErrNotFound
	}
	return exec, err
}

func (p *Postgres) List(ctx context.Context, filter types.ExecutionFilter) ([]types.Execution, error) {
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.RuleID != "" {
		clauses = append(clauses, "rule_id = "+arg(filter.RuleID))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = "+arg(string(filter.Status)))
	}
	if !filter.From.IsZero() {
		clauses = append(clauses, "start_time >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		clauses = append(clauses, "start_time <= "+arg(filter.To))
	}

	query := executionSelect
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY start_time DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

func (p *Postgres) Stats(ctx context.Context, ruleID string) (types.RuleStatistics, error) {
	stats := types.RuleStatistics{RuleID: ruleID}
	var (
		successes int64
		avgMs     *float64
		lastAt    *time.Time
	)
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'success'),
			AVG(EXTRACT(EPOCH FROM (end_time - start_time)) * 1000),
			MAX(start_time)
		FROM executions
		WHERE rule_id = $1 AND status <> 'running'
	`, ruleID).Scan(&stats.ExecutionCount, &successes, &avgMs, &lastAt)
	if err != nil {
		return stats, fmt.Errorf("execution stats: %w", err)
	}
	if stats.ExecutionCount > 0 {
		stats.SuccessRate = float64(successes) / float64(stats.ExecutionCount)
	}
	if avgMs != nil {
		stats.AverageExecutionTimeMs = *avgMs
	}
	stats.LastExecutedAt = lastAt
	return stats, nil
}

const executionSelect = `
	SELECT id, rule_id, status, start_time, end_time,
		records_processed, records_affected, errors, result
	FROM executions`

func marshalExecutionParts(exec types.Execution) (errs, result []byte, err error) {
	if errs, err = json.Marshal(exec.Errors); err != nil {
		return nil, nil, fmt.Errorf("marshal execution errors: %w", err)
	}
	if result, err = json.Marshal(exec.Result); err != nil {
		return nil, nil, fmt.Errorf("marshal execution result: %w", err)
	}
	return errs, result, nil
}

func scanExecution(row pgx.Row) (types.Execution, error) {
	var (
		exec         types.Execution
		status       string
		errs, result []byte
	)
	err := row.Scan(&exec.ID, &exec.RuleID, &status, &exec.StartTime, &exec.EndTime,
		&exec.RecordsProcessed, &exec.RecordsAffected, &errs, &result)
	if err != nil {
		return types.Execution{}, err
	}
	exec.Status = types.ExecutionStatus(status)
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &exec.Errors); err != nil {
			return types.Execution{}, fmt.Errorf("unmarshal execution errors: %w", err)
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &exec.Result); err != nil {
			return types.Execution{}, fmt.Errorf("unmarshal execution result: %w", err)
		}
	}
	return exec, nil
}
