package rulestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocksentry/stocksentry/pkg/types"
)

const rulesDDL = `
CREATE TABLE IF NOT EXISTS rules (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    type        TEXT NOT NULL,
    status      TEXT NOT NULL,
    priority    INTEGER NOT NULL DEFAULT 0,
    conditions  JSONB NOT NULL,
    actions     JSONB NOT NULL,
    trigger     JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rules_status ON rules (status);
CREATE INDEX IF NOT EXISTS idx_rules_priority ON rules (priority, id);
`

// Postgres is a pgx-backed rule store.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a rule store and verifies the connection.
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

// NewPostgresFromPool wraps an existing pool, for sharing one pool with the
// ledger.
func NewPostgresFromPool(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the rules table and indexes.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, rulesDDL); err != nil {
		return fmt.Errorf("postgres migrate rules: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Create(ctx context.Context, rule types.Rule) (types.Rule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.Status == "" {
		rule.Status = types.RuleDraft
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	conditions, actions, trigger, err := marshalRuleParts(rule)
	if err != nil {
		return types.Rule{}, err
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO rules (id, name, description, type, status, priority,
			conditions, actions, trigger, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rule.ID, rule.Name, rule.Description, string(rule.Type), string(rule.Status),
		rule.Priority, conditions, actions, trigger, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return types.Rule{}, fmt.Errorf("insert rule: %w", err)
	}
	return rule, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (types.Rule, error) {
	row := p.pool.QueryRow(ctx, ruleSelect+` WHERE id = $1`, id)
	rule, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Rule{}, ErrNotFound
	}
	return rule, err
}

func (p *Postgres) List(ctx context.Context) ([]types.Rule, error) {
	rows, err := p.pool.Query(ctx, ruleSelect+` ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []types.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (p *Postgres) Update(ctx context.Context, rule types.Rule) (types.Rule, error) {
	existing, err := p.Get(ctx, rule.ID)
	if err != nil {
		return types.Rule{}, err
	}
	rule.CreatedAt = existing.CreatedAt
	if rule.Status == "" {
		rule.Status = existing.Status
	}
	rule.UpdatedAt = time.Now().UTC()

	conditions, actions, trigger, err := marshalRuleParts(rule)
	if err != nil {
		return types.Rule{}, err
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE rules SET name = $2, description = $3, type = $4, status = $5,
			priority = $6, conditions = $7, actions = $8, trigger = $9, updated_at = $10
		WHERE id = $1
	`, rule.ID, rule.Name, rule.Description, string(rule.Type), string(rule.Status),
		rule.Priority, conditions, actions, trigger, rule.UpdatedAt)
	if err != nil {
		return types.Rule{}, fmt.Errorf("update rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.Rule{}, ErrNotFound
	}
	return rule, nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetStatus(ctx context.Context, id string, status types.RuleStatus) (types.Rule, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE rules SET status = $2, updated_at = $3 WHERE id = $1
	`, id, string(status), time.Now().UTC())
	if err != nil {
		return types.Rule{}, fmt.Errorf("set rule status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.Rule{}, ErrNotFound
	}
	return p.Get(ctx, id)
}

const ruleSelect = `
	SELECT id, name, description, type, status, priority,
		conditions, actions, trigger, created_at, updated_at
	FROM rules`

func marshalRuleParts(rule types.Rule) (conditions, actions, trigger []byte, err error) {
	if conditions, err = json.Marshal(rule.Conditions); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal conditions: %w", err)
	}
	if actions, err = json.Marshal(rule.Actions); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal actions: %w", err)
	}
	if trigger, err = json.Marshal(rule.Trigger); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal trigger: %w", err)
	}
	return conditions, actions, trigger, nil
}

func scanRule(row pgx.Row) (types.Rule, error) {
	var (
		rule                         types.Rule
		ruleType, status             string
		conditions, actions, trigger []byte
	)
	err := row.Scan(&rule.ID, &rule.Name, &rule.Description, &ruleType, &status,
		&rule.Priority, &conditions, &actions, &trigger, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return types.Rule{}, err
	}
	rule.Type = types.RuleType(ruleType)
	rule.Status = types.RuleStatus(status)
	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return types.Rule{}, fmt.Errorf("unmarshal conditions: %w", err)
	}
	if err := json.Unmarshal(actions, &rule.Actions); err != nil {
		return types.Rule{}, fmt.Errorf("unmarshal actions: %w", err)
	}
	if err := json.Unmarshal(trigger, &rule.Trigger); err != nil {
		return types.Rule{}, fmt.Errorf("unmarshal trigger: %w", err)
	}
	return rule, nil
}
