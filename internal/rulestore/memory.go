package rulestore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stocksentry/stocksentry/pkg/types"
)

// Memory is an in-process rule store for tests and single-node deployments
// without Postgres.
type Memory struct {
	mu    sync.RWMutex
	rules map[string]types.Rule
	order []string
	now   func() time.Time
}

// NewMemory creates an empty in-memory rule store.
func NewMemory() *Memory {
	return &Memory{
		rules: make(map[string]types.Rule),
		now:   time.Now,
	}
}

// Create stores a new rule. A missing id is assigned; a missing status
// defaults to draft.
func (m *Memory) Create(_ context.Context, rule types.Rule) (types.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.Status == "" {
		rule.Status = types.RuleDraft
	}
	now := m.now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if _, exists := m.rules[rule.ID]; !exists {
		m.order = append(m.order, rule.ID)
	}
	m.rules[rule.ID] = cloneRule(rule)
	return rule, nil
}

// Get returns one rule by id.
func (m *Memory) Get(_ context.Context, id string) (types.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rule, found := m.rules[id]
	if !found {
		return types.Rule{}, ErrNotFound
	}
	return cloneRule(rule), nil
}

// List returns all rules in creation order.
func (m *Memory) List(_ context.Context) ([]types.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Rule, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, cloneRule(m.rules[id]))
	}
	return out, nil
}

// Update replaces a rule's definition, preserving creation time and status
// unless the caller sets a new status explicitly.
func (m *Memory) Update(_ context.Context, rule types.Rule) (types.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, found := m.rules[rule.ID]
	if !found {
		return types.Rule{}, ErrNotFound
	}
	rule.CreatedAt = existing.CreatedAt
	if rule.Status == "" {
		rule.Status = existing.Status
	}
	rule.UpdatedAt = m.now()
	m.rules[rule.ID] = cloneRule(rule)
	return rule, nil
}

// Delete removes a rule. Ledger entries referencing it are retained.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, found := m.rules[id]; !found {
		return ErrNotFound
	}
	delete(m.rules, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetStatus transitions a rule's lifecycle status.
func (m *Memory) SetStatus(_ context.Context, id string, status types.RuleStatus) (types.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, found := m.rules[id]
	if !found {
		return types.Rule{}, ErrNotFound
	}
	rule.Status = status
	rule.UpdatedAt = m.now()
	m.rules[id] = rule
	return cloneRule(rule), nil
}

func cloneRule(rule types.Rule) types.Rule {
	out := rule
	out.Conditions = append([]types.Condition(nil), rule.Conditions...)
	out.Actions = make([]types.Action, len(rule.Actions))
	for i, act := range rule.Actions {
		out.Actions[i] = act
		if act.Config != nil {
			cfg := make(map[string]any, len(act.Config))
			for k, v := range act.Config {
				cfg[k] = v
			}
			out.Actions[i].Config = cfg
		}
	}
	return out
}
