// Package types defines the public domain types for the StockSentry rules engine.
package types

import "time"

// Value is the right-hand side of a condition: either a literal or a
// reference to another field on the same record. Exactly one of the two
// is set; a non-empty FieldRef wins. Modeling this explicitly avoids
// guessing whether a string is a literal or a field name.
type Value struct {
	FieldRef string `yaml:"fieldRef,omitempty" json:"fieldRef,omitempty"`
	Literal  any    `yaml:"literal,omitempty" json:"literal,omitempty"`
}

// Literal builds a literal Value.
func Literal(v any) Value { return Value{Literal: v} }

// FieldRef builds a Value referencing another field on the record.
func FieldRef(path string) Value { return Value{FieldRef: path} }

// IsFieldRef reports whether the value resolves dynamically against the record.
func (v Value) IsFieldRef() bool { return v.FieldRef != "" }

// Condition is a single comparison against a record field. LogicalOp joins
// this condition to the next one in the rule's list; it is ignored on the
// last condition.
type Condition struct {
	Field     string            `yaml:"field" json:"field"`
	Operator  ConditionOperator `yaml:"operator" json:"operator"`
	Value     Value             `yaml:"value,omitempty" json:"value,omitempty"`
	LogicalOp LogicalOperator   `yaml:"logicalOperator,omitempty" json:"logicalOperator,omitempty"`
}

// Action is an ordered, typed side effect executed for each matched record.
// Execution order is ascending Order, ties broken by declaration index.
type Action struct {
	Type   ActionType     `yaml:"type" json:"type"`
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
	Order  int            `yaml:"order" json:"order"`
}

// Trigger defines when a rule becomes a candidate for execution.
// Cron is set only for scheduled triggers, Event only for event triggers.
type Trigger struct {
	Type  TriggerType `yaml:"type" json:"type"`
	Cron  string      `yaml:"cron,omitempty" json:"cron,omitempty"`
	Event string      `yaml:"event,omitempty" json:"event,omitempty"`
}

// Rule is a named, prioritized condition→action mapping with a trigger.
// Lower Priority values are dispatched first among contending rules.
type Rule struct {
	ID          string      `yaml:"id,omitempty" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Type        RuleType    `yaml:"type" json:"type"`
	Status      RuleStatus  `yaml:"status,omitempty" json:"status"`
	Priority    int         `yaml:"priority,omitempty" json:"priority"`
	Conditions  []Condition `yaml:"conditions" json:"conditions"`
	Actions     []Action    `yaml:"actions" json:"actions"`
	Trigger     Trigger     `yaml:"trigger" json:"trigger"`
	CreatedAt   time.Time   `yaml:"-" json:"createdAt"`
	UpdatedAt   time.Time   `yaml:"-" json:"updatedAt"`
}

// Record is an inventory record as seen by the rules engine. Version is the
// optimistic-locking token owned by the inventory collaborator.
type Record struct {
	ID      string         `json:"id"`
	Version int64          `json:"version"`
	Fields  map[string]any `json:"fields"`
}

// ExecutionError records one failure inside an execution, tagged with the
// record and action it belongs to. Action failures never abort siblings.
type ExecutionError struct {
	RecordID    string          `json:"recordId,omitempty"`
	ActionIndex int             `json:"actionIndex,omitempty"`
	ActionType  ActionType      `json:"actionType,omitempty"`
	Category    FailureCategory `json:"category,omitempty"`
	Message     string          `json:"message"`
}

// Execution is one run of a rule against a batch of records. It is created
// running by the orchestrator and transitions exactly once to success or
// failed; terminal executions are immutable.
type Execution struct {
	ID               string           `json:"id"`
	RuleID           string           `json:"ruleId"`
	Status           ExecutionStatus  `json:"status"`
	StartTime        time.Time        `json:"startTime"`
	EndTime          *time.Time       `json:"endTime,omitempty"`
	RecordsProcessed int              `json:"recordsProcessed"`
	RecordsAffected  int              `json:"recordsAffected"`
	Errors           []ExecutionError `json:"errors,omitempty"`
	Result           map[string]any   `json:"result,omitempty"`
}

// DurationMs returns the wall-clock duration of a terminal execution.
func (e Execution) DurationMs() float64 {
	if e.EndTime == nil {
		return 0
	}
	return float64(e.EndTime.Sub(e.StartTime).Microseconds()) / 1000.0
}

// RuleStatistics are derived from the ledger, never hand-edited.
type RuleStatistics struct {
	RuleID                 string     `json:"ruleId"`
	ExecutionCount         int64      `json:"executionCount"`
	SuccessRate            float64    `json:"successRate"`
	AverageExecutionTimeMs float64    `json:"averageExecutionTimeMs"`
	LastExecutedAt         *time.Time `json:"lastExecutedAt,omitempty"`
}

// ExecutionFilter narrows ledger queries.
type ExecutionFilter struct {
	RuleID string          `json:"ruleId,omitempty"`
	Status ExecutionStatus `json:"status,omitempty"`
	From   time.Time       `json:"from,omitempty"`
	To     time.Time       `json:"to,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// RecordFilter narrows inventory reads. A nil/empty filter selects the full
// record set.
type RecordFilter struct {
	IDs   []string       `json:"ids,omitempty"`
	Where map[string]any `json:"where,omitempty"`
}

// Alert is a notification dispatched to the configured sinks.
type Alert struct {
	Severity  AlertSeverity  `json:"severity"`
	RuleID    string         `json:"ruleId,omitempty"`
	RecordID  string         `json:"recordId,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// InventoryChanged is the bus event name published by the inventory
// collaborator whenever records mutate. Automatic triggers subscribe to it.
const InventoryChanged = "inventory.changed"

// BusEvent is a domain event carried on the event bus, with the records it
// concerns (may be empty for purely named events).
type BusEvent struct {
	Name      string    `json:"name"`
	Records   []Record  `json:"records,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
