package types

// RuleType classifies a rule for operators and dashboards. It does not
// change evaluation semantics.
type RuleType string

// RuleType values enumerate the informational rule classifications.
const (
	RuleValidation     RuleType = "validation"
	RuleTransformation RuleType = "transformation"
	RuleBusinessLogic  RuleType = "business_logic"
	RuleAlert          RuleType = "alert"
	RuleAutomation     RuleType = "automation"
)

// Valid reports whether t is one of the known rule types.
func (t RuleType) Valid() bool {
	switch t {
	case RuleValidation, RuleTransformation, RuleBusinessLogic, RuleAlert, RuleAutomation:
		return true
	}
	return false
}

// RuleStatus represents the lifecycle state of a rule definition.
type RuleStatus string

// RuleStatus values. Only active rules are ever scheduled. Error is a
// terminal state reached when a rule's own definition fails structural
// validation and requires operator intervention.
const (
	RuleDraft    RuleStatus = "draft"
	RuleActive   RuleStatus = "active"
	RuleInactive RuleStatus = "inactive"
	RuleError    RuleStatus = "error"
)

// TriggerType defines how a rule becomes a candidate for execution.
type TriggerType string

// TriggerType values enumerate the supported trigger mechanisms.
const (
	TriggerManual    TriggerType = "manual"
	TriggerAutomatic TriggerType = "automatic"
	TriggerScheduled TriggerType = "scheduled"
	TriggerEvent     TriggerType = "event"
)

// ActionType defines the kind of side effect an action performs.
type ActionType string

// ActionType values enumerate the supported action executors.
const (
	ActionUpdate   ActionType = "update"
	ActionAlert    ActionType = "alert"
	ActionEmail    ActionType = "email"
	ActionWebhook  ActionType = "webhook"
	ActionFunction ActionType = "function"
)

// ConditionOperator is a comparison operator applied to a record field.
type ConditionOperator string

// ConditionOperator values enumerate the supported comparisons.
const (
	OpEqual        ConditionOperator = "=="
	OpNotEqual     ConditionOperator = "!="
	OpLess         ConditionOperator = "<"
	OpLessEqual    ConditionOperator = "<="
	OpGreater      ConditionOperator = ">"
	OpGreaterEqual ConditionOperator = ">="
	OpMatches      ConditionOperator = "matches"
	OpIsNull       ConditionOperator = "isNull"
)

// LogicalOperator joins a condition to the next one in the list.
type LogicalOperator string

// LogicalOperator values. The operator sits on the edge between condition
// i and i+1; chains evaluate strictly left to right with no precedence.
const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// ExecutionStatus represents the lifecycle state of a single execution.
type ExecutionStatus string

// ExecutionStatus values. An execution transitions exactly once from
// running to a terminal state.
const (
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// AlertSeverity grades a dispatched alert.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertSinkType defines the notification sink backend.
type AlertSinkType string

// AlertSinkType values enumerate the supported notification sinks.
const (
	SinkConsole AlertSinkType = "console"
	SinkFile    AlertSinkType = "file"
	SinkWebhook AlertSinkType = "webhook"
	SinkSNS     AlertSinkType = "sns"
)

// FailureCategory classifies why an action or function invocation failed.
type FailureCategory string

const (
	FailureTransient FailureCategory = "TRANSIENT"
	FailurePermanent FailureCategory = "PERMANENT"
	FailureTimeout   FailureCategory = "TIMEOUT"
)
