// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	ExecutionsTotal      = expvar.NewInt("executions_total")
	ExecutionsFailed     = expvar.NewInt("executions_failed")
	ExecutionsCancelled  = expvar.NewInt("executions_cancelled")
	RecordsEvaluated     = expvar.NewInt("records_evaluated")
	RecordsMatched       = expvar.NewInt("records_matched")
	ActionsExecuted      = expvar.NewInt("actions_executed")
	ActionFailures       = expvar.NewInt("action_failures")
	ActionRetries        = expvar.NewInt("action_retries")
	AlertsDispatched     = expvar.NewInt("alerts_dispatched")
	AlertsFailed         = expvar.NewInt("alerts_failed")
	TriggersFired        = expvar.NewInt("triggers_fired")
	CandidatesQueued     = expvar.NewInt("candidates_queued")
	ExecutionsRecovered  = expvar.NewInt("executions_recovered")
	ConditionErrorsTotal = expvar.NewInt("condition_errors_total")
)
