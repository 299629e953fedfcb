package action

import (
	"context"
	"time"

	"github.com/stocksentry/stocksentry/internal/notify"
	"github.com/stocksentry/stocksentry/pkg/types"
)

// AlertExecutor fans a notification out to the configured sinks.
// Config keys: "message" (required), "severity" (optional, defaults to
// warning), "ruleId" (optional, stamped by the orchestrator).
type AlertExecutor struct {
	dispatcher *notify.Dispatcher
	now        func() time.Time
}

// NewAlertExecutor creates an alert executor over a sink dispatcher.
func NewAlertExecutor(d *notify.Dispatcher) *AlertExecutor {
	return &AlertExecutor{dispatcher: d, now: time.Now}
}

func (e *AlertExecutor) Type() types.ActionType { return types.ActionAlert }

func (e *AlertExecutor) Execute(ctx context.Context, rec types.Record, config map[string]any) Result {
	message, err := configString(config, "message")
	if err != nil {
		return fail(types.FailurePermanent, "%v", err)
	}

	severity := types.SeverityWarning
	if s, found := config["severity"].(string); found {
		severity = types.AlertSeverity(s)
	}
	ruleID, _ := config["ruleId"].(string)

	var details map[string]any
	if d, found := config["details"].(map[string]any); found {
		details = d
	}

	e.dispatcher.Dispatch(ctx, types.Alert{
		Severity:  severity,
		RuleID:    ruleID,
		RecordID:  rec.ID,
		Message:   message,
		Details:   details,
		Timestamp: e.now(),
	})
	return ok(map[string]any{"message": message, "severity": string(severity)})
}
