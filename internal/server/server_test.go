package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocksentry/stocksentry/internal/action"
	"github.com/stocksentry/stocksentry/internal/dispatcher"
	"github.com/stocksentry/stocksentry/internal/inventory"
	"github.com/stocksentry/stocksentry/internal/ledger"
	"github.com/stocksentry/stocksentry/internal/notify"
	"github.com/stocksentry/stocksentry/internal/orchestrator"
	"github.com/stocksentry/stocksentry/internal/rulestore"
	"github.com/stocksentry/stocksentry/internal/testutil"
	"github.com/stocksentry/stocksentry/pkg/types"
)

// testContext stands in for t.Context(), which requires Go 1.24+.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

type fixture struct {
	ts     *httptest.Server
	store  rulestore.Store
	ledger *ledger.Memory
	inv    *inventory.MemoryClient
	disp   *dispatcher.Dispatcher
}

func setupTestServer(t *testing.T, apiKey string) *fixture {
	t.Helper()

	store := rulestore.NewMemory()
	led := ledger.NewMemory()
	inv := inventory.NewMemory(nil)
	runner := action.NewRunner(nil,
		action.NewUpdateExecutor(inv),
		action.NewAlertExecutor(notify.NewDispatcherWithSinks(nil)),
	)
	orch := orchestrator.New(types.OrchestratorConfig{}, runner, led, inv, nil)
	disp := dispatcher.New(types.SchedulerConfig{}, store, orch, nil, testutil.NewFakeClock(time.Now()), nil)
	disp.Start(testContext(t))
	t.Cleanup(disp.Stop)

	srv := New(types.ServerConfig{Addr: ":0", APIKey: apiKey}, Deps{
		Store:      store,
		Ledger:     led,
		Dispatcher: disp,
		Orch:       orch,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{ts: ts, store: store, ledger: led, inv: inv, disp: disp}
}

const ruleJSON = `{
	"name": "low-stock",
	"type": "alert",
	"priority": 5,
	"conditions": [
		{"field": "quantity", "operator": "<=", "value": {"fieldRef": "reorder_point"}}
	],
	"actions": [
		{"type": "alert", "order": 1, "config": {"message": "low stock"}}
	],
	"trigger": {"type": "manual"}
}`

func createRule(t *testing.T, f *fixture) types.Rule {
	t.Helper()
	resp, err := http.Post(f.ts.URL+"/api/rules", "application/json", strings.NewReader(ruleJSON))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var rule types.Rule
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rule))
	return rule
}

func TestHealthEndpoint(t *testing.T) {
	f := setupTestServer(t, "")

	resp, err := http.Get(f.ts.URL + "/api/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestRuleCRUD(t *testing.T) {
	f := setupTestServer(t, "")

	created := createRule(t, f)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, types.RuleDraft, created.Status)

	// List
	resp, err := http.Get(f.ts.URL + "/api/rules")
	require.NoError(t, err)
	var rules []types.Rule
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rules))
	_ = resp.Body.Close()
	assert.Len(t, rules, 1)

	// Get
	resp, err = http.Get(f.ts.URL + "/api/rules/" + created.ID)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Patch
	patched := created
	patched.Description = "watches the reorder point"
	body, _ := json.Marshal(patched)
	req, _ := http.NewRequest(http.MethodPatch, f.ts.URL+"/api/rules/"+created.ID, bytes.NewReader(body))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	var updated types.Rule
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	_ = resp.Body.Close()
	assert.Equal(t, "watches the reorder point", updated.Description)

	// Delete
	req, _ = http.NewRequest(http.MethodDelete, f.ts.URL+"/api/rules/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(f.ts.URL + "/api/rules/" + created.ID)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRuleStatusTransitions(t *testing.T) {
	f := setupTestServer(t, "")
	created := createRule(t, f)

	resp, err := http.Post(f.ts.URL+"/api/rules/"+created.ID+"/status", "application/json",
		strings.NewReader(`{"status":"active"}`))
	require.NoError(t, err)
	var rule types.Rule
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rule))
	_ = resp.Body.Close()
	assert.Equal(t, types.RuleActive, rule.Status)

	resp, err = http.Post(f.ts.URL+"/api/rules/"+created.ID+"/status", "application/json",
		strings.NewReader(`{"status":"inactive"}`))
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rule))
	_ = resp.Body.Close()
	assert.Equal(t, types.RuleInactive, rule.Status)
}

func TestActivateInvalidRule(t *testing.T) {
	f := setupTestServer(t, "")

	created, err := f.store.Create(testContext(t), types.Rule{
		Name: "broken", Type: types.RuleAlert,
		Trigger: types.Trigger{Type: types.TriggerManual},
	})
	require.NoError(t, err)

	resp, err := http.Post(f.ts.URL+"/api/rules/"+created.ID+"/status", "application/json",
		strings.NewReader(`{"status":"active"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	got, err := f.store.Get(testContext(t), created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RuleError, got.Status)
}

func TestRunRuleEndpoint(t *testing.T) {
	f := setupTestServer(t, "")
	f.inv.Put(types.Record{ID: "rec-1", Fields: map[string]any{"quantity": 2, "reorder_point": 10}})

	created := createRule(t, f)

	// Draft rules cannot run.
	resp, err := http.Post(f.ts.URL+"/api/rules/"+created.ID+"/run", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	_, err = rulestore.Activate(testContext(t), f.store, created.ID)
	require.NoError(t, err)

	resp, err = http.Post(f.ts.URL+"/api/rules/"+created.ID+"/run", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		execs, err := f.ledger.List(context.Background(), types.ExecutionFilter{RuleID: created.ID})
		return err == nil && len(execs) == 1 && execs[0].Status == types.ExecutionSuccess
	}, time.Second, 5*time.Millisecond)
}

func TestRunRuleScopedToRecords(t *testing.T) {
	f := setupTestServer(t, "")
	f.inv.Put(types.Record{ID: "rec-1", Fields: map[string]any{"quantity": 2, "reorder_point": 10}})
	f.inv.Put(types.Record{ID: "rec-2", Fields: map[string]any{"quantity": 3, "reorder_point": 10}})

	created := createRule(t, f)
	_, err := rulestore.Activate(testContext(t), f.store, created.ID)
	require.NoError(t, err)

	resp, err := http.Post(f.ts.URL+"/api/rules/"+created.ID+"/run", "application/json",
		strings.NewReader(`{"recordIds":["rec-2"]}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		execs, err := f.ledger.List(context.Background(), types.ExecutionFilter{RuleID: created.ID})
		return err == nil && len(execs) == 1 &&
			execs[0].Status == types.ExecutionSuccess && execs[0].RecordsProcessed == 1
	}, time.Second, 5*time.Millisecond)
}

func TestExecutionEndpoints(t *testing.T) {
	f := setupTestServer(t, "")
	start := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Second)

	require.NoError(t, f.ledger.Record(testContext(t), types.Execution{
		ID: "exec-1", RuleID: "rule-1", Status: types.ExecutionRunning, StartTime: start,
	}))
	require.NoError(t, f.ledger.Finalize(testContext(t), types.Execution{
		ID: "exec-1", RuleID: "rule-1", Status: types.ExecutionSuccess,
		StartTime: start, EndTime: &end,
	}))

	resp, err := http.Get(f.ts.URL + "/api/executions?ruleId=rule-1&status=success")
	require.NoError(t, err)
	var execs []types.Execution
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&execs))
	_ = resp.Body.Close()
	require.Len(t, execs, 1)
	assert.Equal(t, "exec-1", execs[0].ID)

	resp, err = http.Get(f.ts.URL + "/api/executions/exec-1")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(f.ts.URL + "/api/executions?from=not-a-time")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Cancel of a finished execution conflicts.
	resp, err = http.Post(f.ts.URL+"/api/executions/exec-1/cancel", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRulesSummary(t *testing.T) {
	f := setupTestServer(t, "")
	createRule(t, f)

	resp, err := http.Get(f.ts.URL + "/api/rules/summary")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var summary map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, float64(1), summary["total"])
}

func TestRuleStatisticsEndpoint(t *testing.T) {
	f := setupTestServer(t, "")
	created := createRule(t, f)

	resp, err := http.Get(f.ts.URL + "/api/rules/" + created.ID + "/statistics")
	require.NoError(t, err)
	var stats types.RuleStatistics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	_ = resp.Body.Close()
	assert.Equal(t, created.ID, stats.RuleID)
	assert.Zero(t, stats.ExecutionCount)

	resp, err = http.Get(f.ts.URL + "/api/rules/ghost/statistics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequestIDHeader(t *testing.T) {
	f := setupTestServer(t, "")

	resp, err := http.Get(f.ts.URL + "/api/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, _ := http.NewRequest(http.MethodGet, f.ts.URL+"/api/health", nil)
	req.Header.Set("X-Request-ID", "trace-42")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "trace-42", resp.Header.Get("X-Request-ID"))
}

func TestAPIKeyAuth(t *testing.T) {
	f := setupTestServer(t, "sekret")

	// Health is exempt.
	resp, err := http.Get(f.ts.URL + "/api/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(f.ts.URL + "/api/rules")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, f.ts.URL+"/api/rules", nil)
	req.Header.Set("X-API-Key", "sekret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
