package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocksentry/stocksentry/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	return dir
}

func TestLoad(t *testing.T) {
	rulesDir := t.TempDir()
	dir := writeConfig(t, `storage: memory
redis:
  addr: localhost:6379
  channelKey: "stocksentry:"
server:
  addr: ":3000"
orchestrator:
  evalWorkers: 8
  actionConcurrency: 4
  actionTimeout: 15s
scheduler:
  tickInterval: 5s
  workers: 3
watchdog:
  enabled: true
  interval: 30s
  stuckFor: 5m
alerts:
  - type: console
  - type: file
    path: /tmp/alerts.jsonl
functions:
  classify: http://localhost:9000/classify
ruleDirs:
  - `+rulesDir+`
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, 8, cfg.Orchestrator.EvalWorkers)
	assert.Equal(t, 15*time.Second, cfg.Orchestrator.ActionTimeout.Std())
	assert.Equal(t, 5*time.Second, cfg.Scheduler.TickInterval.Std())
	assert.Equal(t, 5*time.Minute, cfg.Watchdog.StuckFor.Std())
	assert.Len(t, cfg.Alerts, 2)
	assert.Equal(t, "http://localhost:9000/classify", cfg.Functions["classify"])
	assert.Len(t, cfg.RuleDirs, 1)
}

func TestLoad_Defaults(t *testing.T) {
	dir := writeConfig(t, `storage: memory
`)
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Watchdog.Enabled)
	require.Len(t, cfg.Alerts, 1)
	assert.Equal(t, types.SinkConsole, cfg.Alerts[0].Type)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := writeConfig(t, "invalid: [yaml")
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"bad storage", "storage: cassandra\n", "storage must be"},
		{"postgres without dsn", "storage: postgres\n", "postgres.dsn is required"},
		{"redis without addr", "storage: memory\nredis:\n  db: 1\n", "redis.addr is required"},
		{"file sink without path", "storage: memory\nalerts:\n  - type: file\n", "file sink requires path"},
		{"sns sink without topic", "storage: memory\nalerts:\n  - type: sns\n", "sns sink requires topicArn"},
		{"unknown sink", "storage: memory\nalerts:\n  - type: pager\n", "unknown sink type"},
		{"smtp incomplete", "storage: memory\nsmtp:\n  host: mail\n", "smtp requires"},
		{"missing rule dir", "storage: memory\nruleDirs:\n  - /does/not/exist\n", "not a directory"},
		{"bad duration", "storage: memory\nscheduler:\n  tickInterval: soon\n", "parsing duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfig(t, tt.content)
			_, err := Load(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
