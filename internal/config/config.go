// Package config handles loading and validation of stocksentry.yaml
// project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/stocksentry/stocksentry/pkg/types"
)

// FileName is the project config file looked up in the working directory.
const FileName = "stocksentry.yaml"

// Load reads and parses stocksentry.yaml from the given directory.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *types.ProjectConfig) {
	if cfg.Storage == "" {
		cfg.Storage = "memory"
	}
	if cfg.Server == nil {
		cfg.Server = &types.ServerConfig{}
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Orchestrator == nil {
		cfg.Orchestrator = &types.OrchestratorConfig{}
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = &types.SchedulerConfig{}
	}
	if cfg.Watchdog == nil {
		cfg.Watchdog = &types.WatchdogConfig{Enabled: true}
	}
	if len(cfg.Alerts) == 0 {
		cfg.Alerts = []types.AlertSinkConfig{{Type: types.SinkConsole}}
	}
}

func validate(cfg *types.ProjectConfig) error {
	switch cfg.Storage {
	case "memory", "postgres":
	default:
		return fmt.Errorf("storage must be memory or postgres, got %q", cfg.Storage)
	}
	if cfg.Storage == "postgres" {
		if cfg.Postgres == nil || cfg.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required when storage is postgres")
		}
	}
	if cfg.Redis != nil && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is configured")
	}
	for i, sink := range cfg.Alerts {
		if err := validateSink(sink); err != nil {
			return fmt.Errorf("alerts[%d]: %w", i, err)
		}
	}
	if cfg.SMTP != nil {
		if cfg.SMTP.Host == "" || cfg.SMTP.Port == 0 || cfg.SMTP.From == "" {
			return fmt.Errorf("smtp requires host, port and from")
		}
	}
	for _, dir := range cfg.RuleDirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("ruleDir %q is not a directory", dir)
		}
	}
	return nil
}

func validateSink(sink types.AlertSinkConfig) error {
	switch sink.Type {
	case types.SinkConsole:
		return nil
	case types.SinkFile:
		if sink.Path == "" {
			return fmt.Errorf("file sink requires path")
		}
	case types.SinkWebhook:
		if sink.URL == "" {
			return fmt.Errorf("webhook sink requires url")
		}
	case types.SinkSNS:
		if sink.TopicARN == "" {
			return fmt.Errorf("sns sink requires topicArn")
		}
	default:
		return fmt.Errorf("unknown sink type %q", sink.Type)
	}
	return nil
}
