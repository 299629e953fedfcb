package types

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ProjectConfig represents the top-level stocksentry.yaml configuration.
type ProjectConfig struct {
	Storage      string              `yaml:"storage"` // "memory" or "postgres"
	Postgres     *PostgresConfig     `yaml:"postgres,omitempty"`
	Redis        *RedisConfig        `yaml:"redis,omitempty"`
	Server       *ServerConfig       `yaml:"server,omitempty"`
	Orchestrator *OrchestratorConfig `yaml:"orchestrator,omitempty"`
	Scheduler    *SchedulerConfig    `yaml:"scheduler,omitempty"`
	Watchdog     *WatchdogConfig     `yaml:"watchdog,omitempty"`
	Alerts       []AlertSinkConfig   `yaml:"alerts,omitempty"`
	Functions    map[string]string   `yaml:"functions,omitempty"` // name -> endpoint URL
	SMTP         *SMTPConfig         `yaml:"smtp,omitempty"`
	RuleDirs     []string            `yaml:"ruleDirs,omitempty"`
}

// PostgresConfig holds the durable store connection settings.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig holds Redis event-bus connection settings.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password,omitempty"`
	DB         int    `yaml:"db,omitempty"`
	ChannelKey string `yaml:"channelKey,omitempty"` // pub/sub channel prefix, default "stocksentry:"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	APIKey         string `yaml:"apiKey,omitempty"`
	MaxRequestBody int64  `yaml:"maxRequestBody,omitempty"`
}

// OrchestratorConfig bounds execution concurrency. EvalWorkers defaults to
// the number of available cores; ActionConcurrency caps concurrent
// per-record action chains to protect downstream collaborators.
type OrchestratorConfig struct {
	EvalWorkers       int      `yaml:"evalWorkers,omitempty"`
	ActionConcurrency int      `yaml:"actionConcurrency,omitempty"`
	ActionTimeout     Duration `yaml:"actionTimeout,omitempty"` // per record chain, default "30s"
}

// SchedulerConfig configures the trigger dispatcher loops.
type SchedulerConfig struct {
	TickInterval Duration `yaml:"tickInterval,omitempty"` // cron check granularity, default "1s"
	QueueSize    int      `yaml:"queueSize,omitempty"`    // bounded candidate queue, default 64
	Workers      int      `yaml:"workers,omitempty"`      // dispatch workers, default 2
}

// WatchdogConfig configures stuck-execution recovery.
type WatchdogConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval,omitempty"` // default "1m"
	StuckFor Duration `yaml:"stuckFor,omitempty"` // default "10m"
}

// AlertSinkConfig defines one notification sink.
type AlertSinkConfig struct {
	Type     AlertSinkType `yaml:"type"`
	URL      string        `yaml:"url,omitempty"`
	Path     string        `yaml:"path,omitempty"`
	TopicARN string        `yaml:"topicArn,omitempty"`
	Region   string        `yaml:"region,omitempty"`
}

// SMTPConfig holds mail delivery settings for email actions.
type SMTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	From string `yaml:"from"`
}
