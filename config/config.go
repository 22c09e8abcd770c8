// Package config loads and validates the daemon configuration. The
// configuration is immutable after load; orchestrators receive resolved
// per-target settings and never re-read the file mid-cycle.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ftahirops/sqlsentinel/model"
)

// Config is the root configuration document.
type Config struct {
	DataDir string `yaml:"data_dir"`

	Collection  CollectionConfig  `yaml:"collection"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Baselines   BaselineConfig    `yaml:"baselines"`
	Rules       RuleConfig        `yaml:"rules"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	Remediation RemediationConfig `yaml:"remediation"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`

	Instances []InstanceConfig `yaml:"instances" validate:"min=1,dive"`
}

// CollectionSettings are the cascade-resolvable knobs: global values may
// be overridden per instance and again per database; nearer wins.
type CollectionSettings struct {
	TopN              *int           `yaml:"top_n,omitempty"`
	Lookback          *time.Duration `yaml:"lookback,omitempty"`
	MinimumExecutions *int64         `yaml:"minimum_execution_count,omitempty"`
	CollectionTimeout *time.Duration `yaml:"collection_timeout,omitempty"`
}

// CollectionConfig is the global collection policy.
type CollectionConfig struct {
	TopN              int           `yaml:"top_n" validate:"gt=0"`
	Lookback          time.Duration `yaml:"lookback"`
	MinimumExecutions int64         `yaml:"minimum_execution_count"`
	CollectionTimeout time.Duration `yaml:"collection_timeout"`
	Parallelism       int           `yaml:"parallelism" validate:"gt=0"`
	ContinueOnDatabaseError bool    `yaml:"continue_on_database_error"`
	ContinueOnInstanceError bool    `yaml:"continue_on_instance_error"`
	OrderBy           string        `yaml:"order_by" validate:"oneof=cpu duration logical_reads executions"`
}

// AnalysisConfig controls the regression/hotspot cycle.
type AnalysisConfig struct {
	RecentWindow  time.Duration `yaml:"recent_window"`
	HotspotTopN   int           `yaml:"hotspot_top_n" validate:"gt=0"`
	HotspotMetric string        `yaml:"hotspot_metric" validate:"oneof=cpu duration logical_reads executions"`
}

// BaselineConfig controls baseline construction.
type BaselineConfig struct {
	Lookback   time.Duration `yaml:"lookback"`
	MinSamples int           `yaml:"min_samples" validate:"gt=0"`
}

// RuleConfig carries the detector thresholds. Thresholds live here, not
// on the baseline.
type RuleConfig struct {
	DurationThresholdPercent     float64 `yaml:"duration_threshold_percent"`
	CPUThresholdPercent          float64 `yaml:"cpu_threshold_percent"`
	LogicalReadsThresholdPercent float64 `yaml:"logical_reads_threshold_percent"`
	MinimumExecutions            int64   `yaml:"minimum_executions"`
	MinimumBaselineSamples       int64   `yaml:"minimum_baseline_samples"`
}

// AlertsConfig configures channels and storm controls.
type AlertsConfig struct {
	CooldownMinutes  int                `yaml:"cooldown_minutes"`
	MaxAlertsPerHour int                `yaml:"max_alerts_per_hour"`
	Webhook          WebhookChannelConfig `yaml:"webhook"`
	Slack            SlackChannelConfig   `yaml:"slack"`
	Email            EmailChannelConfig   `yaml:"email"`
}

// WebhookChannelConfig is a generic JSON POST destination.
type WebhookChannelConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// SlackChannelConfig posts via an incoming webhook.
type SlackChannelConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	ChannelTag string `yaml:"channel_tag"`
}

// EmailChannelConfig sends through a plain SMTP relay.
type EmailChannelConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
}

// RemediationConfig gates the executor.
type RemediationConfig struct {
	Enable                 bool     `yaml:"enable"`
	AllowProduction        bool     `yaml:"allow_production"`
	DryRun                 bool     `yaml:"dry_run"`
	AutoExecuteTypes       []string `yaml:"auto_execute_types"`
	CommandTimeoutSeconds  int      `yaml:"command_timeout_seconds"`
	AllowReapply           bool     `yaml:"allow_reapply"`
}

// SchedulerConfig sets job cadences. Daily times are "HH:MM" local.
type SchedulerConfig struct {
	CollectionInterval time.Duration `yaml:"collection_interval"`
	AnalysisInterval   time.Duration `yaml:"analysis_interval"`
	BaselineRebuildTime string       `yaml:"baseline_rebuild_time"`
	DailySummaryTime   string        `yaml:"daily_summary_time"`
	JobTimeout         time.Duration `yaml:"job_timeout"`
	FailureBackoff     time.Duration `yaml:"failure_backoff"`
	MaxConsecutiveFailures int       `yaml:"max_consecutive_failures"`
	RetentionDays      int           `yaml:"retention_days"`
}

// LoggingConfig selects log level and optional rotating file sink.
type LoggingConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// InstanceConfig describes one SQL Server instance and its databases.
// ConnectionString may reference environment variables as ${VAR}.
type InstanceConfig struct {
	Name             string             `yaml:"name" validate:"required"`
	ConnectionString string             `yaml:"connection_string" validate:"required"`
	Enabled          *bool              `yaml:"enabled,omitempty"`
	Tags             []string           `yaml:"tags,omitempty"`
	Overrides        CollectionSettings `yaml:"overrides,omitempty"`
	Databases        []DatabaseConfig   `yaml:"databases" validate:"min=1,dive"`
}

// DatabaseConfig describes one monitored database within an instance.
type DatabaseConfig struct {
	Name      string             `yaml:"name" validate:"required"`
	Enabled   *bool              `yaml:"enabled,omitempty"`
	Tags      []string           `yaml:"tags,omitempty"`
	Overrides CollectionSettings `yaml:"overrides,omitempty"`
}

// Default returns a config with the documented defaults. Instances must
// still be supplied by the file.
func Default() Config {
	return Config{
		DataDir: defaultDataDir(),
		Collection: CollectionConfig{
			TopN:              50,
			Lookback:          2 * time.Hour,
			MinimumExecutions: 1,
			CollectionTimeout: 30 * time.Second,
			Parallelism:       4,
			ContinueOnDatabaseError: true,
			ContinueOnInstanceError: true,
			OrderBy:           "cpu",
		},
		Analysis: AnalysisConfig{
			RecentWindow:  time.Hour,
			HotspotTopN:   10,
			HotspotMetric: "cpu",
		},
		Baselines: BaselineConfig{
			Lookback:   7 * 24 * time.Hour,
			MinSamples: 10,
		},
		Rules: RuleConfig{
			DurationThresholdPercent:     50,
			CPUThresholdPercent:          50,
			LogicalReadsThresholdPercent: 100,
			MinimumExecutions:            5,
			MinimumBaselineSamples:       10,
		},
		Alerts: AlertsConfig{
			CooldownMinutes:  15,
			MaxAlertsPerHour: 10,
		},
		Remediation: RemediationConfig{
			CommandTimeoutSeconds: 60,
		},
		Scheduler: SchedulerConfig{
			CollectionInterval: 5 * time.Minute,
			AnalysisInterval:   5 * time.Minute,
			BaselineRebuildTime: "03:00",
			DailySummaryTime:   "08:00",
			JobTimeout:         10 * time.Minute,
			FailureBackoff:     30 * time.Second,
			MaxConsecutiveFailures: 10,
			RetentionDays:      30,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9822",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sqlsentinel"
	}
	return filepath.Join(home, ".sqlsentinel")
}

// Load reads, defaults, and validates a config file. Any failure is a
// fatal configuration error wrapped with model.ErrConfig.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: read %s: %v", model.ErrConfig, path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse %s: %v", model.ErrConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks struct tags plus the cross-field rules the tags cannot
// express.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", model.ErrConfig, err)
	}
	if _, err := ParseDailyTime(c.Scheduler.BaselineRebuildTime); err != nil {
		return fmt.Errorf("%w: baseline_rebuild_time: %v", model.ErrConfig, err)
	}
	if _, err := ParseDailyTime(c.Scheduler.DailySummaryTime); err != nil {
		return fmt.Errorf("%w: daily_summary_time: %v", model.ErrConfig, err)
	}
	for _, inst := range c.Instances {
		seen := map[string]bool{}
		for _, db := range inst.Databases {
			if seen[db.Name] {
				return fmt.Errorf("%w: instance %s lists database %s twice", model.ErrConfig, inst.Name, db.Name)
			}
			seen[db.Name] = true
		}
	}
	for _, typ := range c.Remediation.AutoExecuteTypes {
		if model.SafetyForType(model.RemediationType(typ)) != model.SafetySafe {
			return fmt.Errorf("%w: auto_execute_types contains non-safe type %q", model.ErrConfig, typ)
		}
	}
	return nil
}

// ParseDailyTime parses "HH:MM" into a cron spec for robfig/cron.
func ParseDailyTime(s string) (string, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return "", fmt.Errorf("want HH:MM, got %q", s)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return "", fmt.Errorf("out of range: %q", s)
	}
	return fmt.Sprintf("%d %d * * *", mm, hh), nil
}
