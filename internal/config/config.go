// Package config loads the service configuration from a YAML file with
// environment variable overrides for secrets and deployment-specific values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/aegisguard/aegis/internal/alert"
	"github.com/aegisguard/aegis/internal/judge"
)

const (
	DefaultConfigDir = ".aegis"
	DefaultAuditFile = "audit.jsonl"
	DefaultListen    = ":8080"
)

// Config is the full service configuration.
type Config struct {
	// Listen is the HTTP API bind address.
	Listen string `yaml:"listen"`

	// DatabaseURL selects the Postgres store; empty runs on the in-memory
	// store, which is intended for the CLI and development only.
	DatabaseURL string `yaml:"database_url"`

	// AuditPath is the JSONL audit trail destination.
	AuditPath string `yaml:"audit_path"`

	LogLevel string `yaml:"log_level"`

	Judge   judge.Config     `yaml:"judge"`
	RedTeam RedTeamConfig    `yaml:"redteam"`
	SMTP    alert.SMTPConfig `yaml:"smtp"`
}

// RedTeamConfig sizes the campaign worker pool and selects the attack
// generation model.
type RedTeamConfig struct {
	// GenModel overrides the judge model for attack generation.
	GenModel  string `yaml:"gen_model"`
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`
}

// Load reads the config file at path, or defaults when path is empty and no
// file exists in the default config dir. Environment overrides are applied
// last.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, DefaultConfigDir, "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.AuditPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir := filepath.Join(home, DefaultConfigDir)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
		cfg.AuditPath = filepath.Join(dir, DefaultAuditFile)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Listen:   DefaultListen,
		LogLevel: "info",
		RedTeam: RedTeamConfig{
			Workers:   2,
			QueueSize: 16,
		},
	}
}

// applyEnv maps the deployment environment onto the config. Env always wins
// over the file so secrets never need to live on disk.
func applyEnv(cfg *Config) {
	setString(&cfg.Listen, "AEGIS_LISTEN")
	setString(&cfg.DatabaseURL, "AEGIS_DATABASE_URL")
	setString(&cfg.AuditPath, "AEGIS_AUDIT_PATH")
	setString(&cfg.LogLevel, "AEGIS_LOG_LEVEL")

	setString(&cfg.Judge.BaseURL, "AEGIS_JUDGE_BASE_URL")
	setString(&cfg.Judge.APIKey, "AEGIS_JUDGE_API_KEY")
	setString(&cfg.Judge.Model, "AEGIS_JUDGE_MODEL")
	setInt(&cfg.Judge.TimeoutSeconds, "AEGIS_JUDGE_TIMEOUT_SECONDS")

	setString(&cfg.RedTeam.GenModel, "AEGIS_REDTEAM_GEN_MODEL")
	setInt(&cfg.RedTeam.Workers, "AEGIS_REDTEAM_WORKERS")

	setString(&cfg.SMTP.Host, "AEGIS_SMTP_HOST")
	setInt(&cfg.SMTP.Port, "AEGIS_SMTP_PORT")
	setString(&cfg.SMTP.From, "AEGIS_SMTP_FROM")
	setString(&cfg.SMTP.Username, "AEGIS_SMTP_USERNAME")
	setString(&cfg.SMTP.Password, "AEGIS_SMTP_PASSWORD")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
