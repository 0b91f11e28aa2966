// Package config provides configuration loading and validation for the
// server and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// Config is the process configuration. Values come from an optional JSON
// file, then environment variables on top.
type Config struct {
	// Port is the HTTP listen port.
	Port int `json:"port,omitempty" validate:"gte=0,lte=65535"`

	// DatabaseURL is the PostgreSQL connection string. Empty means the
	// in-memory store; state is lost on restart.
	DatabaseURL string `json:"database_url,omitempty"`

	// GeminiAPIKey authenticates against the Gemini API.
	GeminiAPIKey string `json:"gemini_api_key,omitempty"`

	// WorkflowsPath points at the workflow definitions file.
	WorkflowsPath string `json:"workflows_path,omitempty"`

	// FollowupSchedule is the cron expression for the daily follow-up
	// sweep. Empty disables it.
	FollowupSchedule string `json:"followup_schedule,omitempty"`

	// LogLevel controls log verbosity.
	LogLevel string `json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
}

var validate = validator.New()

// Default returns the configuration used when nothing is specified.
func Default() *Config {
	return &Config{
		Port:             8080,
		WorkflowsPath:    "workflows.json",
		FollowupSchedule: "0 9 * * *",
		LogLevel:         "info",
	}
}

// Load builds the configuration: defaults, then the JSON file at path if
// path is non-empty, then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if !filepath.IsAbs(path) {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("failed to get current directory: %w", err)
			}
			path = filepath.Join(cwd, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.GeminiAPIKey = v
	}
	if v := os.Getenv("WORKFLOWS_PATH"); v != "" {
		c.WorkflowsPath = v
	}
	if v := os.Getenv("FOLLOWUP_SCHEDULE"); v != "" {
		c.FollowupSchedule = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.FollowupSchedule != "" {
		if _, err := cron.ParseStandard(c.FollowupSchedule); err != nil {
			return fmt.Errorf("config error: invalid followup_schedule %q: %w", c.FollowupSchedule, err)
		}
	}
	return nil
}
