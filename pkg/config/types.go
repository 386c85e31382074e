// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config assembles the layered runtime configuration: built-in
// defaults, a user file, a project file, environment variables, and
// finally runtime overrides, each able to override the last.
package config

import (
	"fmt"

	"github.com/QUSEIT/simacode-sub000/pkg/observability"
)

// ReactConfig holds the react.* options governing the engine's
// confirmation gate and replanning cap.
type ReactConfig struct {
	ConfirmByHuman             bool `mapstructure:"confirm_by_human" yaml:"confirm_by_human,omitempty"`
	ConfirmationTimeoutSeconds int  `mapstructure:"confirmation_timeout_seconds" yaml:"confirmation_timeout_seconds,omitempty"`
	AllowTaskModification      bool `mapstructure:"allow_task_modification" yaml:"allow_task_modification,omitempty"`
	AutoConfirmSafeTasks       bool `mapstructure:"auto_confirm_safe_tasks" yaml:"auto_confirm_safe_tasks,omitempty"`
	MaxReplans                 int  `mapstructure:"max_replans" yaml:"max_replans,omitempty"`
}

// SetDefaults fills unset ReactConfig fields with their defaults.
func (c *ReactConfig) SetDefaults() {
	if c.ConfirmationTimeoutSeconds <= 0 {
		c.ConfirmationTimeoutSeconds = 120
	}
	if c.MaxReplans <= 0 {
		c.MaxReplans = 3
	}
}

// ToolsConfig holds the tools.* options bounding dispatch concurrency and
// default call timeouts.
type ToolsConfig struct {
	MaxConcurrency             int64 `mapstructure:"max_concurrency" yaml:"max_concurrency,omitempty"`
	ServerTimeoutSeconds       int   `mapstructure:"server_timeout_seconds" yaml:"server_timeout_seconds,omitempty"`
	AsyncDefaultTimeoutSeconds int   `mapstructure:"async_default_timeout_seconds" yaml:"async_default_timeout_seconds,omitempty"`
}

// SetDefaults fills unset ToolsConfig fields.
func (c *ToolsConfig) SetDefaults() {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 10
	}
	if c.ServerTimeoutSeconds <= 0 {
		c.ServerTimeoutSeconds = 30
	}
	if c.AsyncDefaultTimeoutSeconds <= 0 {
		c.AsyncDefaultTimeoutSeconds = 3600
	}
}

// ServerConfig is one entry under servers.<name>: a tool server's
// transport and launch/connection parameters.
type ServerConfig struct {
	Transport        string            `mapstructure:"transport" yaml:"transport,omitempty"` // "stdio" | "websocket"
	Enabled          bool              `mapstructure:"enabled" yaml:"enabled,omitempty"`
	Command          string            `mapstructure:"command" yaml:"command,omitempty"`
	Args             []string          `mapstructure:"args" yaml:"args,omitempty"`
	Env              map[string]string `mapstructure:"env" yaml:"env,omitempty"`
	WorkingDirectory string            `mapstructure:"working_directory" yaml:"working_directory,omitempty"`
	URL              string            `mapstructure:"url" yaml:"url,omitempty"` // websocket endpoint
	DedicatedLane    bool              `mapstructure:"dedicated_lane" yaml:"dedicated_lane,omitempty"`
	MaxConcurrent    int64             `mapstructure:"max_concurrent" yaml:"max_concurrent,omitempty"`
}

func (c *ServerConfig) Validate(name string) error {
	if c.Transport != "" && c.Transport != "stdio" && c.Transport != "websocket" {
		return fmt.Errorf("servers.%s.transport: must be \"stdio\" or \"websocket\", got %q", name, c.Transport)
	}
	if c.Transport == "" || c.Transport == "stdio" {
		if c.Command == "" {
			return fmt.Errorf("servers.%s: command is required for stdio transport", name)
		}
	}
	if c.Transport == "websocket" && c.URL == "" {
		return fmt.Errorf("servers.%s: url is required for websocket transport", name)
	}
	return nil
}

// ReasoningConfig selects and configures the AI provider the planner and
// evaluator call into for classification, decomposition, and judgement.
type ReasoningConfig struct {
	Provider   string  `mapstructure:"provider" yaml:"provider,omitempty"` // "openai" | "anthropic" | "gemini"
	Model      string  `mapstructure:"model" yaml:"model,omitempty"`
	APIKey     string  `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Host       string  `mapstructure:"host" yaml:"host,omitempty"`
	MaxTokens  int     `mapstructure:"max_tokens" yaml:"max_tokens,omitempty"`
	TimeoutSec int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds,omitempty"`
	UseAIJudge bool    `mapstructure:"use_ai_judge" yaml:"use_ai_judge,omitempty"`
}

func (c *ReasoningConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.TimeoutSec <= 0 {
		c.TimeoutSec = 60
	}
}

// SessionConfig selects and configures the session.Store backend: "file"
// (the default, persisting one JSON file per session under Dir) or
// "mysql" (persisting one row per session via a go-sql-driver/mysql DSN).
type SessionConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend,omitempty"`
	Dir     string `mapstructure:"dir" yaml:"dir,omitempty"`
	DSN     string `mapstructure:"dsn" yaml:"dsn,omitempty"`
}

func (c *SessionConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "file"
	}
	if c.Dir == "" {
		c.Dir = "./sessions"
	}
}

// Config is the top-level decoded configuration surface, assembled by
// Load from the layered configuration sources.
type Config struct {
	React         ReactConfig             `mapstructure:"react" yaml:"react,omitempty"`
	Tools         ToolsConfig             `mapstructure:"tools" yaml:"tools,omitempty"`
	Servers       map[string]ServerConfig `mapstructure:"servers" yaml:"servers,omitempty"`
	Reasoning     ReasoningConfig         `mapstructure:"reasoning" yaml:"reasoning,omitempty"`
	Session       SessionConfig           `mapstructure:"session" yaml:"session,omitempty"`
	Logger        LoggerConfig            `mapstructure:"logger" yaml:"logger,omitempty"`
	Observability observability.Config    `mapstructure:"observability" yaml:"observability,omitempty"`
}

// SetDefaults fills every section's unset fields.
func (c *Config) SetDefaults() {
	c.React.SetDefaults()
	c.Tools.SetDefaults()
	c.Reasoning.SetDefaults()
	c.Session.SetDefaults()
	c.Logger.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks cross-field and per-server invariants not expressible
// as zero-value defaults.
func (c *Config) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return err
	}
	for name, sc := range c.Servers {
		if !sc.Enabled {
			continue
		}
		if err := sc.Validate(name); err != nil {
			return err
		}
	}
	if c.Session.Backend == "mysql" && c.Session.DSN == "" {
		return fmt.Errorf("session: backend mysql requires dsn")
	}
	if err := c.Observability.Validate(); err != nil {
		return err
	}
	return nil
}
