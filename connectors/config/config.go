// Copyright 2025 Conduit
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

// Package config loads connector definitions from YAML files, expanding
// environment variable references so secrets stay out of the files
// themselves.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"conduit/integrations/connectors/base"
	"conduit/integrations/connectors/sdk"
)

// ConfigFile is the root structure of a connector configuration file.
type ConfigFile struct {
	Version    string                         `yaml:"version"`
	Connectors map[string]ConnectorDefinition `yaml:"connectors,omitempty"`
}

// ConnectorDefinition describes one connector instance: which API it
// talks to, how it authenticates, and how aggressively it may call out.
type ConnectorDefinition struct {
	Type        string `yaml:"type"` // "rest" or "graphql"
	Enabled     bool   `yaml:"enabled"`
	DisplayName string `yaml:"display_name,omitempty"`
	Description string `yaml:"description,omitempty"`

	BaseURL string `yaml:"base_url,omitempty"`

	Credentials *base.Credentials `yaml:"credentials,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`

	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
	Retry     *RetryConfig     `yaml:"retry,omitempty"`

	TimeoutMs int `yaml:"timeout_ms,omitempty"`
}

// RateLimitConfig configures a fixed-window rate limiter.
type RateLimitConfig struct {
	MaxRequests int `yaml:"max_requests"`
	WindowMs    int `yaml:"window_ms"`
}

// Limiter builds the configured rate limiter.
func (c *RateLimitConfig) Limiter() *sdk.RateLimiter {
	return sdk.NewRateLimiter(c.MaxRequests, time.Duration(c.WindowMs)*time.Millisecond)
}

// RetryConfig configures a retry policy.
type RetryConfig struct {
	MaxRetries     int     `yaml:"max_retries"`
	InitialDelayMs int     `yaml:"initial_delay_ms"`
	MaxDelayMs     int     `yaml:"max_delay_ms"`
	Factor         float64 `yaml:"factor"`
	Jitter         bool    `yaml:"jitter"`
}

// Policy builds the configured retry policy, filling unset fields from
// the defaults.
func (c *RetryConfig) Policy() *sdk.RetryPolicy {
	policy := sdk.DefaultRetryPolicy()
	policy.MaxRetries = c.MaxRetries
	policy.Jitter = c.Jitter
	if c.InitialDelayMs > 0 {
		policy.InitialDelay = time.Duration(c.InitialDelayMs) * time.Millisecond
	}
	if c.MaxDelayMs > 0 {
		policy.MaxDelay = time.Duration(c.MaxDelayMs) * time.Millisecond
	}
	if c.Factor > 0 {
		policy.Factor = c.Factor
	}
	return policy
}

// Timeout returns the configured request timeout, defaulting to 30s.
func (d *ConnectorDefinition) Timeout() time.Duration {
	if d.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// Loader reads connector definitions from a YAML file.
type Loader struct {
	filePath string
	config   *ConfigFile
}

// NewLoader loads and validates the given file.
func NewLoader(filePath string) (*Loader, error) {
	loader := &Loader{filePath: filePath}
	if err := loader.Reload(); err != nil {
		return nil, err
	}
	return loader, nil
}

// Reload re-reads and re-validates the configuration file.
func (l *Loader) Reload() error {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", l.filePath, err)
	}

	expanded := expandEnvVars(string(data))

	var config ConfigFile
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := Validate(&config); err != nil {
		return err
	}

	l.config = &config
	return nil
}

// Connectors returns the enabled connector definitions keyed by name.
func (l *Loader) Connectors() map[string]ConnectorDefinition {
	enabled := make(map[string]ConnectorDefinition)
	for name, def := range l.config.Connectors {
		if def.Enabled {
			enabled[name] = def
		}
	}
	return enabled
}

// Connector returns one definition by name, enabled or not.
func (l *Loader) Connector(name string) (ConnectorDefinition, bool) {
	def, ok := l.config.Connectors[name]
	return def, ok
}

// validConnectorTypes enumerates the client kinds this SDK provides.
var validConnectorTypes = map[string]bool{
	"rest":    true,
	"graphql": true,
}

// Validate checks the structural rules for a configuration file.
func Validate(config *ConfigFile) error {
	if config.Version == "" {
		return fmt.Errorf("config file must specify a version")
	}

	for name, def := range config.Connectors {
		if def.Type == "" {
			return fmt.Errorf("connector %q must specify a type", name)
		}
		if !validConnectorTypes[def.Type] {
			return fmt.Errorf("connector %q has unknown type %q", name, def.Type)
		}
		if def.BaseURL == "" {
			return fmt.Errorf("connector %q must specify a base_url", name)
		}
		if def.RateLimit != nil {
			if def.RateLimit.MaxRequests <= 0 {
				return fmt.Errorf("connector %q rate_limit.max_requests must be positive", name)
			}
			if def.RateLimit.WindowMs <= 0 {
				return fmt.Errorf("connector %q rate_limit.window_ms must be positive", name)
			}
		}
		if def.Retry != nil && def.Retry.MaxRetries < 0 {
			return fmt.Errorf("connector %q retry.max_retries must not be negative", name)
		}
	}

	return nil
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands environment variable references. ${VAR:-default}
// falls back to the default when the variable is unset; undefined
// variables without a default expand to the empty string.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}
