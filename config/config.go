// Package config loads the agent's persisted settings file and its process
// environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Defaults applied before the file is read.
const (
	DefaultProvider         = "openai"
	DefaultSandboxDir       = "./output"
	DefaultShell            = "/bin/sh"
	DefaultRequestTimeout   = 120
	DefaultMaxOutputChars   = 30000
	DefaultLoopWindow       = 10
	DefaultConfigPath       = "config/config.json"
	DefaultConfigEnv        = "default"
	ProviderGollmPrefix     = "gollm:"
	redactedCredentialValue = "[REDACTED]"
)

// Secret holds the completion credential. It renders redacted in every
// textual form; Reveal returns the value.
type Secret string

// Reveal returns the underlying credential.
func (s Secret) Reveal() string { return string(s) }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redactedCredentialValue
}

// GoString keeps %#v from printing the value.
func (s Secret) GoString() string { return s.String() }

// MarshalJSON redacts the credential.
func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// MarshalYAML redacts the credential.
func (s Secret) MarshalYAML() (any, error) { return s.String(), nil }

// Config is the persisted agent configuration.
type Config struct {
	Version            string `json:"version" yaml:"version" validate:"required"`
	CompletionEndpoint string `json:"completion_endpoint" yaml:"completion_endpoint" validate:"omitempty,url"`
	Credential         Secret `json:"credential" yaml:"credential"`
	ModelIdentifier    string `json:"model_identifier" yaml:"model_identifier" validate:"required"`
	MaxIterations      int    `json:"max_iterations" yaml:"max_iterations" validate:"min=1"`

	Provider              string `json:"provider,omitempty" yaml:"provider,omitempty" validate:"required"`
	SandboxDir            string `json:"sandbox_dir,omitempty" yaml:"sandbox_dir,omitempty" validate:"required"`
	Shell                 string `json:"shell,omitempty" yaml:"shell,omitempty" validate:"required"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds,omitempty" yaml:"request_timeout_seconds,omitempty" validate:"min=0"`
	CommandTimeoutSeconds int    `json:"command_timeout_seconds,omitempty" yaml:"command_timeout_seconds,omitempty" validate:"min=0"`
	MaxOutputChars        int    `json:"max_output_chars,omitempty" yaml:"max_output_chars,omitempty" validate:"min=0"`
	LoopDetectionWindow   int    `json:"loop_detection_window,omitempty" yaml:"loop_detection_window,omitempty" validate:"min=0"`
	AllowClarification    bool   `json:"allow_clarification,omitempty" yaml:"allow_clarification,omitempty"`

	// MaxTokens and Temperature tune gollm providers. Zero MaxTokens and a
	// nil Temperature keep the adapter's defaults.
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" validate:"min=0"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"omitempty,min=0,max=1"`
}

// Default returns a Config with every optional field filled in.
func Default() *Config {
	return &Config{
		Provider:              DefaultProvider,
		SandboxDir:            DefaultSandboxDir,
		Shell:                 DefaultShell,
		RequestTimeoutSeconds: DefaultRequestTimeout,
		MaxOutputChars:        DefaultMaxOutputChars,
		LoopDetectionWindow:   DefaultLoopWindow,
	}
}

// RequestTimeout returns the completion request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// CommandTimeout returns the per-command timeout; zero means none.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

// GollmProvider returns the gollm backend name when Provider is "gollm:<name>".
func (c *Config) GollmProvider() (string, bool) {
	name, ok := strings.CutPrefix(c.Provider, ProviderGollmPrefix)
	return name, ok && name != ""
}

// LoadError reports that the configuration could not be read, parsed, or
// validated. It is fatal at startup.
type LoadError struct {
	Path  string
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading config %s: %v", e.Path, e.Cause)
}

func (e *LoadError) Unwrap() error { return e.Cause }

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path, applies it over Default, and validates the result. Files
// ending in .yaml or .yml are YAML; anything else is JSON, with comments and
// trailing commas allowed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}
	return cfg, nil
}

// Parse decodes data in the format named by ext and validates it.
func Parse(data []byte, ext string) (*Config, error) {
	cfg := Default()
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing json: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Provider == DefaultProvider && c.CompletionEndpoint == "" {
		return errors.New("invalid config: completion_endpoint is required for the openai provider")
	}
	if c.Provider != DefaultProvider {
		if _, ok := c.GollmProvider(); !ok {
			return fmt.Errorf("invalid config: provider %q must be %q or %q<name>", c.Provider, DefaultProvider, ProviderGollmPrefix)
		}
	}
	return nil
}
