package config

import (
	"errors"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Environment is the process environment the agent reads at startup.
type Environment struct {
	Goal       string `env:"GOAL,required,notEmpty"`
	ConfigEnv  string `env:"CONFIG_ENV" envDefault:"default"`
	ConfigPath string `env:"CONFIG_PATH" envDefault:"config/config.json"`
	SinkURL    string `env:"LOG_SINK_URL"`
	SinkToken  string `env:"LOG_SINK_TOKEN"`
	// Credential overrides the credential from the config file.
	Credential Secret `env:"CREDENTIAL"`
}

// ErrGoalMissing is returned when GOAL is unset or empty.
var ErrGoalMissing = errors.New("GOAL environment variable is required and must not be empty")

// LoadEnvironment parses vars, a KEY=VALUE list such as os.Environ().
func LoadEnvironment(vars []string) (*Environment, error) {
	m := make(map[string]string, len(vars))
	for _, kv := range vars {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}

	var e Environment
	if err := env.ParseWithOptions(&e, env.Options{Environment: m}); err != nil {
		if goalMissing(err) {
			return nil, ErrGoalMissing
		}
		return nil, err
	}
	return &e, nil
}

func goalMissing(err error) bool {
	var notSet env.VarIsNotSetError
	if errors.As(err, &notSet) && notSet.Key == "GOAL" {
		return true
	}
	var empty env.EmptyVarError
	return errors.As(err, &empty) && empty.Key == "GOAL"
}

// LoadForEnvironment loads the file at e.ConfigPath (or path when set),
// applies the environment's credential override, and checks that a
// credential is available for providers that need one.
func LoadForEnvironment(e *Environment, path string) (*Config, error) {
	if path == "" {
		path = e.ConfigPath
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if e.Credential != "" {
		cfg.Credential = e.Credential
	}
	if cfg.Provider == DefaultProvider && cfg.Credential == "" {
		return nil, &LoadError{Path: path, Cause: errors.New("credential is required for the openai provider")}
	}
	return cfg, nil
}
