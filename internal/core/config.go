package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/3cpo-dev/saltamt/internal/engine"
	"github.com/3cpo-dev/saltamt/internal/policy"
)

// Environment variables that override the config file.
const (
	EnvEngineURL = "SALTAMT_ENGINE_URL"
	EnvToken     = "POLICYENGINE_TOKEN"
	EnvAPIToken  = "SALTAMT_API_TOKEN"
)

// LoadConfig reads YAML configuration from path. If path is empty it resolves
// config.yaml in ConfigDir, and a missing default file yields the defaults.
// Tokens from secrets.env and the environment are merged in afterwards.
func LoadConfig(path string) (engine.Config, error) {
	var cfg engine.Config
	explicit := path != ""
	if !explicit {
		path = filepath.Join(ConfigDir(), "config.yaml")
	}
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	cfg.ApplyDefaults()
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = filepath.Join(ConfigDir(), "cache.db")
	}
	if cfg.Defaults.Year == 0 {
		cfg.Defaults.Year = policy.DefaultYear
	}
	if cfg.Defaults.Baseline == "" {
		cfg.Defaults.Baseline = string(policy.CurrentLaw)
	}

	// Merge secrets from secrets.env if present to avoid storing tokens in YAML
	secrets, _ := LoadSecretsEnv("")
	if v := os.Getenv(EnvToken); v != "" {
		secrets[EnvToken] = v
	}
	if t := secrets[EnvToken]; t != "" {
		for i := range cfg.Engine.Endpoints {
			if cfg.Engine.Endpoints[i].Token == "" {
				cfg.Engine.Endpoints[i].Token = t
			}
		}
	}
	if v := os.Getenv(EnvAPIToken); v != "" {
		secrets[EnvAPIToken] = v
	}
	if t := secrets[EnvAPIToken]; t != "" {
		cfg.Server.Token = t
	}
	if u := os.Getenv(EnvEngineURL); u != "" {
		for i := range cfg.Engine.Endpoints {
			if cfg.Engine.Endpoints[i].Name == cfg.Engine.Default {
				cfg.Engine.Endpoints[i].URL = u
			}
		}
	}
	return cfg, nil
}
