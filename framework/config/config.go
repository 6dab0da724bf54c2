package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the typed configuration of a registry application.
type Config struct {
	App     AppConfig     `yaml:"app"`
	Log     LogConfig     `yaml:"log"`
	Inspect InspectConfig `yaml:"inspect"`
}

type AppConfig struct {
	Name  string `yaml:"name"`
	Env   string `yaml:"env"` // local | production | testing
	Debug bool   `yaml:"debug"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

type InspectConfig struct {
	Prefix string `yaml:"prefix"`
}

// Load reads .env (if present) and populates a Config from environment
// variables. When REGISTRY_CONFIG_FILE names a YAML file it is overlaid on
// the result.
//
//	cfg, err := config.Load()
func Load(envFiles ...string) (*Config, error) {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	// Non-fatal: .env may not exist in production
	_ = godotenv.Load(files...)

	cfg := &Config{
		App: AppConfig{
			Name:  env("REGISTRY_NAME", "registry"),
			Env:   env("REGISTRY_ENV", "local"),
			Debug: envBool("REGISTRY_DEBUG", false),
		},
		Log: LogConfig{
			Level: env("REGISTRY_LOG_LEVEL", "info"),
		},
		Inspect: InspectConfig{
			Prefix: env("REGISTRY_INSPECT_PREFIX", "/_registry"),
		},
	}
	if path := os.Getenv("REGISTRY_CONFIG_FILE"); path != "" {
		if err := LoadYAML(cfg, path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadYAML overlays the YAML file at path on cfg. Keys absent from the file
// keep their current values.
func LoadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ── helpers ─────────────────────────────────────────────────────────────────

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
