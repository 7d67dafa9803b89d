package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// DefaultFile is the YAML file Load looks for in the working directory.
	DefaultFile = "tinify.yaml"

	// EnvPrefix selects the environment variables the loader reads.
	EnvPrefix = "TINIFY_"
)

// Load reads configuration with the standard precedence: defaults, then
// tinify.yaml when present, then TINIFY_* environment variables.
func Load() (*Config, error) {
	return load(func(k *koanf.Koanf) error {
		if _, err := os.Stat(DefaultFile); os.IsNotExist(err) {
			// The file is optional
			return nil
		}
		return k.Load(file.Provider(DefaultFile), yaml.Parser())
	})
}

// LoadFile is Load with an explicit YAML file that must exist.
func LoadFile(path string) (*Config, error) {
	return load(func(k *koanf.Koanf) error {
		return k.Load(file.Provider(path), yaml.Parser())
	})
}

// LoadBytes is Load with YAML supplied in memory instead of a file.
// Environment variables still take precedence.
func LoadBytes(b []byte) (*Config, error) {
	return load(func(k *koanf.Koanf) error {
		return k.Load(rawbytes.Provider(b), yaml.Parser())
	})
}

func load(fromFile func(*koanf.Koanf) error) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := fromFile(k); err != nil {
		return nil, fmt.Errorf("failed to load configuration file: %w", err)
	}

	// Environment variables win over everything else
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "_", ".")
			return key, value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"key":           "",
		"appidentifier": "",
		"endpoint":      "https://api.tinify.com",
		"timeout":       "30s",

		"retry.maxattempts": 3,
		"retry.basedelay":   "100ms",
		"retry.maxdelay":    "10s",
		"retry.factor":      2.0,
		"retry.jitter":      true,

		"rate.perminute": 300,
		"rate.burst":     10,

		"log.level":  "info",
		"log.pretty": false,
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
