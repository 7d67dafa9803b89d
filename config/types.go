// Package config loads client configuration from defaults, an optional
// YAML file, and TINIFY_* environment variables, in that order of
// precedence with the environment highest.
package config

import (
	"time"

	"github.com/gaborage/go-tinify/retry"
)

// Config carries every knob the client builder accepts.
type Config struct {
	Key           string        `koanf:"key" json:"key" yaml:"key" toml:"key" mapstructure:"key" validate:"required"`
	AppIdentifier string        `koanf:"appidentifier" json:"appidentifier" yaml:"appidentifier" toml:"appidentifier" mapstructure:"appidentifier" validate:"omitempty,max=128"`
	Endpoint      string        `koanf:"endpoint" json:"endpoint" yaml:"endpoint" toml:"endpoint" mapstructure:"endpoint" validate:"required,url,startswith=https://"`
	Timeout       time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout" toml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	Retry         RetryConfig   `koanf:"retry" json:"retry" yaml:"retry" toml:"retry" mapstructure:"retry"`
	Rate          RateConfig    `koanf:"rate" json:"rate" yaml:"rate" toml:"rate" mapstructure:"rate"`
	Log           LogConfig     `koanf:"log" json:"log" yaml:"log" toml:"log" mapstructure:"log"`
}

// RetryConfig mirrors retry.Policy in configuration form.
type RetryConfig struct {
	MaxAttempts int           `koanf:"maxattempts" json:"maxattempts" yaml:"maxattempts" toml:"maxattempts" mapstructure:"maxattempts" validate:"min=1,max=20"`
	BaseDelay   time.Duration `koanf:"basedelay" json:"basedelay" yaml:"basedelay" toml:"basedelay" mapstructure:"basedelay" validate:"gt=0"`
	MaxDelay    time.Duration `koanf:"maxdelay" json:"maxdelay" yaml:"maxdelay" toml:"maxdelay" mapstructure:"maxdelay" validate:"gtefield=BaseDelay"`
	Factor      float64       `koanf:"factor" json:"factor" yaml:"factor" toml:"factor" mapstructure:"factor" validate:"gte=1"`
	Jitter      bool          `koanf:"jitter" json:"jitter" yaml:"jitter" toml:"jitter" mapstructure:"jitter"`
}

// RateConfig bounds the client-side request rate.
type RateConfig struct {
	PerMinute int `koanf:"perminute" json:"perminute" yaml:"perminute" toml:"perminute" mapstructure:"perminute" validate:"min=1"`
	Burst     int `koanf:"burst" json:"burst" yaml:"burst" toml:"burst" mapstructure:"burst" validate:"min=1"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" toml:"level" mapstructure:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty" toml:"pretty" mapstructure:"pretty"`
}

// RetryPolicy converts the retry section into the policy the client takes.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
		Factor:      c.Retry.Factor,
		Jitter:      c.Retry.Jitter,
	}
}
