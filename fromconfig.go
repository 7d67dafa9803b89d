package tinify

import (
	"github.com/gaborage/go-tinify/config"
	"github.com/gaborage/go-tinify/logger"
)

// FromConfig builds a client from a loaded configuration, wiring up the
// logger, retry policy and rate limit it describes.
func FromConfig(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, NewValidationError("config must not be nil", "config")
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	return NewBuilder(log).
		WithKey(cfg.Key).
		WithAppIdentifier(cfg.AppIdentifier).
		WithEndpoint(cfg.Endpoint).
		WithTimeout(cfg.Timeout).
		WithRetryPolicy(cfg.RetryPolicy()).
		WithRateLimit(cfg.Rate.PerMinute, cfg.Rate.Burst).
		Build()
}
