package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their koanf key so messages match the file and
	// environment spelling.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("koanf"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// ValidationError reports a configuration value that failed validation,
// identified by its koanf key.
type ValidationError struct {
	Key     string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration for %q: %s", e.Key, e.Message)
}

// Validate checks cfg against the documented constraints. The returned
// error names the offending key and, where possible, the fix.
func Validate(cfg *Config) error {
	err := configValidator.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fe := verrs[0]
	return &ValidationError{
		Key:     keyFor(fe),
		Message: constraintMessage(fe),
	}
}

// keyFor turns the validator namespace into the koanf key, so
// "Config.retry.maxattempts" becomes "retry.maxattempts".
func keyFor(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func constraintMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("value is required (set %s or add it to %s)", envVarFor(fe), DefaultFile)
	case "url":
		return "must be a valid URL"
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gtefield":
		return fmt.Sprintf("must not be smaller than %s", strings.ToLower(fe.Param()))
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// envVarFor maps a koanf key to the environment variable that sets it,
// e.g. "retry.maxattempts" to "TINIFY_RETRY_MAXATTEMPTS".
func envVarFor(fe validator.FieldError) string {
	key := keyFor(fe)
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
