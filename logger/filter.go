package logger

import (
	"net/url"
	"strings"
)

// DefaultMaskValue replaces sensitive values in log output.
const DefaultMaskValue = "***"

// FilterConfig defines the configuration for sensitive data filtering
type FilterConfig struct {
	// SensitiveFields contains field names that should be masked in logs
	SensitiveFields []string
	// MaskValue is the value used to replace sensitive data (default: "***")
	MaskValue string
}

// DefaultFilterConfig returns a configuration covering the credential
// material this client handles: the API key, the Authorization header, and
// the cloud storage secrets passed through store operations.
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		SensitiveFields: []string{
			"key", "api_key", "apikey",
			"secret", "password", "token",
			"auth", "authorization",
			"credential", "credentials",
			"aws_secret_access_key", "gcp_access_token",
		},
		MaskValue: DefaultMaskValue,
	}
}

// SensitiveDataFilter masks sensitive values before they reach log output.
type SensitiveDataFilter struct {
	config *FilterConfig
}

// NewSensitiveDataFilter creates a new filter with the given configuration.
// A nil configuration selects the defaults.
func NewSensitiveDataFilter(config *FilterConfig) *SensitiveDataFilter {
	if config == nil {
		config = DefaultFilterConfig()
	}
	if config.MaskValue == "" {
		config.MaskValue = DefaultMaskValue
	}
	return &SensitiveDataFilter{config: config}
}

// FilterString filters sensitive data from string values
func (f *SensitiveDataFilter) FilterString(key, value string) string {
	if f.isSensitiveField(key) {
		return f.maskString(value)
	}
	return value
}

// FilterValue filters sensitive data from arbitrary values. String maps are
// filtered per entry; other values are masked wholesale when their key is
// sensitive and passed through otherwise.
func (f *SensitiveDataFilter) FilterValue(key string, value any) any {
	if f.isSensitiveField(key) {
		return f.config.MaskValue
	}
	switch v := value.(type) {
	case map[string]string:
		filtered := make(map[string]string, len(v))
		for k, s := range v {
			filtered[k] = f.FilterString(k, s)
		}
		return filtered
	case map[string]any:
		return f.FilterFields(v)
	default:
		return value
	}
}

// FilterFields filters a map of fields for sensitive data
func (f *SensitiveDataFilter) FilterFields(fields map[string]any) map[string]any {
	filtered := make(map[string]any, len(fields))
	for key, value := range fields {
		filtered[key] = f.FilterValue(key, value)
	}
	return filtered
}

// isSensitiveField checks if a field name is considered sensitive
func (f *SensitiveDataFilter) isSensitiveField(fieldName string) bool {
	lowerFieldName := strings.ToLower(fieldName)
	for _, sensitiveField := range f.config.SensitiveFields {
		if strings.Contains(lowerFieldName, sensitiveField) {
			return true
		}
	}
	return false
}

// maskString masks sensitive string values
func (f *SensitiveDataFilter) maskString(value string) string {
	if value == "" {
		return value
	}
	// URLs keep their structure; only embedded passwords are masked
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return f.maskURL(value)
	}
	return f.config.MaskValue
}

// maskURL masks the password in a URL's user info while preserving the rest
func (f *SensitiveDataFilter) maskURL(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return f.config.MaskValue
	}
	if parsed.User == nil {
		return urlStr
	}
	if _, hasPassword := parsed.User.Password(); !hasPassword {
		return urlStr
	}
	parsed.User = url.UserPassword(parsed.User.Username(), f.config.MaskValue)
	return parsed.String()
}
