package tinify

import (
	"encoding/base64"
	"strings"
	"unicode"
)

// credentials holds the API key and renders the Authorization header value.
// It is set once at construction and never mutated. The key stays out of
// String methods, log fields, and error messages; at runtime it appears in
// exactly one place, the Authorization header.
type credentials struct {
	key string
}

// newCredentials validates the key shape. The service accepts printable
// ASCII keys, so anything with whitespace or control characters would only
// produce a corrupt Authorization header.
func newCredentials(key string) (credentials, error) {
	if strings.TrimSpace(key) == "" {
		return credentials{}, NewCredentialsError("api key must not be empty")
	}
	for _, r := range key {
		if r > unicode.MaxASCII || unicode.IsControl(r) || unicode.IsSpace(r) {
			return credentials{}, NewCredentialsError("api key contains whitespace or non-printable characters")
		}
	}
	return credentials{key: key}, nil
}

// authorization returns "Basic " + base64("api:" + key), the service's
// Basic auth scheme with the fixed user "api".
func (c credentials) authorization() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte("api:"+c.key))
}

func (c credentials) empty() bool {
	return c.key == ""
}
