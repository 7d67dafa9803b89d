package tinify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	neturl "net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/gaborage/go-tinify/logger"
	"github.com/gaborage/go-tinify/ratelimit"
	"github.com/gaborage/go-tinify/retry"
)

const (
	// Version is the library version reported in the User-Agent header.
	Version = "1.0.0"

	// DefaultEndpoint is the production API base URL.
	DefaultEndpoint = "https://api.tinify.com"

	// DefaultTimeout is the per-attempt request timeout.
	DefaultTimeout = 30 * time.Second

	// maxUploadSize is the service's upload limit in bytes.
	maxUploadSize = 5 * 1024 * 1024

	instrumentationName = "github.com/gaborage/go-tinify"
	contentTypeJSON     = "application/json"
)

// Client talks to the compression service. It is immutable after
// construction and safe for concurrent use by multiple goroutines.
type Client struct {
	exec *executor
	log  logger.Logger
}

// New creates a Client with default configuration and a disabled logger.
func New(key string) (*Client, error) {
	return NewBuilder(logger.Disabled()).WithKey(key).Build()
}

// Builder provides a fluent interface for configuring the client
type Builder struct {
	key           string
	appIdentifier string
	endpoint      string
	timeout       time.Duration
	policy        retry.Policy
	ratePerMinute int
	rateBurst     int
	httpClient    *nethttp.Client
	log           logger.Logger
}

// NewBuilder creates a new client builder
func NewBuilder(log logger.Logger) *Builder {
	return &Builder{
		endpoint:      DefaultEndpoint,
		timeout:       DefaultTimeout,
		policy:        retry.Default(),
		ratePerMinute: ratelimit.DefaultPerMinute,
		rateBurst:     ratelimit.DefaultBurst,
		log:           log,
	}
}

// WithKey sets the API key
func (b *Builder) WithKey(key string) *Builder {
	b.key = key
	return b
}

// WithAppIdentifier appends an application identifier to the User-Agent header
func (b *Builder) WithAppIdentifier(id string) *Builder {
	b.appIdentifier = id
	return b
}

// WithEndpoint overrides the API base URL. The endpoint must use https.
func (b *Builder) WithEndpoint(endpoint string) *Builder {
	b.endpoint = endpoint
	return b
}

// WithTimeout sets the per-attempt request timeout
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.timeout = timeout
	return b
}

// WithRetryPolicy sets the backoff policy for retryable failures
func (b *Builder) WithRetryPolicy(policy retry.Policy) *Builder {
	b.policy = policy
	return b
}

// WithRateLimit sets the client-side request budget
func (b *Builder) WithRateLimit(perMinute, burst int) *Builder {
	b.ratePerMinute = perMinute
	b.rateBurst = burst
	return b
}

// WithHTTPClient injects a custom HTTP client, typically for proxies or
// tests. A zero Timeout on it is replaced with the builder's timeout.
func (b *Builder) WithHTTPClient(httpClient *nethttp.Client) *Builder {
	b.httpClient = httpClient
	return b
}

// Build validates the configuration and creates the client
func (b *Builder) Build() (*Client, error) {
	creds, err := newCredentials(b.key)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(b.endpoint, "/")
	u, err := neturl.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, NewValidationError("endpoint must be an absolute URL", "endpoint")
	}
	if u.Scheme != "https" {
		return nil, NewValidationError("endpoint must use https", "endpoint")
	}

	timeout := b.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := b.httpClient
	if httpClient == nil {
		httpClient = &nethttp.Client{Timeout: timeout}
	} else if httpClient.Timeout == 0 {
		// Copy so the caller's client is left untouched
		cp := *httpClient
		cp.Timeout = timeout
		httpClient = &cp
	}

	log := b.log
	if log == nil {
		log = logger.Disabled()
	}

	exec := &executor{
		httpClient: httpClient,
		creds:      creds,
		userAgent:  userAgent(b.appIdentifier),
		endpoint:   endpoint,
		limiter:    ratelimit.New(b.ratePerMinute, b.rateBurst),
		policy:     b.policy.Normalize(),
		log:        log,
		tracer:     otel.Tracer(instrumentationName),
	}
	return &Client{exec: exec, log: log}, nil
}

func userAgent(appIdentifier string) string {
	ua := "go-tinify/" + Version
	if appIdentifier != "" {
		ua += " " + appIdentifier
	}
	return ua
}

// FromBuffer uploads raw image data and returns the handle to the
// compressed image held by the service.
func (c *Client) FromBuffer(ctx context.Context, data []byte) (*Source, error) {
	if len(data) == 0 {
		return nil, NewValidationError("image data must not be empty", "data")
	}
	if len(data) > maxUploadSize {
		return nil, newPreflightError(KindPayloadTooLarge,
			fmt.Sprintf("image size %d exceeds the %d byte upload limit", len(data), maxUploadSize))
	}

	resp, err := c.exec.run(ctx, "upload", nethttp.MethodPost, c.exec.shrinkURL(), data, "")
	if err != nil {
		return nil, err
	}
	return c.sourceFromResponse(resp)
}

// FromFile validates and uploads a local image file. The file must exist,
// weigh at most 5 MiB, and carry one of the supported extensions
// (png, jpg, jpeg, webp).
func (c *Client) FromFile(ctx context.Context, path string) (*Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, wrapValidationError("cannot read input file", "path", err)
	}
	if info.IsDir() {
		return nil, NewValidationError("path is a directory", "path")
	}
	if info.Size() > maxUploadSize {
		return nil, newPreflightError(KindPayloadTooLarge,
			fmt.Sprintf("file %s exceeds the %d byte upload limit", filepath.Base(path), maxUploadSize))
	}
	if ext := filepath.Ext(path); !supportedExtension(ext) {
		return nil, newPreflightError(KindUnsupportedMedia,
			fmt.Sprintf("unsupported file extension %q (supported: png, jpg, jpeg, webp)", ext))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapValidationError("cannot read input file", "path", err)
	}
	return c.FromBuffer(ctx, data)
}

// FromURL instructs the service to fetch and compress the image at rawURL.
func (c *Client) FromURL(ctx context.Context, rawURL string) (*Source, error) {
	u, err := neturl.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, NewValidationError("source url must be an absolute http(s) URL", "url")
	}

	body, err := json.Marshal(map[string]any{"source": map[string]string{"url": rawURL}})
	if err != nil {
		return nil, wrapValidationError("cannot encode source url", "url", err)
	}

	resp, err := c.exec.run(ctx, "upload_url", nethttp.MethodPost, c.exec.shrinkURL(), body, contentTypeJSON)
	if err != nil {
		return nil, err
	}
	return c.sourceFromResponse(resp)
}

// FromReader uploads image data streamed from r. The stream cannot be
// replayed, so the request is sent exactly once regardless of the retry
// policy; it still consumes one rate-limit token.
func (c *Client) FromReader(ctx context.Context, r io.Reader) (*Source, error) {
	if r == nil {
		return nil, NewValidationError("reader must not be nil", "reader")
	}

	resp, err := c.exec.runOnce(ctx, "upload_stream", nethttp.MethodPost, c.exec.shrinkURL(), r, "")
	if err != nil {
		return nil, err
	}
	return c.sourceFromResponse(resp)
}

// sourceFromResponse turns an entry response into a Source. A success
// response without a Location header is a service contract violation and
// fatal.
func (c *Client) sourceFromResponse(resp *response) (*Source, error) {
	loc := resp.location()
	if loc == "" {
		return nil, NewMissingLocationError(resp.status)
	}
	count, ok := resp.compressionCount()
	if !ok {
		count = -1
	}
	return newSource(loc, c.exec, count), nil
}

func supportedExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ".png", ".jpg", ".jpeg", ".webp":
		return true
	}
	return false
}
