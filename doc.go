// Package tinify is a resilient client for the Tinify image compression
// API (TinyPNG / TinyJPG). It uploads images, chains transformations
// (resize, convert, preserve metadata, store to S3 or GCS) against the
// compressed result, and downloads final payloads.
//
// Resilience
//   - Every transport attempt first takes a token from a client-side
//     rate limiter, then runs under a per-attempt timeout.
//   - Retryable failures (network errors, timeouts, 5xx, plain 429) are
//     retried with exponential backoff and full jitter up to the policy's
//     attempt budget, then surface as a retries-exhausted error wrapping
//     the last failure.
//   - Fatal failures (4xx, quota exhaustion, invalid credentials, missing
//     locator) return immediately.
//   - Context cancellation is honored before each attempt, while waiting
//     for a rate-limit token, during backoff, and mid-request.
//
// Construction
//   - tinify.New(key) for defaults, or NewBuilder(log).WithKey(...).
//     WithRetryPolicy(...).WithRateLimit(...).Build() for control.
//   - FromConfig loads the same knobs from YAML files and TINIFY_*
//     environment variables.
//
// All exported types are safe for concurrent use; a single Client is meant
// to be shared across goroutines.
package tinify
