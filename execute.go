package tinify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	nethttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/gaborage/go-tinify/logger"
	"github.com/gaborage/go-tinify/ratelimit"
	"github.com/gaborage/go-tinify/retry"
)

// defaultRetryAfter is recorded on rate-limited errors when the service
// sends no usable Retry-After header.
const defaultRetryAfter = 60 * time.Second

// response is the outcome of one successful transport attempt.
type response struct {
	status  int
	headers nethttp.Header
	body    []byte
}

func (r *response) location() string {
	return r.headers.Get("Location")
}

func (r *response) compressionCount() (int64, bool) {
	v := r.headers.Get("Compression-Count")
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// executor sends requests to the service with client-side rate limiting,
// per-attempt timeouts, and policy-driven retries. It is immutable after
// construction and safe for concurrent use.
type executor struct {
	httpClient *nethttp.Client
	creds      credentials
	userAgent  string
	endpoint   string
	limiter    *ratelimit.Limiter
	policy     retry.Policy
	log        logger.Logger
	tracer     oteltrace.Tracer
}

// shrinkURL returns the entry endpoint new uploads are posted to.
func (e *executor) shrinkURL() string {
	return strings.TrimRight(e.endpoint, "/") + "/shrink"
}

// run executes one logical operation with up to policy.MaxAttempts
// transport attempts. Each attempt pays one rate-limit token before any
// I/O; the body is replayed from the byte slice on every attempt.
func (e *executor) run(ctx context.Context, op, method, url string, body []byte, contentType string) (*response, error) {
	requestID := uuid.NewString()
	log := e.log.WithFields(map[string]any{"request_id": requestID, "operation": op})

	ctx, span := e.startSpan(ctx, op, method, url)
	defer span.End()

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, e.fail(span, log, attempt, NewCancelledError(err))
		}
		if err := e.limiter.Acquire(ctx); err != nil {
			return nil, e.fail(span, log, attempt, NewCancelledError(err))
		}

		log.Debug().Str("method", method).Str("url", url).Int("attempt", attempt).Msg("Sending request")

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		resp, err := e.attempt(ctx, method, url, reader, contentType, requestID)
		if err == nil {
			span.SetAttributes(attribute.Int("tinify.attempts", attempt))
			span.SetStatus(codes.Ok, "")
			log.Debug().Int("status", resp.status).Int("attempt", attempt).Int("size", len(resp.body)).Msg("Request succeeded")
			return resp, nil
		}

		if !IsRetryable(err) {
			return nil, e.fail(span, log, attempt, err)
		}

		lastErr = err
		if attempt >= e.policy.MaxAttempts {
			return nil, e.fail(span, log, attempt, NewExhaustedError(attempt, lastErr))
		}

		delay := e.policy.Backoff(attempt)
		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("Retrying request")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, e.fail(span, log, attempt, NewCancelledError(ctx.Err()))
		case <-timer.C:
		}
	}
}

// runOnce executes one logical operation with exactly one transport
// attempt, for bodies that cannot be replayed. It still pays one
// rate-limit token.
func (e *executor) runOnce(ctx context.Context, op, method, url string, body io.Reader, contentType string) (*response, error) {
	requestID := uuid.NewString()
	log := e.log.WithFields(map[string]any{"request_id": requestID, "operation": op})

	ctx, span := e.startSpan(ctx, op, method, url)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, e.fail(span, log, 1, NewCancelledError(err))
	}
	if err := e.limiter.Acquire(ctx); err != nil {
		return nil, e.fail(span, log, 1, NewCancelledError(err))
	}

	log.Debug().Str("method", method).Str("url", url).Msg("Sending request")

	resp, err := e.attempt(ctx, method, url, body, contentType, requestID)
	if err != nil {
		return nil, e.fail(span, log, 1, err)
	}
	span.SetAttributes(attribute.Int("tinify.attempts", 1))
	span.SetStatus(codes.Ok, "")
	log.Debug().Int("status", resp.status).Int("size", len(resp.body)).Msg("Request succeeded")
	return resp, nil
}

// attempt performs a single transport exchange: build, send, read, classify.
func (e *executor) attempt(ctx context.Context, method, url string, body io.Reader, contentType, requestID string) (*response, error) {
	req, err := nethttp.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, wrapValidationError("cannot build request", "url", err)
	}
	e.applyHeaders(req, contentType, requestID)

	httpResp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, e.classifyTransport(ctx, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, e.classifyTransport(ctx, err)
	}

	if isSuccessStatus(httpResp.StatusCode) {
		return &response{status: httpResp.StatusCode, headers: httpResp.Header, body: respBody}, nil
	}
	return nil, classifyStatus(httpResp.StatusCode, httpResp.Header, respBody)
}

func (e *executor) applyHeaders(req *nethttp.Request, contentType, requestID string) {
	req.Header.Set("Authorization", e.creds.authorization())
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
}

// classifyTransport maps failures below the HTTP layer. The caller's
// context ending is a deliberate stop and fatal; an attempt that merely ran
// out of its own time budget is retryable.
func (e *executor) classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return NewCancelledError(ctx.Err())
	}
	if errors.Is(err, context.Canceled) {
		return NewCancelledError(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError("attempt exceeded its time budget", e.httpClient.Timeout)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("attempt exceeded its time budget", e.httpClient.Timeout)
	}
	return NewTransportError("request execution failed", err)
}

func (e *executor) startSpan(ctx context.Context, op, method, url string) (context.Context, oteltrace.Span) {
	return e.tracer.Start(ctx, "tinify."+op,
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", url),
		))
}

// fail records the terminal error on the span and log before returning it.
func (e *executor) fail(span oteltrace.Span, log logger.Logger, attempt int, err error) error {
	span.SetAttributes(attribute.Int("tinify.attempts", attempt))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log.Error().Err(err).Int("attempt", attempt).Msg("Request failed")
	return err
}

// classifyStatus maps a non-2xx response to the error taxonomy.
func classifyStatus(status int, headers nethttp.Header, body []byte) error {
	title, message := parseAPIError(body)
	if message == "" {
		message = nethttp.StatusText(status)
	}

	switch {
	case status == nethttp.StatusTooManyRequests:
		if isQuotaMessage(title, message) {
			return NewAPIError(KindQuotaExceeded, status, title, message, false)
		}
		return &apiError{
			status:     status,
			title:      title,
			message:    message,
			kind:       KindRateLimited,
			retryable:  true,
			retryAfter: parseRetryAfter(headers.Get("Retry-After")),
		}
	case status >= 500:
		return NewAPIError(KindServer, status, title, message, true)
	case status == nethttp.StatusUnauthorized:
		return NewAPIError(KindUnauthorized, status, title, message, false)
	case status == nethttp.StatusBadRequest:
		return NewAPIError(KindBadRequest, status, title, message, false)
	case status == nethttp.StatusNotFound:
		return NewAPIError(KindNotFound, status, title, message, false)
	case status == nethttp.StatusRequestEntityTooLarge:
		return NewAPIError(KindPayloadTooLarge, status, title, message, false)
	case status == nethttp.StatusUnsupportedMediaType:
		return NewAPIError(KindUnsupportedMedia, status, title, message, false)
	default:
		return NewAPIError(KindClient, status, title, message, false)
	}
}

// parseAPIError reads the service's {"error": ..., "message": ...} body.
// Non-JSON bodies become the message verbatim, truncated to keep errors
// readable.
func parseAPIError(body []byte) (title, message string) {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && (parsed.Error != "" || parsed.Message != "") {
		return parsed.Error, strings.TrimSpace(parsed.Message)
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return "", msg
}

func isQuotaMessage(title, message string) bool {
	return strings.Contains(strings.ToLower(message), "quota") ||
		strings.Contains(strings.ToLower(title), "quota")
}

// parseRetryAfter accepts delta-seconds or an HTTP date, falling back to
// the service's documented 60s default.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := nethttp.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return defaultRetryAfter
}
