package tinify

import (
	"bytes"
	"context"
	nethttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-tinify/retry"
)

func TestRetrySucceedsAfterRetryableFailures(t *testing.T) {
	var calls atomic.Int32
	var server *httptest.Server
	server = newAPIServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(nethttp.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"ServiceUnavailable","message":"try again"}`))
			return
		}
		w.Header().Set("Location", server.URL+testImagePath)
		w.WriteHeader(nethttp.StatusCreated)
	}))

	client, err := newTestBuilder(server).WithRetryPolicy(fastPolicy(5)).Build()
	require.NoError(t, err)

	src, err := client.FromBuffer(context.Background(), []byte(testImageBytes))
	require.NoError(t, err)
	assert.NotNil(t, src)

	// Two failed attempts plus the successful one
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryStopsAtMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := newAPIServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		calls.Add(1)
		w.WriteHeader(nethttp.StatusInternalServerError)
		w.Write([]byte(`{"error":"InternalServerError","message":"still broken"}`))
	}))

	client, err := newTestBuilder(server).WithRetryPolicy(fastPolicy(3)).Build()
	require.NoError(t, err)

	_, err = client.FromBuffer(context.Background(), []byte(testImageBytes))
	require.Error(t, err)

	assert.True(t, IsKind(err, KindRetriesExhausted))
	assert.False(t, IsRetryable(err))
	// The last failure stays reachable through the terminal error
	assert.True(t, IsStatus(err, nethttp.StatusInternalServerError))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFatalErrorShortCircuits(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
	}{
		{"unauthorized", 401, `{"error":"Unauthorized","message":"Credentials are invalid."}`, KindUnauthorized},
		{"bad request", 400, `{"error":"BadRequest","message":"File type is not supported."}`, KindBadRequest},
		{"not found", 404, `{"error":"NotFound","message":"The image does not exist."}`, KindNotFound},
		{"payload too large", 413, `{"error":"TooLarge","message":"Your file exceeds the maximum size."}`, KindPayloadTooLarge},
		{"unsupported media", 415, `{"error":"Unsupported","message":"File type is not supported."}`, KindUnsupportedMedia},
		{"teapot", 418, `{"error":"Teapot","message":"Short and stout."}`, KindClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := newAPIServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))

			client, err := newTestBuilder(server).WithRetryPolicy(fastPolicy(5)).Build()
			require.NoError(t, err)

			_, err = client.FromBuffer(context.Background(), []byte(testImageBytes))
			require.Error(t, err)

			assert.True(t, IsKind(err, tt.kind))
			assert.True(t, IsStatus(err, tt.status))
			assert.False(t, IsRetryable(err))
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestQuotaExceededIsFatal(t *testing.T) {
	var calls atomic.Int32
	server := newAPIServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		calls.Add(1)
		w.WriteHeader(nethttp.StatusTooManyRequests)
		w.Write([]byte(`{"error":"TooManyRequests","message":"Your monthly quota has been exceeded."}`))
	}))

	client, err := newTestBuilder(server).WithRetryPolicy(fastPolicy(5)).Build()
	require.NoError(t, err)

	_, err = client.FromBuffer(context.Background(), []byte(testImageBytes))
	require.Error(t, err)

	assert.True(t, IsKind(err, KindQuotaExceeded))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestPlainRateLimitIsRetried(t *testing.T) {
	var calls atomic.Int32
	var server *httptest.Server
	server = newAPIServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(nethttp.StatusTooManyRequests)
			w.Write([]byte(`{"error":"TooManyRequests","message":"Requests are coming in too fast."}`))
			return
		}
		w.Header().Set("Location", server.URL+testImagePath)
		w.WriteHeader(nethttp.StatusCreated)
	}))

	client, err := newTestBuilder(server).WithRetryPolicy(fastPolicy(3)).Build()
	require.NoError(t, err)

	_, err = client.FromBuffer(context.Background(), []byte(testImageBytes))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRequestIDStableAcrossAttempts(t *testing.T) {
	var requestIDs []string
	var server *httptest.Server
	server = newAPIServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		requestIDs = append(requestIDs, r.Header.Get("X-Request-ID"))
		if len(requestIDs) == 1 {
			w.WriteHeader(nethttp.StatusBadGateway)
			return
		}
		w.Header().Set("Location", server.URL+testImagePath)
		w.WriteHeader(nethttp.StatusCreated)
	}))

	client, err := newTestBuilder(server).WithRetryPolicy(fastPolicy(3)).Build()
	require.NoError(t, err)

	_, err = client.FromBuffer(context.Background(), []byte(testImageBytes))
	require.NoError(t, err)

	require.Len(t, requestIDs, 2)
	assert.Len(t, requestIDs[0], 36)
	assert.Equal(t, requestIDs[0], requestIDs[1])
}

func TestPerAttemptTimeoutIsRetried(t *testing.T) {
	var calls atomic.Int32
	var server *httptest.Server
	server = newAPIServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		w.Header().Set("Location", server.URL+testImagePath)
		w.WriteHeader(nethttp.StatusCreated)
	}))

	client, err := newTestBuilder(server).
		WithTimeout(50 * time.Millisecond).
		WithRetryPolicy(fastPolicy(3)).
		Build()
	require.NoError(t, err)

	_, err = client.FromBuffer(context.Background(), []byte(testImageBytes))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTimeoutExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	server := newAPIServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(nethttp.StatusCreated)
	}))

	client, err := newTestBuilder(server).
		WithTimeout(30 * time.Millisecond).
		WithRetryPolicy(fastPolicy(2)).
		Build()
	require.NoError(t, err)

	_, err = client.FromBuffer(context.Background(), []byte(testImageBytes))
	require.Error(t, err)

	assert.True(t, IsKind(err, KindRetriesExhausted))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCancellation(t *testing.T) {
	t.Run("before any attempt", func(t *testing.T) {
		var calls atomic.Int32
		server := newAPIServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
			calls.Add(1)
			w.WriteHeader(nethttp.StatusCreated)
		}))
		client := buildTestClient(t, server)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.FromBuffer(ctx, []byte(testImageBytes))
		require.Error(t, err)
		assert.True(t, IsKind(err, KindCancelled))
		assert.False(t, IsRetryable(err))
		assert.Zero(t, calls.Load())
	})

	t.Run("during backoff", func(t *testing.T) {
		var calls atomic.Int32
		server := newAPIServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
			calls.Add(1)
			w.WriteHeader(nethttp.StatusInternalServerError)
		}))

		client, err := newTestBuilder(server).
			WithRetryPolicy(retry.Policy{MaxAttempts: 5, BaseDelay: 300 * time.Millisecond, MaxDelay: time.Second, Factor: 2.0}).
			Build()
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		timer := time.AfterFunc(60*time.Millisecond, cancel)
		defer timer.Stop()

		_, err = client.FromBuffer(ctx, []byte(testImageBytes))
		require.Error(t, err)
		assert.True(t, IsKind(err, KindCancelled))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("mid attempt", func(t *testing.T) {
		var calls atomic.Int32
		server := newAPIServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
			calls.Add(1)
			time.Sleep(300 * time.Millisecond)
			w.WriteHeader(nethttp.StatusCreated)
		}))
		client := buildTestClient(t, server)

		ctx, cancel := context.WithCancel(context.Background())
		timer := time.AfterFunc(50*time.Millisecond, cancel)
		defer timer.Stop()

		_, err := client.FromBuffer(ctx, []byte(testImageBytes))
		require.Error(t, err)
		assert.True(t, IsKind(err, KindCancelled))
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestStreamUploadSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	server := newAPIServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		calls.Add(1)
		w.WriteHeader(nethttp.StatusInternalServerError)
		w.Write([]byte(`{"error":"InternalServerError","message":"boom"}`))
	}))

	client, err := newTestBuilder(server).WithRetryPolicy(fastPolicy(5)).Build()
	require.NoError(t, err)

	// The stream cannot be replayed, so the retry budget does not apply
	_, err = client.FromReader(context.Background(), bytes.NewReader([]byte(testImageBytes)))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindServer))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientSideRateLimiting(t *testing.T) {
	var server *httptest.Server
	server = newAPIServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.Header().Set("Location", server.URL+testImagePath)
		w.WriteHeader(nethttp.StatusCreated)
	}))

	// 600 per minute with burst 1: the second request must wait ~100ms
	client, err := newTestBuilder(server).WithRateLimit(600, 1).Build()
	require.NoError(t, err)

	_, err = client.FromBuffer(context.Background(), []byte(testImageBytes))
	require.NoError(t, err)

	start := time.Now()
	_, err = client.FromBuffer(context.Background(), []byte(testImageBytes))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		kind      ErrorKind
		retryable bool
	}{
		{"server error", 500, `{"error":"InternalServerError","message":"oops"}`, KindServer, true},
		{"bad gateway", 502, "", KindServer, true},
		{"service unavailable", 503, "upstream down", KindServer, true},
		{"unauthorized", 401, `{"error":"Unauthorized","message":"Credentials are invalid."}`, KindUnauthorized, false},
		{"bad request", 400, `{"error":"BadRequest","message":"Malformed JSON."}`, KindBadRequest, false},
		{"not found", 404, "", KindNotFound, false},
		{"payload too large", 413, "", KindPayloadTooLarge, false},
		{"unsupported media", 415, "", KindUnsupportedMedia, false},
		{"other 4xx", 410, "", KindClient, false},
		{"rate limited", 429, `{"error":"TooManyRequests","message":"Too many requests."}`, KindRateLimited, true},
		{"quota in message", 429, `{"error":"TooManyRequests","message":"Monthly quota exceeded."}`, KindQuotaExceeded, false},
		{"quota in title", 429, `{"error":"QuotaExceeded","message":"No compressions left."}`, KindQuotaExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyStatus(tt.status, nethttp.Header{}, []byte(tt.body))
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.kind), "kind %v", err)
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.True(t, IsStatus(err, tt.status))
		})
	}
}

func TestParseAPIError(t *testing.T) {
	t.Run("service error body", func(t *testing.T) {
		title, message := parseAPIError([]byte(`{"error":"Unauthorized","message":" Credentials are invalid. "}`))
		assert.Equal(t, "Unauthorized", title)
		assert.Equal(t, "Credentials are invalid.", message)
	})

	t.Run("non-json body", func(t *testing.T) {
		title, message := parseAPIError([]byte("<html>gateway error</html>"))
		assert.Empty(t, title)
		assert.Equal(t, "<html>gateway error</html>", message)
	})

	t.Run("long body is truncated", func(t *testing.T) {
		_, message := parseAPIError(bytes.Repeat([]byte("x"), 500))
		assert.Len(t, message, 200)
	})

	t.Run("empty body", func(t *testing.T) {
		title, message := parseAPIError(nil)
		assert.Empty(t, title)
		assert.Empty(t, message)
	})
}

func TestEmptyMessageFallsBackToStatusText(t *testing.T) {
	err := classifyStatus(503, nethttp.Header{}, nil)
	assert.Contains(t, err.Error(), nethttp.StatusText(nethttp.StatusServiceUnavailable))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 7*time.Second, parseRetryAfter("7"))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter(""))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter("soon"))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter("-5"))

	future := time.Now().Add(30 * time.Second).UTC().Format(nethttp.TimeFormat)
	d := parseRetryAfter(future)
	assert.Greater(t, d, 25*time.Second)
	assert.LessOrEqual(t, d, 30*time.Second)

	past := time.Now().Add(-time.Minute).UTC().Format(nethttp.TimeFormat)
	assert.Equal(t, defaultRetryAfter, parseRetryAfter(past))
}
