package tinify

import (
	nethttp "net/http"
	"os"
	"strconv"
)

// Result is the immutable outcome of a chained or terminal operation: the
// response payload plus the service's descriptive headers. A Result never
// changes after creation and is safe to share across goroutines.
type Result struct {
	status  int
	headers nethttp.Header
	body    []byte
}

func newResult(resp *response) *Result {
	return &Result{status: resp.status, headers: resp.headers, body: resp.body}
}

// Bytes returns the payload. The slice is owned by the Result; callers must
// not modify it.
func (r *Result) Bytes() []byte {
	return r.body
}

// Size returns the payload length in bytes.
func (r *Result) Size() int {
	return len(r.body)
}

// ContentType returns the payload media type, or the empty string when the
// service sent none.
func (r *Result) ContentType() string {
	return r.headers.Get("Content-Type")
}

// Width returns the image width reported by the service. The boolean is
// false when the header is absent or unparseable.
func (r *Result) Width() (int, bool) {
	return r.intHeader("Image-Width")
}

// Height returns the image height reported by the service.
func (r *Result) Height() (int, bool) {
	return r.intHeader("Image-Height")
}

// CompressionCount returns the account's compression counter for the
// current billing period, as reported on this response.
func (r *Result) CompressionCount() (int64, bool) {
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

// Location returns the resource locator from the response, when present.
func (r *Result) Location() (string, bool) {
	v := r.headers.Get("Location")
	return v, v != ""
}

// ToFile writes the payload to path with mode 0644.
func (r *Result) ToFile(path string) error {
	if err := os.WriteFile(path, r.body, 0o644); err != nil {
		return wrapValidationError("cannot write output file", "path", err)
	}
	return nil
}

func (r *Result) intHeader(name string) (int, bool) {
	v := r.headers.Get(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
