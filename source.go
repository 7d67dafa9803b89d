package tinify

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"sync/atomic"
)

// Source is a handle to a compressed image held by the service. The
// locator never changes after creation; the usage counter is the only
// mutable cell and moves atomically to server-reported values, so a Source
// is safe for concurrent use.
type Source struct {
	location string
	exec     *executor
	count    atomic.Int64
}

func newSource(location string, exec *executor, count int64) *Source {
	s := &Source{location: location, exec: exec}
	s.count.Store(count)
	return s
}

// Location returns the service-side resource locator for this image.
func (s *Source) Location() string {
	return s.location
}

// CompressionCount returns the account's compression counter as last
// reported by the service on this handle's operations. The boolean is
// false while no response has carried the counter yet.
func (s *Source) CompressionCount() (int64, bool) {
	n := s.count.Load()
	if n < 0 {
		return 0, false
	}
	return n, true
}

// Resize requests a resized rendition of the image.
func (s *Source) Resize(ctx context.Context, opts ResizeOptions) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.transform(ctx, "resize", map[string]any{"resize": opts})
}

// Convert requests the image in a different format.
func (s *Source) Convert(ctx context.Context, opts ConvertOptions) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.transform(ctx, "convert", map[string]any{"convert": opts})
}

// Preserve requests a rendition that keeps the named metadata groups,
// which compression strips by default.
func (s *Source) Preserve(ctx context.Context, groups ...Metadata) (*Result, error) {
	if err := validMetadata(groups); err != nil {
		return nil, err
	}
	return s.transform(ctx, "preserve", map[string]any{"preserve": groups})
}

// Store instructs the service to write the image directly to the given
// cloud storage target.
func (s *Source) Store(ctx context.Context, opts StoreOptions) (*Result, error) {
	if opts == nil {
		return nil, NewValidationError("store options must not be nil", "store")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	body, err := marshalStore(opts)
	if err != nil {
		return nil, wrapValidationError("cannot encode store options", "store", err)
	}

	resp, err := s.exec.run(ctx, "store", nethttp.MethodPost, s.location, body, contentTypeJSON)
	if err != nil {
		return nil, err
	}
	return s.resultFromResponse(resp), nil
}

// Fetch downloads the compressed image without further transformation.
func (s *Source) Fetch(ctx context.Context) (*Result, error) {
	resp, err := s.exec.run(ctx, "fetch", nethttp.MethodGet, s.location, nil, "")
	if err != nil {
		return nil, err
	}
	return s.resultFromResponse(resp), nil
}

// ToBuffer downloads the compressed image and returns the payload.
func (s *Source) ToBuffer(ctx context.Context) ([]byte, error) {
	res, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return res.Bytes(), nil
}

// ToFile downloads the compressed image and writes it to path.
func (s *Source) ToFile(ctx context.Context, path string) error {
	res, err := s.Fetch(ctx)
	if err != nil {
		return err
	}
	return res.ToFile(path)
}

// transform posts a directive body against the locator and wraps the
// transformed payload.
func (s *Source) transform(ctx context.Context, op string, directive map[string]any) (*Result, error) {
	body, err := json.Marshal(directive)
	if err != nil {
		return nil, wrapValidationError("cannot encode "+op+" options", op, err)
	}

	resp, err := s.exec.run(ctx, op, nethttp.MethodPost, s.location, body, contentTypeJSON)
	if err != nil {
		return nil, err
	}
	return s.resultFromResponse(resp), nil
}

// resultFromResponse wraps the response and refreshes the usage counter
// when the service reported one.
func (s *Source) resultFromResponse(resp *response) *Result {
	if n, ok := resp.compressionCount(); ok {
		s.count.Store(n)
	}
	return newResult(resp)
}
