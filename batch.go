package tinify

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// FromBuffers uploads multiple images concurrently and returns their
// sources in input order. At most concurrency uploads run at once; zero or
// negative means no bound beyond the rate limiter. The first failure
// cancels the remaining uploads and is returned.
func (c *Client) FromBuffers(ctx context.Context, buffers [][]byte, concurrency int) ([]*Source, error) {
	if len(buffers) == 0 {
		return nil, NewValidationError("at least one buffer is required", "buffers")
	}

	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	sources := make([]*Source, len(buffers))
	for i, data := range buffers {
		g.Go(func() error {
			src, err := c.FromBuffer(ctx, data)
			if err != nil {
				return err
			}
			sources[i] = src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sources, nil
}
