// Package batch runs work over large slices in fixed-size chunks with bounded
// concurrency, so callers never fan out unbounded against a backend.
package batch

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Options controls chunking. Zero values fall back to the defaults.
type Options struct {
	ChunkSize   int
	Concurrency int
}

// Defaults used when Options fields are not set.
const (
	DefaultChunkSize   = 10
	DefaultConcurrency = 4
)

// ItemError is the failure of one item.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Run calls fn for every item. Chunks run one after another; items within a
// chunk run concurrently up to opts.Concurrency. A failing item does not stop
// the batch: all item errors are joined and returned at the end. Run stops
// early only when ctx is cancelled.
func Run[T any](ctx context.Context, items []T, opts Options, fn func(ctx context.Context, item T) error) error {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	errs := make([]error, len(items))
	for start := 0; start < len(items); start += opts.ChunkSize {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		end := min(start+opts.ChunkSize, len(items))

		var g errgroup.Group
		g.SetLimit(opts.Concurrency)
		for i := start; i < end; i++ {
			g.Go(func() error {
				if err := fn(ctx, items[i]); err != nil {
					errs[i] = &ItemError{Index: i, Err: err}
				}
				return nil
			})
		}
		_ = g.Wait()
	}
	return errors.Join(errs...)
}

// Chunk splits items into slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}
