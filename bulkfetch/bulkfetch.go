// Package bulkfetch implements the chunked, parallel range-fetch helper
// (aggregateBulkGetter in the spec) shared by callers that need to pull a
// large indexed range — historical logs, past blocks — in parallel chunks.
package bulkfetch

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxEmptyRetries bounds the "chunk came back empty, try again"
// loop. The spec notes the unbounded version of this loop is almost
// certainly a bug against a legitimately empty range; a cap turns a hang
// into an error.
const DefaultMaxEmptyRetries = 25

// Getter fetches the half-open range [start, end) of the indexed
// collection being aggregated.
type Getter[T any] func(ctx context.Context, start, end int) ([]T, error)

// Aggregate partitions [0, total) into chunks of querySize, fetches every
// chunk concurrently via get, and flattens the results back into index
// order. A chunk that comes back empty is retried (without delay) up to
// maxEmptyRetries times before being treated as an error; pass 0 for
// maxEmptyRetries to use DefaultMaxEmptyRetries. onProgress, if non-nil, is
// called at least once as chunks complete and is guaranteed a final call
// with exactly 1.
func Aggregate[T any](ctx context.Context, total, querySize, maxEmptyRetries int, get Getter[T], onProgress func(fraction float64)) ([]T, error) {
	logger := log.New("component", "bulkfetch")
	if querySize <= 0 {
		return nil, fmt.Errorf("bulkfetch: querySize must be positive, got %d", querySize)
	}
	if maxEmptyRetries <= 0 {
		maxEmptyRetries = DefaultMaxEmptyRetries
	}
	if total <= 0 {
		if onProgress != nil {
			onProgress(1)
		}
		return []T{}, nil
	}

	chunks := int(math.Ceil(float64(total) / float64(querySize)))
	results := make([][]T, chunks)
	logger.Debug("aggregate starting", "total", total, "querySize", querySize, "chunks", chunks)

	var (
		mu         sync.Mutex
		progressed int
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < chunks; i++ {
		i := i
		start := i * querySize
		end := start + querySize
		if end > total {
			end = total
		}
		g.Go(func() error {
			batch, err := fetchChunkUntilNonEmpty(gctx, get, start, end, maxEmptyRetries)
			if err != nil {
				logger.Debug("chunk failed", "start", start, "end", end, "err", err)
				return err
			}
			results[i] = batch

			mu.Lock()
			progressed += end - start
			fraction := float64(progressed) / float64(total)
			mu.Unlock()
			if onProgress != nil {
				onProgress(fraction)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]T, 0, total)
	for _, chunk := range results {
		out = append(out, chunk...)
	}
	if onProgress != nil {
		onProgress(1)
	}
	logger.Debug("aggregate complete", "total", total)
	return out, nil
}

func fetchChunkUntilNonEmpty[T any](ctx context.Context, get Getter[T], start, end, maxEmptyRetries int) ([]T, error) {
	if start == end {
		return nil, nil
	}
	for attempt := 0; ; attempt++ {
		batch, err := get(ctx, start, end)
		if err != nil {
			return nil, err
		}
		if len(batch) > 0 {
			return batch, nil
		}
		if attempt >= maxEmptyRetries {
			return nil, fmt.Errorf("bulkfetch: chunk [%d,%d) returned empty batch after %d attempts", start, end, attempt+1)
		}
	}
}
