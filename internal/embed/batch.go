package embed

import (
	"context"
	"fmt"
	"sync"
)

// Embedder produces a vector for one text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbed fans texts out to the embedder with at most maxParallel
// in-flight calls and fans results back in. Completion order is
// arbitrary; the returned slice is restored to input order by index.
// The first error cancels the remaining work.
func BatchEmbed(ctx context.Context, e Embedder, texts []string, maxParallel int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if maxParallel <= 0 {
		maxParallel = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]float32, len(texts))
	sem := make(chan struct{}, maxParallel)

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var firstErr error

	for i, text := range texts {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, firstErrOr(ctx.Err(), &errMu, &firstErr)
		}

		wg.Add(1)
		go func(idx int, t string) {
			defer wg.Done()
			defer func() { <-sem }()

			vec, err := e.Embed(ctx, t)
			if err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("embed text %d: %w", idx, err)
				}
				errMu.Unlock()
				cancel()
				return
			}
			results[idx] = vec
		}(i, text)
	}

	wg.Wait()

	errMu.Lock()
	defer errMu.Unlock()
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

func firstErrOr(fallback error, mu *sync.Mutex, firstErr *error) error {
	mu.Lock()
	defer mu.Unlock()
	if *firstErr != nil {
		return *firstErr
	}
	return fallback
}
