package replay

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kyleking/schema-replay/internal/catalog"
)

// DefaultWorkers bounds concurrent file reads when no limit is configured
const DefaultWorkers = 4

// ReadFile is a Reader over the local filesystem
func ReadFile(a catalog.Artifact) (string, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// Prefetch reads every artifact admitted by cutoff concurrently and returns a
// Reader serving the results from memory. The first read error cancels the
// remaining reads and is returned.
func Prefetch(ctx context.Context, artifacts []catalog.Artifact, cutoff string, workers int, read Reader) (Reader, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	var (
		mu    sync.Mutex
		texts = make(map[string]string, len(artifacts))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, a := range artifacts {
		if !Applies(a, cutoff) {
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			text, err := read(a)
			if err != nil {
				return fmt.Errorf("failed to read migration %s: %w", a.Path, err)
			}

			mu.Lock()
			texts[a.Path] = text
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return func(a catalog.Artifact) (string, error) {
		text, ok := texts[a.Path]
		if !ok {
			return "", fmt.Errorf("migration %s was not prefetched", a.Path)
		}

		return text, nil
	}, nil
}
