package storage

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

type Storage interface {
	// Put stores data with the given key and returns the storage URL
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get retrieves data from the given storage URL
	Get(ctx context.Context, url string) ([]byte, error)
}

const mirrorConcurrency = 4

// Mirror copies local files into dst under prefix, keyed by base name, and
// returns the resulting URLs in the order of paths.
func Mirror(ctx context.Context, dst Storage, prefix string, paths []string) ([]string, error) {
	urls := make([]string, len(paths))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(mirrorConcurrency)
	for i, p := range paths {
		eg.Go(func() error {
			data, err := os.ReadFile(p)
			if err != nil {
				return xerrors.Errorf("failed to read %s: %w", p, err)
			}
			url, err := dst.Put(ctx, path.Join(prefix, filepath.Base(p)), data)
			if err != nil {
				return xerrors.Errorf("failed to mirror %s: %w", p, err)
			}
			urls[i] = url
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return urls, nil
}
