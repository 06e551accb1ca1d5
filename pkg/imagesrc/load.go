package imagesrc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/spotmatch/pkg/errors"
)

// Source is one encoded image waiting to be decoded.
type Source struct {
	Name string
	Data []byte
}

// DecodeAll decodes sources concurrently and returns the images in source
// order. The first decode failure cancels the remaining work and is
// returned as-is.
func DecodeAll(ctx context.Context, p Provider, sources []Source) ([]*Image, error) {
	out := make([]*Image, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := p.Decode(src.Name, src.Data)
			if err != nil {
				return err
			}
			out[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadFiles reads and decodes the files at paths, keeping their order.
func LoadFiles(ctx context.Context, p Provider, paths []string) ([]*Image, error) {
	sources := make([]Source, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.Wrap(errors.ErrCodeNotFound, err, "read %s", path)
			}
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		sources[i] = Source{Name: filepath.Base(path), Data: data}
	}
	return DecodeAll(ctx, p, sources)
}

// LoadDir decodes every image file directly inside dir, in file name order.
// Files without an image extension and subdirectories are skipped.
func LoadDir(ctx context.Context, p Provider, dir string) ([]*Image, error) {
	paths, err := ListDir(dir)
	if err != nil {
		return nil, err
	}
	return LoadFiles(ctx, p, paths)
}

// ListDir returns the image files directly inside dir, in file name order.
func ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "image directory %s", dir)
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !errors.IsImageFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}
