package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/matzehuels/spotmatch/pkg/cache"
	"github.com/matzehuels/spotmatch/pkg/errors"
	"github.com/matzehuels/spotmatch/pkg/imagesrc"
	"github.com/matzehuels/spotmatch/pkg/observability"
	"github.com/matzehuels/spotmatch/pkg/render"
	"github.com/matzehuels/spotmatch/pkg/render/sink"
	"github.com/matzehuels/spotmatch/pkg/sheet"
)

// RenderWithCacheInfo renders the requested formats of a layout and reports
// whether every artifact came from the cache. An empty artifactBase disables
// caching. The report is nil on a full cache hit.
func (r *Runner) RenderWithCacheInfo(ctx context.Context, layout *sheet.Layout, images map[string]*imagesrc.Image, artifactBase string, opts Options) (map[string][]byte, *render.Report, bool, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, nil, false, err
	}
	r.applyLogger(&opts)

	if artifactBase != "" && !opts.Refresh {
		artifacts := make(map[string][]byte, len(opts.Formats))
		for _, format := range opts.Formats {
			key := r.Keyer.ArtifactKey(artifactBase, opts.ArtifactKeyOpts(format))
			data, hit, err := r.Cache.Get(ctx, key)
			if err != nil || !hit {
				observability.Cache().OnCacheMiss(ctx, "artifact")
				break
			}
			observability.Cache().OnCacheHit(ctx, "artifact")
			artifacts[format] = data
		}
		if len(artifacts) == len(opts.Formats) {
			return artifacts, nil, true, nil
		}
	}

	artifacts, report, err := Render(ctx, layout, images, opts)
	if err != nil {
		return nil, report, false, err
	}

	if artifactBase != "" {
		for format, data := range artifacts {
			key := r.Keyer.ArtifactKey(artifactBase, opts.ArtifactKeyOpts(format))
			if err := r.Cache.Set(ctx, key, data, cache.ArtifactTTL); err != nil {
				opts.Logger.Warn("artifact cache write failed", "format", format, "error", err)
				continue
			}
			observability.Cache().OnCacheSet(ctx, "artifact", len(data))
		}
	}
	return artifacts, report, false, nil
}

// Render generates output artifacts in the requested formats. images
// resolves the image IDs referenced by the layout's symbols. The returned
// report describes the last drawn document; rotation failures are the same
// for every format.
func Render(ctx context.Context, layout *sheet.Layout, images map[string]*imagesrc.Image, opts Options) (map[string][]byte, *render.Report, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, nil, err
	}
	logger := opts.logger()

	hooks := observability.Pipeline()
	hooks.OnRenderStart(ctx, opts.Formats)
	start := time.Now()

	artifacts := make(map[string][]byte, len(opts.Formats))
	var report *render.Report
	var err error
	for _, format := range opts.Formats {
		var data []byte
		var rep *render.Report
		data, rep, err = renderFormat(layout, images, format, opts)
		if err != nil {
			err = fmt.Errorf("render %s: %w", format, err)
			break
		}
		if rep != nil {
			report = rep
		}
		artifacts[format] = data
		logger.Debug("rendered format", "format", format, "bytes", len(data))
	}

	hooks.OnRenderComplete(ctx, opts.Formats, time.Since(start), err)
	if err != nil {
		return nil, report, err
	}
	if report != nil && len(report.RotateFailures) > 0 {
		logger.Warn("symbols drawn without rotation", "count", len(report.RotateFailures))
	}
	return artifacts, report, nil
}

func renderFormat(layout *sheet.Layout, images map[string]*imagesrc.Image, format string, opts Options) ([]byte, *render.Report, error) {
	if format == FormatJSON {
		var buf bytes.Buffer
		if err := sheet.WriteJSON(layout, &buf); err != nil {
			return nil, nil, err
		}
		return buf.Bytes(), nil, nil
	}

	var doc sink.Document
	switch format {
	case FormatPDF:
		pdfOpts := []sink.PDFOption{}
		if opts.Title != "" {
			pdfOpts = append(pdfOpts, sink.WithPDFTitle(opts.Title))
		}
		doc = sink.NewPDF(pdfOpts...)
	case FormatSVG:
		doc = sink.NewSVG()
	case FormatPNG:
		doc = sink.NewPNG(sink.WithDPI(opts.DPI))
	default:
		return nil, nil, errors.New(errors.ErrCodeUnsupported, "unsupported format: %s", format)
	}

	report, err := render.Draw(layout.Pages, images, doc, render.Options{
		Provider: opts.Provider,
		Rotate:   opts.Rotate(),
	})
	if err != nil {
		return nil, report, err
	}
	data, err := doc.Bytes()
	return data, report, err
}

// RenderFromLayout re-renders a saved layout against a freshly loaded image
// set. Layout images are matched to images by file name.
func RenderFromLayout(ctx context.Context, layout *sheet.Layout, images []*imagesrc.Image, opts Options) (map[string][]byte, *render.Report, error) {
	if err := layout.Validate(); err != nil {
		return nil, nil, err
	}
	bound, err := BindImages(layout, images)
	if err != nil {
		return nil, nil, err
	}
	return Render(ctx, layout, bound, opts)
}

// BindImages resolves the image IDs of a layout to images with the same
// file name.
func BindImages(layout *sheet.Layout, images []*imagesrc.Image) (map[string]*imagesrc.Image, error) {
	byName := make(map[string]*imagesrc.Image, len(images))
	for _, img := range images {
		byName[img.Name] = img
	}

	bound := make(map[string]*imagesrc.Image, len(layout.Images))
	var missing []string
	for id, name := range layout.Images {
		img, ok := byName[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		bound[id] = img
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, errors.New(errors.ErrCodeNotFound, "layout references %d missing images: %v", len(missing), missing)
	}
	return bound, nil
}
