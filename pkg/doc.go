// Package pkg provides the libraries behind spotmatch, a generator for
// spot-the-match card decks.
//
// # Overview
//
// Every deck is a finite projective plane: with n+1 pictures per card and
// n²+n+1 cards, any two cards share exactly one picture. The packages split
// the work into pure layout kernels and the plumbing around them:
//
//  1. [design] - card designs (which symbol goes on which card)
//  2. [pack] - randomized placement of symbols inside one round card
//  3. [sheet] - pagination of cards onto pages and the JSON layout format
//  4. [imagesrc] - decoding, rotating and pooling the source images
//  5. [render] - drawing layouts through PDF, SVG and PNG sinks
//  6. [pipeline] - orchestration (design → pack → paginate → render) with caching
//
// # Architecture
//
//	image folder / upload
//	         ↓
//	    [imagesrc] package (decode, digest)
//	         ↓
//	    [design] package (projective plane of order n)
//	         ↓
//	    [pack] package (symbol sizes and positions per card)
//	         ↓
//	    [sheet] package (cards on pages)
//	         ↓
//	    [render] package (PDF/SVG/PNG, or the JSON layout)
//
// # Quick Start
//
//	images, _ := imagesrc.LoadDir(ctx, imagesrc.NewImagingProvider(1024), "pictures")
//	runner := pipeline.NewRunner(cache.NewNullCache(), nil, logger)
//	result, err := runner.Execute(ctx, images, pipeline.Options{Order: 7, Seed: 42})
//	if err != nil {
//	    return err
//	}
//	os.WriteFile("deck.pdf", result.Artifacts[pipeline.FormatPDF], 0o644)
//
// Runs with the same images, options and non-zero seed produce the same
// layout, and are served from the cache when one is configured.
package pkg
