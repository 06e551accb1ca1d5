package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/spotmatch/pkg/imagesrc"
	"github.com/matzehuels/spotmatch/pkg/pipeline"
	"github.com/matzehuels/spotmatch/pkg/sheet"
)

// renderFlags holds the command-line flags for the render command.
type renderFlags struct {
	images  string // image directory the layout is matched against
	formats string
	output  string
	rotate  bool
	dpi     float64
	title   string
}

// renderCommand creates the render command for re-rendering saved layouts.
func (c *CLI) renderCommand() *cobra.Command {
	flags := renderFlags{rotate: pipeline.DefaultRotateSymbols, dpi: pipeline.DefaultDPI}

	cmd := &cobra.Command{
		Use:   "render [layout.json]",
		Short: "Re-render a saved JSON layout",
		Long: `Render draws a layout written by "generate --formats json" again, e.g. in
another format or with edited images. Layout images are matched to the files
in --images by name.`,
		Example: `  spotmatch render deck.json --images ./pictures --formats pdf,png`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := c.Settings.Generate
			opts.Formats = pipeline.ParseFormats(flags.formats)
			if len(opts.Formats) == 0 {
				opts.Formats = []string{pipeline.FormatPDF}
			}
			if err := pipeline.ValidateFormats(opts.Formats); err != nil {
				return err
			}
			if cmd.Flags().Changed("rotate") {
				opts.NoRotate = !flags.rotate
			}
			if cmd.Flags().Changed("dpi") {
				opts.DPI = flags.dpi
			}
			if cmd.Flags().Changed("title") {
				opts.Title = flags.title
			}
			if flags.images == "" {
				flags.images = filepath.Dir(args[0])
			}
			return c.runRender(cmd.Context(), args[0], opts, flags)
		},
	}

	cmd.Flags().StringVar(&flags.images, "images", "", "image directory (default: the layout's directory)")
	cmd.Flags().StringVarP(&flags.formats, "formats", "f", "", "output formats: pdf (default), svg, png, json (comma-separated)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output file (single format) or base path (multiple)")
	cmd.Flags().BoolVar(&flags.rotate, "rotate", flags.rotate, "draw symbols at their packed rotation")
	cmd.Flags().Float64Var(&flags.dpi, "dpi", flags.dpi, "PNG resolution")
	cmd.Flags().StringVar(&flags.title, "title", "", "document title")

	return cmd
}

func (c *CLI) runRender(ctx context.Context, path string, opts pipeline.Options, flags renderFlags) error {
	logger := loggerFromContext(ctx)

	layout, err := sheet.ImportJSON(path)
	if err != nil {
		return err
	}
	logger.Debug("loaded layout", "path", path, "order", layout.Order, "seed", layout.Seed, "pages", len(layout.Pages))

	provider := imagesrc.NewImagingProvider(c.Settings.maxImageSide())
	prog := newProgress(logger)
	images, err := imagesrc.LoadDir(ctx, provider, flags.images)
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Loaded %d images from %s", len(images), flags.images))

	opts.Provider = provider
	opts.Logger = logger
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return err
	}

	spinner := newSpinner(ctx, fmt.Sprintf("Rendering %s...", strings.Join(opts.Formats, ", ")))
	spinner.Start()
	artifacts, report, err := pipeline.RenderFromLayout(ctx, layout, images, opts)
	if err != nil {
		spinner.StopWithError("Render failed")
		return err
	}
	spinner.StopWithSuccess(fmt.Sprintf("Rendered %d cards on %d pages", report.Cards, report.Pages))
	if report.SkippedCards > 0 {
		printWarning("%d cards in the layout were never packed and stay blank", report.SkippedCards)
	}
	if n := len(report.RotateFailures); n > 0 {
		printWarning("%d symbols drawn upright because rotation failed", n)
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	if flags.output == "" && len(opts.Formats) == 1 && opts.Formats[0] == pipeline.FormatJSON {
		base += "-rendered"
	}
	return writeArtifacts(artifacts, opts.Formats, outputPaths(flags.output, base, opts.Formats))
}
