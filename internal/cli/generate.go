package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/spotmatch/pkg/errors"
	"github.com/matzehuels/spotmatch/pkg/imagesrc"
	"github.com/matzehuels/spotmatch/pkg/observability"
	"github.com/matzehuels/spotmatch/pkg/pipeline"
)

// generateFlags holds the command-line flags for the generate command.
// Only flags set on the command line override the settings file.
type generateFlags struct {
	order       string // plane order, or "auto" for the largest the pool fills
	interactive bool   // pick the order in a terminal UI
	seed        uint64
	pageWidth   float64
	pageHeight  float64
	radius      float64
	margin      float64
	rotate      bool
	shuffle     bool
	outer       int
	inner       int
	onFailure   string
	formats     string
	dpi         float64
	title       string
	output      string // output file (single format) or base path
	noCache     bool
	refresh     bool
}

// generateCommand creates the generate command.
func (c *CLI) generateCommand() *cobra.Command {
	var flags generateFlags

	cmd := &cobra.Command{
		Use:   "generate [image-dir]",
		Short: "Generate a printable deck from a folder of images",
		Long: `Generate builds a deck from the images in a folder and writes it as PDF,
SVG, PNG and/or a JSON layout.

An order-n deck needs n²+n+1 images; extra images are left out and reported.
Use --order auto to pick the largest order the folder can fill, or
--interactive to choose from a table.

Runs with an explicit --seed are reproducible and cached.`,
		Example: `  spotmatch generate ./pictures --order 7 --seed 42
  spotmatch generate ./pictures --order auto --formats pdf,json -o deck
  spotmatch generate ./pictures --interactive --on-failure relax`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := c.Settings.Generate
			if err := applyGenerateFlags(cmd, &flags, &opts); err != nil {
				return err
			}
			return c.runGenerate(cmd.Context(), args[0], opts, flags)
		},
	}

	bindGenerateFlags(cmd, &flags)
	return cmd
}

// bindGenerateFlags registers the generate flags on cmd.
func bindGenerateFlags(cmd *cobra.Command, flags *generateFlags) {
	f := cmd.Flags()
	f.StringVarP(&flags.order, "order", "n", "", "plane order: 2, 3, 5, 7, 11 or auto")
	f.BoolVarP(&flags.interactive, "interactive", "i", false, "choose the order interactively")
	f.Uint64Var(&flags.seed, "seed", 0, "random seed (0 draws one and disables caching)")
	f.Float64Var(&flags.pageWidth, "page-width", pipeline.DefaultPageWidth, "page width in mm")
	f.Float64Var(&flags.pageHeight, "page-height", pipeline.DefaultPageHeight, "page height in mm")
	f.Float64Var(&flags.radius, "radius", pipeline.DefaultCardRadius, "card radius in mm")
	f.Float64Var(&flags.margin, "margin", pipeline.DefaultSymbolMargin, "symbol margin in card radii, may be negative, within (-1, 1)")
	f.BoolVar(&flags.rotate, "rotate", pipeline.DefaultRotateSymbols, "rotate symbols randomly")
	f.BoolVar(&flags.shuffle, "shuffle", true, "shuffle images and cards")
	f.IntVar(&flags.outer, "outer-attempts", pipeline.DefaultOuterAttempts, "packing restarts per card")
	f.IntVar(&flags.inner, "inner-attempts", pipeline.DefaultInnerAttempts, "placement tries per symbol")
	f.StringVar(&flags.onFailure, "on-failure", pipeline.DefaultOnFailure, "unpackable cards: abort, relax or skip")
	f.StringVarP(&flags.formats, "formats", "f", "", "output formats: pdf (default), svg, png, json (comma-separated)")
	f.Float64Var(&flags.dpi, "dpi", pipeline.DefaultDPI, "PNG resolution")
	f.StringVar(&flags.title, "title", "", "document title")
	f.StringVarP(&flags.output, "output", "o", "", "output file (single format) or base path (multiple)")
	f.BoolVar(&flags.noCache, "no-cache", false, "disable the layout and artifact cache")
	f.BoolVar(&flags.refresh, "refresh", false, "ignore cached results and regenerate")

	_ = cmd.RegisterFlagCompletionFunc("order", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		orders := []string{"auto"}
		for _, n := range errors.SupportedOrders {
			orders = append(orders, strconv.Itoa(n))
		}
		return orders, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("on-failure", cobra.FixedCompletions([]string{pipeline.OnFailureAbort, pipeline.OnFailureRelax, pipeline.OnFailureSkip}, cobra.ShellCompDirectiveNoFileComp))
}

// applyGenerateFlags overrides opts with the flags set on cmd.
func applyGenerateFlags(cmd *cobra.Command, f *generateFlags, opts *pipeline.Options) error {
	changed := cmd.Flags().Changed

	if changed("order") {
		if err := parseOrderFlag(f.order, opts); err != nil {
			return err
		}
	}
	if changed("seed") {
		opts.Seed = f.seed
	}
	if changed("page-width") {
		opts.PageWidth = f.pageWidth
	}
	if changed("page-height") {
		opts.PageHeight = f.pageHeight
	}
	if changed("radius") {
		opts.CardRadius = f.radius
	}
	if changed("margin") {
		m := f.margin
		opts.SymbolMargin = &m
	}
	if changed("rotate") {
		opts.NoRotate = !f.rotate
	}
	if changed("shuffle") {
		opts.NoShuffle = !f.shuffle
	}
	if changed("outer-attempts") {
		opts.OuterAttempts = f.outer
	}
	if changed("inner-attempts") {
		opts.InnerAttempts = f.inner
	}
	if changed("on-failure") {
		opts.OnFailure = f.onFailure
	}
	if changed("formats") {
		opts.Formats = pipeline.ParseFormats(f.formats)
		if len(opts.Formats) == 0 {
			return errors.New(errors.ErrCodeInvalidFormat, "--formats needs at least one format")
		}
	}
	if changed("dpi") {
		opts.DPI = f.dpi
	}
	if changed("title") {
		opts.Title = f.title
	}
	opts.Refresh = f.refresh
	return nil
}

// parseOrderFlag reads an --order value: a plane order or "auto".
func parseOrderFlag(s string, opts *pipeline.Options) error {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "auto" {
		opts.AutoOrder = true
		opts.Order = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return errors.New(errors.ErrCodeInvalidOrder, "invalid order %q: want one of %v or auto", s, errors.SupportedOrders)
	}
	if err := errors.ValidateOrder(n); err != nil {
		return err
	}
	opts.Order = n
	opts.AutoOrder = false
	return nil
}

func (c *CLI) runGenerate(ctx context.Context, dir string, opts pipeline.Options, flags generateFlags) error {
	logger := loggerFromContext(ctx)
	provider := imagesrc.NewImagingProvider(c.Settings.maxImageSide())

	spinner := newSpinner(ctx, "Loading images...")
	spinner.Start()
	prog := newProgress(logger)
	images, err := imagesrc.LoadDir(ctx, provider, dir)
	spinner.Stop()
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Loaded %d images from %s", len(images), dir))

	if flags.interactive {
		n, err := pickOrder(len(images))
		if err != nil {
			return err
		}
		if n == 0 {
			printInfo("No order selected")
			return nil
		}
		opts.Order, opts.AutoOrder = n, false
	} else if opts.Order == 0 && !opts.AutoOrder {
		return errors.New(errors.ErrCodeInvalidOrder, "no order given: use --order, --order auto or --interactive")
	}

	runner, err := c.newRunner(flags.noCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	opts.Provider = provider
	opts.Logger = logger

	spinner = newSpinner(ctx, "Building design...")
	observability.SetPipelineHooks(&spinnerHooks{spinner: spinner})
	defer observability.Reset()
	spinner.Start()

	result, err := runner.Execute(ctx, images, opts)
	if err != nil {
		spinner.StopWithError("Generation failed")
		return err
	}
	spinner.StopWithSuccess(fmt.Sprintf("Generated order-%d deck (seed %d)", result.Order, result.Seed))
	printStats(result.Stats, result.CacheInfo)

	reportResult(result)

	formats := opts.Formats
	if len(formats) == 0 {
		formats = []string{pipeline.FormatPDF}
	}
	base := filepath.Join(".", fmt.Sprintf("spotmatch-%d-%d", result.Order, result.Seed))
	if err := writeArtifacts(result.Artifacts, formats, outputPaths(flags.output, base, formats)); err != nil {
		return err
	}

	if !result.CacheInfo.Cacheable {
		printNextStep("Reproduce", fmt.Sprintf("spotmatch generate %s --order %d --seed %d", dir, result.Order, result.Seed))
	}
	if slices.Contains(formats, pipeline.FormatJSON) {
		printNextStep("Re-render", fmt.Sprintf("spotmatch render <layout.json> --images %s", dir))
	}
	return nil
}

// reportResult prints warnings about unused images, skipped cards and
// symbols drawn upright.
func reportResult(result *pipeline.Result) {
	if n := len(result.Unused); n > 0 {
		printDetail("%d images unused", n)
		if n <= 5 {
			for _, img := range result.Unused {
				printDetail("  %s", img.Name)
			}
		}
	}
	for _, f := range result.Failures {
		printWarning("Card %d left blank: %s", f.Card, f.Error())
	}
	if n := len(result.RotateFailures); n > 0 {
		printWarning("%d symbols drawn upright because rotation failed", n)
	}
}
