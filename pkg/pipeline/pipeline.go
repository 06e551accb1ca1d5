// Package pipeline runs a complete deck generation.
//
// This package implements the design → pack → paginate → render pipeline
// shared by the CLI and the HTTP API, so both entry points apply the same
// defaults, failure policies and caching.
//
// # Architecture
//
// A generation runs four stages over an immutable snapshot of the image
// pool:
//
//  1. Design: build the projective plane of order n and bind symbol s to
//     image s of the snapshot
//  2. Pack: lay out the symbols of every card inside the card circle
//  3. Paginate: place cards on pages
//  4. Render: produce PDF, SVG, PNG and JSON artifacts
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	opts := pipeline.Options{
//	    Order:   7,
//	    Formats: []string{"pdf"},
//	}
//	result, err := runner.Execute(ctx, pool.Snapshot(), opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pdf := result.Artifacts["pdf"]
//
// A Runner admits one generation at a time. A second Execute while one is
// running fails immediately with CONCURRENT_REQUEST; requests are never
// queued.
package pipeline

import (
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/spotmatch/pkg/cache"
	"github.com/matzehuels/spotmatch/pkg/design"
	"github.com/matzehuels/spotmatch/pkg/errors"
	"github.com/matzehuels/spotmatch/pkg/imagesrc"
	"github.com/matzehuels/spotmatch/pkg/pack"
	"github.com/matzehuels/spotmatch/pkg/render"
	"github.com/matzehuels/spotmatch/pkg/sheet"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and API
// =============================================================================

const (
	// DefaultPageWidth is the page width in mm (A4).
	DefaultPageWidth = 210.0

	// DefaultPageHeight is the page height in mm (A4).
	DefaultPageHeight = 297.0

	// DefaultCardRadius is the card radius in mm. Two columns and three
	// rows of cards fit on A4.
	DefaultCardRadius = 42.0

	// DefaultSymbolMargin is the overlap-test margin in card-local units.
	// Negative, because rotated images look smaller than their boxes.
	DefaultSymbolMargin = -0.1

	// DefaultRotateSymbols enables random symbol rotation.
	DefaultRotateSymbols = true

	// DefaultOuterAttempts is the per-card attempt budget.
	DefaultOuterAttempts = pack.DefaultOuterAttempts

	// DefaultInnerAttempts is the per-symbol candidate budget.
	DefaultInnerAttempts = pack.DefaultInnerAttempts

	// DefaultDPI is the PNG preview resolution.
	DefaultDPI = 96.0
)

// Failure policies decide what happens to cards that cannot be packed.
const (
	// OnFailureAbort fails the whole generation with PACKING_FAILURE.
	OnFailureAbort = "abort"

	// OnFailureRelax repacks failed cards with smaller symbols and a
	// tighter margin, up to RelaxRounds times, then aborts.
	OnFailureRelax = "relax"

	// OnFailureSkip keeps failed cards as empty slots and renders the rest.
	OnFailureSkip = "skip"
)

// DefaultOnFailure is the default failure policy.
const DefaultOnFailure = OnFailureAbort

// Relax policy parameters.
const (
	RelaxRounds      = 3
	RelaxSizeFactor  = 0.15 // size range shrink per round
	RelaxMarginDelta = 0.05 // margin reduction per round
)

// Format constants for output formats.
const (
	FormatPDF  = "pdf"
	FormatSVG  = "svg"
	FormatPNG  = "png"
	FormatJSON = "json"
)

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	FormatPDF:  true,
	FormatSVG:  true,
	FormatPNG:  true,
	FormatJSON: true,
}

// ValidFailurePolicies is the set of supported failure policies.
var ValidFailurePolicies = map[string]bool{
	OnFailureAbort: true,
	OnFailureRelax: true,
	OnFailureSkip:  true,
}

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for a generation.
// This struct supports JSON (API) and TOML (settings file) serialization.
type Options struct {
	// Design options
	Order     int  `json:"order,omitempty" toml:"order"`
	AutoOrder bool `json:"auto_order,omitempty" toml:"auto_order"` // use the largest plane the pool fills
	NoShuffle bool `json:"no_shuffle,omitempty" toml:"no_shuffle"` // keep pool and card order

	// Geometry options, in mm
	PageWidth  float64 `json:"page_width,omitempty" toml:"page_width"`
	PageHeight float64 `json:"page_height,omitempty" toml:"page_height"`
	CardRadius float64 `json:"card_radius,omitempty" toml:"card_radius"`

	// Packing options
	SymbolMargin  *float64 `json:"symbol_margin,omitempty" toml:"symbol_margin"`
	NoRotate      bool     `json:"no_rotate,omitempty" toml:"no_rotate"`
	OuterAttempts int      `json:"outer_attempts,omitempty" toml:"outer_attempts"`
	InnerAttempts int      `json:"inner_attempts,omitempty" toml:"inner_attempts"`
	OnFailure     string   `json:"on_failure,omitempty" toml:"on_failure"`
	Seed          uint64   `json:"seed,omitempty" toml:"seed"` // 0 draws a random seed

	// Render options
	Formats []string `json:"formats,omitempty" toml:"formats"`
	DPI     float64  `json:"dpi,omitempty" toml:"dpi"`
	Title   string   `json:"title,omitempty" toml:"title"`

	// Runtime options (not serialized)
	Refresh  bool              `json:"-" toml:"-"` // skip cache reads
	Logger   *log.Logger       `json:"-" toml:"-"`
	Provider imagesrc.Provider `json:"-" toml:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// Margin returns the symbol margin, or the default when unset.
func (o *Options) Margin() float64 {
	if o.SymbolMargin == nil {
		return DefaultSymbolMargin
	}
	return *o.SymbolMargin
}

// Rotate reports whether symbols are rotated.
func (o *Options) Rotate() bool {
	return !o.NoRotate
}

// Geometry returns the page geometry.
func (o *Options) Geometry() sheet.Geometry {
	return sheet.Geometry{PageWidth: o.PageWidth, PageHeight: o.PageHeight, Radius: o.CardRadius}
}

// PackOptions returns the packer configuration for order n after the given
// number of relax rounds.
func (o *Options) PackOptions(n, round int) pack.Options {
	sizes := pack.DefaultSizeRange(n, o.InnerAttempts)
	margin := o.Margin()
	if round > 0 {
		sizes = pack.Scale(sizes, 1-RelaxSizeFactor*float64(round))
		margin -= RelaxMarginDelta * float64(round)
	}
	return pack.Options{
		Margin:        margin,
		Rotate:        o.Rotate(),
		OuterAttempts: o.OuterAttempts,
		InnerAttempts: o.InnerAttempts,
		SizeRange:     sizes,
	}
}

// =============================================================================
// Result - Pipeline Output
// =============================================================================

// Result contains the outputs of a generation.
type Result struct {
	// ID identifies the generation in logs and API responses.
	ID string

	// Order and Seed reproduce the generation. Seed is the drawn seed when
	// the request asked for a random one.
	Order int
	Seed  uint64

	// Deck is the card design. Symbol s is drawn with Images[s].
	Deck   design.Deck
	Images []*imagesrc.Image

	// Unused lists pool images beyond the plane's symbol count.
	Unused []*imagesrc.Image

	// Cards holds the packing outcome per card. Nil when the layout came
	// from the cache.
	Cards []pack.Packed

	// Failures lists cards that stayed unpacked under the skip policy.
	Failures []*pack.FailureError

	// Layout is the paginated sheet.
	Layout *sheet.Layout

	// Artifacts contains rendered outputs keyed by format.
	Artifacts map[string][]byte

	// RotateFailures lists symbols drawn upright because rotation failed.
	RotateFailures []render.SymbolError

	Stats     Stats
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Cards        int
	Pages        int
	Attempts     int // outer packing attempts across all cards and rounds
	RelaxRounds  int
	DesignTime   time.Duration
	PackTime     time.Duration
	PaginateTime time.Duration
	RenderTime   time.Duration
}

// CacheInfo tracks cache hits for each pipeline stage.
type CacheInfo struct {
	Cacheable bool // whether the seed was explicit
	LayoutHit bool // whether the layout came from cache
	RenderHit bool // whether all artifacts came from cache
}

// =============================================================================
// Validation Functions
// =============================================================================

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return errors.New(errors.ErrCodeInvalidFormat, "invalid format: %q (must be one of: pdf, svg, png, json)", format)
	}
	return nil
}

// ValidateFormats checks that all formats are valid.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if err := ValidateFormat(f); err != nil {
			return err
		}
	}
	return nil
}

// ValidateFailurePolicy checks that a failure policy is valid.
func ValidateFailurePolicy(policy string) error {
	if !ValidFailurePolicies[policy] {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid on_failure: %q (must be one of: abort, relax, skip)", policy)
	}
	return nil
}

// ParseFormats splits a comma-separated format list.
func ParseFormats(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

// =============================================================================
// Options Methods
// =============================================================================

// ValidateAndSetDefaults applies defaults and validates the options.
// The order itself is checked once the pool size is known.
// This method is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	o.SetDefaults()

	if err := o.Geometry().Validate(); err != nil {
		return err
	}
	if m := o.Margin(); !(m > -1 && m < 1) {
		return errors.New(errors.ErrCodeInvalidConfig, "symbol_margin %v out of range (-1, 1)", m)
	}
	if err := ValidateFailurePolicy(o.OnFailure); err != nil {
		return err
	}
	if err := ValidateFormats(o.Formats); err != nil {
		return err
	}
	if !(o.DPI > 0) {
		return errors.New(errors.ErrCodeInvalidConfig, "dpi must be positive, got %v", o.DPI)
	}
	if o.OuterAttempts < 0 || o.InnerAttempts < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "attempt budgets must not be negative")
	}
	o.validated = true
	return nil
}

// SetDefaults fills zero-valued fields with defaults. The logger is left to
// the caller; see [Options.logger].
func (o *Options) SetDefaults() {
	if o.PageWidth == 0 {
		o.PageWidth = DefaultPageWidth
	}
	if o.PageHeight == 0 {
		o.PageHeight = DefaultPageHeight
	}
	if o.CardRadius == 0 {
		o.CardRadius = DefaultCardRadius
	}
	if o.OuterAttempts == 0 {
		o.OuterAttempts = DefaultOuterAttempts
	}
	if o.InnerAttempts == 0 {
		o.InnerAttempts = DefaultInnerAttempts
	}
	if o.OnFailure == "" {
		o.OnFailure = DefaultOnFailure
	}
	if len(o.Formats) == 0 {
		o.Formats = []string{FormatPDF}
	}
	if o.DPI == 0 {
		o.DPI = DefaultDPI
	}
	if o.Provider == nil {
		o.Provider = imagesrc.NewImagingProvider(0)
	}
}

// LayoutKeyOpts returns cache key options for the layout of order n.
func (o *Options) LayoutKeyOpts(n int, seed uint64) cache.LayoutKeyOpts {
	return cache.LayoutKeyOpts{
		Order:         n,
		Seed:          seed,
		PageWidth:     o.PageWidth,
		PageHeight:    o.PageHeight,
		Radius:        o.CardRadius,
		Margin:        o.Margin(),
		Rotate:        o.Rotate(),
		Shuffle:       !o.NoShuffle,
		OnFailure:     o.OnFailure,
		OuterAttempts: o.OuterAttempts,
		InnerAttempts: o.InnerAttempts,
	}
}

// ArtifactKeyOpts returns cache key options for artifact rendering.
func (o *Options) ArtifactKeyOpts(format string) cache.ArtifactKeyOpts {
	k := cache.ArtifactKeyOpts{Format: format, Rotate: o.Rotate()}
	if format == FormatPNG {
		k.DPI = o.DPI
	}
	return k
}

// logger returns the configured logger or one that discards everything.
func (o *Options) logger() *log.Logger {
	if o.Logger == nil {
		return log.NewWithOptions(io.Discard, log.Options{})
	}
	return o.Logger
}
