package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/spotmatch/pkg/cache"
	"github.com/matzehuels/spotmatch/pkg/design"
	"github.com/matzehuels/spotmatch/pkg/errors"
	"github.com/matzehuels/spotmatch/pkg/imagesrc"
	"github.com/matzehuels/spotmatch/pkg/observability"
	"github.com/matzehuels/spotmatch/pkg/pack"
	"github.com/matzehuels/spotmatch/pkg/sheet"
)

// Runner encapsulates pipeline execution with caching and admission
// control. Both CLI and API use it so a generation behaves the same from
// either entry point.
//
// A Runner admits one generation at a time; share one Runner between all
// callers that must not run concurrently.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	running atomic.Bool
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Busy reports whether a generation is running.
func (r *Runner) Busy() bool {
	return r.running.Load()
}

// NewRNG returns the generator used for a seed. Equal seeds give equal decks
// and layouts.
func NewRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0xdeadbeef))
}

// Execute runs the complete design → pack → paginate → render pipeline.
//
// images is read as a snapshot; callers may keep mutating their pool. Symbol
// s of the deck is drawn with image s of the (optionally shuffled) snapshot.
// Execute fails with CONCURRENT_REQUEST when another generation is running.
// Once packing has started it runs to completion; ctx is only consulted
// between stages.
func (r *Runner) Execute(ctx context.Context, images []*imagesrc.Image, opts Options) (*Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		observability.Pipeline().OnRejected(ctx, "generation in progress")
		return nil, errors.New(errors.ErrCodeConcurrentRequest, "a generation is already running")
	}
	defer r.running.Store(false)

	// Let a UI that triggered the generation observe the busy state first.
	runtime.Gosched()

	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	r.applyLogger(&opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pool := slices.Clone(images)
	n, err := ResolveOrder(len(pool), opts)
	if err != nil {
		return nil, err
	}

	seed := opts.Seed
	if seed == 0 {
		seed = randomSeed()
	}
	rng := NewRNG(seed)

	result := &Result{
		ID:        uuid.NewString(),
		Order:     n,
		Seed:      seed,
		Artifacts: make(map[string][]byte),
	}
	result.CacheInfo.Cacheable = opts.Seed != 0
	logger := opts.logger().With("generation", result.ID)

	// Stage 1: Design
	designStart := time.Now()
	deck, err := r.Design(ctx, n, rng, opts)
	if err != nil {
		return nil, fmt.Errorf("design: %w", err)
	}
	symbols := pool
	if !opts.NoShuffle {
		symbols = imagesrc.ShuffleSnapshot(pool, rng)
	}
	S := deck.Symbols()
	result.Deck = deck
	result.Images = symbols[:S]
	result.Unused = symbols[S:]
	result.Stats.DesignTime = time.Since(designStart)

	logger.Info("built design",
		"order", n,
		"cards", len(deck.Cards),
		"unused_images", len(result.Unused),
		"seed", seed)

	layoutKey := r.layoutKey(pool, n, seed, opts)
	if result.CacheInfo.Cacheable && !opts.Refresh {
		if layout, ok := r.cachedLayout(ctx, layoutKey, result.Images); ok {
			layout.ID = result.ID
			result.Layout = layout
			result.Failures = layoutFailures(layout, n)
			result.CacheInfo.LayoutHit = true
			result.Stats.Cards = sheet.CardCount(layout.Pages)
			result.Stats.Pages = len(layout.Pages)
			logger.Info("loaded layout from cache", "pages", len(layout.Pages))
		}
	}

	if result.Layout == nil {
		// Stage 2: Pack
		packStart := time.Now()
		cards, rounds, err := r.PackDeck(ctx, deck, result.Images, opts, rng)
		result.Stats.PackTime = time.Since(packStart)
		result.Stats.RelaxRounds = rounds
		for _, c := range cards {
			result.Stats.Attempts += c.Attempts
		}
		if err != nil {
			return nil, fmt.Errorf("pack: %w", err)
		}
		result.Cards = cards
		for _, c := range pack.Failed(cards) {
			result.Failures = append(result.Failures, c.Failure)
		}

		logger.Info("packed cards",
			"cards", len(cards),
			"failed", len(result.Failures),
			"attempts", result.Stats.Attempts,
			"relax_rounds", rounds,
			"duration", result.Stats.PackTime)

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Stage 3: Paginate
		paginateStart := time.Now()
		pages, err := sheet.Paginate(cards, opts.Geometry())
		observability.Pipeline().OnPaginate(ctx, len(pages), time.Since(paginateStart), err)
		if err != nil {
			return nil, fmt.Errorf("paginate: %w", err)
		}
		result.Stats.PaginateTime = time.Since(paginateStart)
		result.Stats.Cards = len(cards)
		result.Stats.Pages = len(pages)
		result.Layout = NewLayout(result.ID, n, seed, opts.Geometry(), result.Images, pages)

		logger.Info("paginated sheet",
			"pages", len(pages),
			"cards_per_page", opts.Geometry().CardsPerPage(),
			"duration", result.Stats.PaginateTime)

		if result.CacheInfo.Cacheable {
			r.storeLayout(ctx, layoutKey, result.Layout)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 4: Render
	renderStart := time.Now()
	var artifactBase string
	if result.CacheInfo.Cacheable {
		artifactBase = cache.Hash([]byte(layoutKey))
	}
	artifacts, report, renderHit, err := r.RenderWithCacheInfo(ctx, result.Layout, imagesrc.Index(result.Images), artifactBase, opts)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	result.Artifacts = artifacts
	result.Stats.RenderTime = time.Since(renderStart)
	result.CacheInfo.RenderHit = renderHit
	if report != nil {
		result.RotateFailures = report.RotateFailures
	}

	logger.Info("rendered outputs",
		"formats", opts.Formats,
		"cached", renderHit,
		"duration", result.Stats.RenderTime)

	return result, nil
}

// ResolveOrder returns the plane order for a pool of poolSize images. With
// AutoOrder set it picks the largest plane the pool fills; otherwise the
// requested order must be supported and filled. The order is never adjusted
// silently.
func ResolveOrder(poolSize int, opts Options) (int, error) {
	if opts.AutoOrder {
		fit := design.ForPool(poolSize)
		if fit.Active == nil {
			return 0, errors.New(errors.ErrCodeNotEnoughImages,
				"need at least %d images for the smallest deck, have %d", fit.Missing()+poolSize, poolSize)
		}
		return fit.Active.Order, nil
	}
	if err := errors.ValidateOrder(opts.Order); err != nil {
		return 0, err
	}
	if need := design.SymbolCount(opts.Order); poolSize < need {
		return 0, errors.New(errors.ErrCodeNotEnoughImages,
			"order %d needs %d images, have %d", opts.Order, need, poolSize)
	}
	return opts.Order, nil
}

// Design builds the deck for order n, shuffled unless opts.NoShuffle is set.
func (r *Runner) Design(ctx context.Context, n int, rng *rand.Rand, opts Options) (design.Deck, error) {
	start := time.Now()
	deck, err := design.Generate(n)
	if err == nil && !opts.NoShuffle {
		deck = design.Shuffle(deck, rng)
	}
	observability.Pipeline().OnDesign(ctx, n, len(deck.Cards), time.Since(start), err)
	return deck, err
}

// PackDeck packs every card of deck and applies the failure policy. It
// returns the packed cards, the number of relax rounds used, and a
// PACKING_FAILURE error when cards remain unpacked under the abort or relax
// policy. symbols[s] supplies the aspect ratio of design symbol s.
func (r *Runner) PackDeck(ctx context.Context, deck design.Deck, symbols []*imagesrc.Image, opts Options, rng *rand.Rand) ([]pack.Packed, int, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, 0, err
	}
	r.applyLogger(&opts)
	if len(symbols) < deck.Symbols() {
		return nil, 0, errors.New(errors.ErrCodeNotEnoughImages,
			"deck has %d symbols, got %d images", deck.Symbols(), len(symbols))
	}

	hooks := observability.Pipeline()
	hooks.OnPackStart(ctx, len(deck.Cards))
	start := time.Now()

	packOpts := opts.PackOptions(deck.Order, 0)
	cards := make([]pack.Packed, len(deck.Cards))
	for i, card := range deck.Cards {
		cards[i] = packCard(ctx, i, card, symbols, packOpts, rng)
	}

	rounds := 0
	if opts.OnFailure == OnFailureRelax {
		for round := 1; round <= RelaxRounds && len(pack.Failed(cards)) > 0; round++ {
			rounds = round
			packOpts = opts.PackOptions(deck.Order, round)
			for _, failed := range pack.Failed(cards) {
				retry := packCard(ctx, failed.Index, deck.Cards[failed.Index], symbols, packOpts, rng)
				retry.Attempts += failed.Attempts
				cards[failed.Index] = retry
			}
			opts.Logger.Debug("relaxed packing",
				"round", round,
				"margin", packOpts.Margin,
				"still_failed", len(pack.Failed(cards)))
		}
	}

	failed := pack.Failed(cards)
	var err error
	if len(failed) > 0 && opts.OnFailure != OnFailureSkip {
		indexes := make([]int, len(failed))
		for i, c := range failed {
			indexes[i] = c.Index
		}
		err = errors.Wrap(errors.ErrCodePackingFailure, failed[0].Failure,
			"%d of %d cards could not be packed (cards %v)", len(failed), len(cards), indexes)
	}
	hooks.OnPackComplete(ctx, len(cards)-len(failed), len(failed), time.Since(start), err)
	if err != nil {
		return cards, rounds, err
	}
	return cards, rounds, nil
}

func packCard(ctx context.Context, index int, card design.Card, symbols []*imagesrc.Image, opts pack.Options, rng *rand.Rand) pack.Packed {
	items := make([]pack.Item, len(card))
	for j, s := range card {
		items[j] = pack.Item{ID: symbols[s].ID, AspectRatio: symbols[s].AspectRatio}
	}

	out := pack.Packed{Index: index, Symbols: slices.Clone([]int(card))}
	res, err := pack.Pack(items, opts, rng)
	if err != nil {
		var fe *pack.FailureError
		if !errors.As(err, &fe) {
			fe = &pack.FailureError{Symbols: len(items)}
		}
		fe.Card = index
		out.Failure = fe
		out.Attempts = fe.Attempts
		observability.Pipeline().OnCardPacked(ctx, index, fe.Attempts, fe)
		return out
	}
	out.Placements = res.Placements
	out.Attempts = res.Attempts
	observability.Pipeline().OnCardPacked(ctx, index, res.Attempts, nil)
	return out
}

// NewLayout assembles the JSON-serializable sheet for a generation.
func NewLayout(id string, n int, seed uint64, g sheet.Geometry, symbols []*imagesrc.Image, pages []sheet.Page) *sheet.Layout {
	names := make(map[string]string, len(symbols))
	for _, img := range symbols {
		names[img.ID] = img.Name
	}
	return &sheet.Layout{
		Version:  sheet.LayoutVersion,
		ID:       id,
		Order:    n,
		Seed:     seed,
		Geometry: g,
		Images:   names,
		Pages:    pages,
	}
}

// layoutKey keys a layout by the digests of the unshuffled pool, in order.
func (r *Runner) layoutKey(pool []*imagesrc.Image, n int, seed uint64, opts Options) string {
	digests := make([]string, len(pool))
	for i, img := range pool {
		digests[i] = img.Digest
	}
	return r.Keyer.LayoutKey(cache.PoolHash(digests), opts.LayoutKeyOpts(n, seed))
}

// cachedLayout loads a layout and rebinds its symbols to the IDs of the
// current images. Image IDs are per process; the symbol index is stable.
func (r *Runner) cachedLayout(ctx context.Context, key string, symbols []*imagesrc.Image) (*sheet.Layout, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil {
		r.Logger.Warn("layout cache read failed", "key", cache.Describe(key), "error", err)
	}
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, "layout")
		return nil, false
	}

	layout, err := sheet.ReadJSON(bytes.NewReader(data))
	if err != nil {
		observability.Cache().OnCacheMiss(ctx, "layout")
		return nil, false
	}
	for pi := range layout.Pages {
		for ci := range layout.Pages[pi].Cards {
			card := &layout.Pages[pi].Cards[ci]
			for si := range card.Symbols {
				sym := &card.Symbols[si]
				if sym.Symbol < 0 || sym.Symbol >= len(symbols) {
					observability.Cache().OnCacheMiss(ctx, "layout")
					return nil, false
				}
				sym.Image = symbols[sym.Symbol].ID
			}
		}
	}
	layout.Images = make(map[string]string, len(symbols))
	for _, img := range symbols {
		layout.Images[img.ID] = img.Name
	}
	observability.Cache().OnCacheHit(ctx, "layout")
	return layout, true
}

func (r *Runner) storeLayout(ctx context.Context, key string, layout *sheet.Layout) {
	var buf bytes.Buffer
	if err := sheet.WriteJSON(layout, &buf); err != nil {
		return
	}
	if err := r.Cache.Set(ctx, key, buf.Bytes(), cache.LayoutTTL); err != nil {
		r.Logger.Warn("layout cache write failed", "key", cache.Describe(key), "error", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, "layout", buf.Len())
}

// layoutFailures reconstructs the failed cards of a cached layout.
func layoutFailures(l *sheet.Layout, n int) []*pack.FailureError {
	var out []*pack.FailureError
	for _, p := range l.Pages {
		for _, c := range p.Cards {
			if c.Failed {
				out = append(out, &pack.FailureError{Card: c.Index, Symbols: n + 1})
			}
		}
	}
	return out
}

func randomSeed() uint64 {
	for {
		if s := rand.Uint64(); s != 0 {
			return s
		}
	}
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
