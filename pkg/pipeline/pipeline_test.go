package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/matzehuels/spotmatch/pkg/cache"
	"github.com/matzehuels/spotmatch/pkg/design"
	"github.com/matzehuels/spotmatch/pkg/errors"
	"github.com/matzehuels/spotmatch/pkg/imagesrc"
	"github.com/matzehuels/spotmatch/pkg/observability"
	"github.com/matzehuels/spotmatch/pkg/sheet"
)

// testImages returns count solid-colour images with alternating aspect
// ratios, named img-00.png, img-01.png, ...
func testImages(count int) []*imagesrc.Image {
	out := make([]*imagesrc.Image, count)
	for i := range out {
		w, h := 8, 8
		if i%2 == 1 {
			w, h = 8, 12
		}
		bm := image.NewNRGBA(image.Rect(0, 0, w, h))
		for p := 0; p < len(bm.Pix); p += 4 {
			bm.Pix[p], bm.Pix[p+1], bm.Pix[p+2], bm.Pix[p+3] = uint8(i*30), 100, 200, 255
		}
		name := fmt.Sprintf("img-%02d.png", i)
		out[i] = &imagesrc.Image{
			ID:          uuid.NewString(),
			Name:        name,
			Digest:      cache.Hash([]byte(name)),
			Width:       w,
			Height:      h,
			AspectRatio: float64(h) / float64(w),
			Bitmap:      bm,
		}
	}
	return out
}

func margin(v float64) *float64 { return &v }

func newTestRunner(c cache.Cache) *Runner {
	return NewRunner(c, nil, nil)
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"svg", false},
		{"png", false},
		{"pdf", false},
		{"json", false},
		{"invalid", true},
		{"SVG", true}, // case-sensitive
		{"", true},
	}

	for _, tt := range tests {
		err := ValidateFormat(tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateFormat(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
		}
	}
}

func TestValidateFormats(t *testing.T) {
	if err := ValidateFormats([]string{"svg", "png"}); err != nil {
		t.Errorf("Valid formats should pass: %v", err)
	}

	if err := ValidateFormats([]string{"svg", "invalid"}); err == nil {
		t.Error("Invalid format should fail")
	}

	// Empty slice is valid
	if err := ValidateFormats(nil); err != nil {
		t.Errorf("Empty formats should pass: %v", err)
	}
}

func TestParseFormats(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"pdf", []string{"pdf"}},
		{"PDF, svg ,png", []string{"pdf", "svg", "png"}},
		{"pdf,pdf,,json", []string{"pdf", "json"}},
		{"", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, ParseFormats(tt.in)); diff != "" {
			t.Errorf("ParseFormats(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestValidateFailurePolicy(t *testing.T) {
	for _, p := range []string{"abort", "relax", "skip"} {
		if err := ValidateFailurePolicy(p); err != nil {
			t.Errorf("ValidateFailurePolicy(%q) = %v", p, err)
		}
	}
	if err := ValidateFailurePolicy("retry"); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("unknown policy error = %v", err)
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{Order: 7}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("Valid options should pass: %v", err)
	}

	if opts.PageWidth != DefaultPageWidth || opts.PageHeight != DefaultPageHeight {
		t.Errorf("page = %vx%v", opts.PageWidth, opts.PageHeight)
	}
	if opts.CardRadius != DefaultCardRadius {
		t.Errorf("CardRadius = %v", opts.CardRadius)
	}
	if opts.Margin() != DefaultSymbolMargin {
		t.Errorf("Margin() = %v", opts.Margin())
	}
	if opts.Rotate() != DefaultRotateSymbols {
		t.Errorf("Rotate() = %v", opts.Rotate())
	}
	if opts.OuterAttempts != DefaultOuterAttempts || opts.InnerAttempts != DefaultInnerAttempts {
		t.Errorf("attempts = %d/%d", opts.OuterAttempts, opts.InnerAttempts)
	}
	if opts.OnFailure != OnFailureAbort {
		t.Errorf("OnFailure = %q", opts.OnFailure)
	}
	if diff := cmp.Diff([]string{FormatPDF}, opts.Formats); diff != "" {
		t.Errorf("Formats mismatch (-want +got):\n%s", diff)
	}
	if opts.Provider == nil {
		t.Error("Provider should default to the imaging provider")
	}
}

func TestOptionsZeroMarginIsKept(t *testing.T) {
	opts := Options{SymbolMargin: margin(0)}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}
	if opts.Margin() != 0 {
		t.Errorf("Margin() = %v, want explicit 0", opts.Margin())
	}
}

func TestOptionsValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		code errors.Code
	}{
		{"card larger than page", Options{CardRadius: 200}, errors.ErrCodeInvalidGeometry},
		{"negative page", Options{PageWidth: -1}, errors.ErrCodeInvalidGeometry},
		{"margin too large", Options{SymbolMargin: margin(1)}, errors.ErrCodeInvalidConfig},
		{"margin not a number", Options{SymbolMargin: margin(math.NaN())}, errors.ErrCodeInvalidConfig},
		{"bad policy", Options{OnFailure: "retry"}, errors.ErrCodeInvalidConfig},
		{"bad format", Options{Formats: []string{"gif"}}, errors.ErrCodeInvalidFormat},
		{"negative dpi", Options{DPI: -10}, errors.ErrCodeInvalidConfig},
		{"dpi not a number", Options{DPI: math.NaN()}, errors.ErrCodeInvalidConfig},
		{"negative attempts", Options{OuterAttempts: -1}, errors.ErrCodeInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.ValidateAndSetDefaults()
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestOptionsValidateAndSetDefaultsIdempotent(t *testing.T) {
	opts := Options{Order: 5}

	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("First validation failed: %v", err)
	}
	before := opts.LayoutKeyOpts(5, 1)

	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("Second validation failed: %v", err)
	}
	if diff := cmp.Diff(before, opts.LayoutKeyOpts(5, 1)); diff != "" {
		t.Errorf("options changed on second call (-before +after):\n%s", diff)
	}
}

func TestPackOptionsRelax(t *testing.T) {
	opts := Options{}
	opts.SetDefaults()

	base := opts.PackOptions(7, 0)
	relaxed := opts.PackOptions(7, 2)

	if want := DefaultSymbolMargin - 2*RelaxMarginDelta; relaxed.Margin != want {
		t.Errorf("relaxed margin = %v, want %v", relaxed.Margin, want)
	}
	_, hi0 := base.SizeRange(50)
	_, hi2 := relaxed.SizeRange(50)
	if want := hi0 * (1 - 2*RelaxSizeFactor); hi2 < want-1e-12 || hi2 > want+1e-12 {
		t.Errorf("relaxed hi = %v, want %v", hi2, want)
	}
}

func TestArtifactKeyOpts(t *testing.T) {
	opts := Options{}
	opts.SetDefaults()
	if k := opts.ArtifactKeyOpts(FormatPDF); k.DPI != 0 {
		t.Errorf("pdf key should not depend on dpi: %+v", k)
	}
	if k := opts.ArtifactKeyOpts(FormatPNG); k.DPI != DefaultDPI {
		t.Errorf("png key dpi = %v", k.DPI)
	}
}

func TestResolveOrder(t *testing.T) {
	tests := []struct {
		name string
		pool int
		opts Options
		want int
		code errors.Code
	}{
		{"explicit", 57, Options{Order: 7}, 7, ""},
		{"explicit with extra images", 60, Options{Order: 5}, 5, ""},
		{"unsupported order", 100, Options{Order: 4}, 0, errors.ErrCodeInvalidOrder},
		{"zero order", 100, Options{}, 0, errors.ErrCodeInvalidOrder},
		{"pool too small", 56, Options{Order: 7}, 0, errors.ErrCodeNotEnoughImages},
		{"auto", 60, Options{AutoOrder: true}, 7, ""},
		{"auto exact", 13, Options{AutoOrder: true}, 3, ""},
		{"auto too small", 6, Options{AutoOrder: true}, 0, errors.ErrCodeNotEnoughImages},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveOrder(tt.pool, tt.opts)
			if tt.code != "" {
				if !errors.Is(err, tt.code) {
					t.Errorf("error = %v, want code %s", err, tt.code)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ResolveOrder() = %d, %v; want %d", got, err, tt.want)
			}
		})
	}
}

func TestExecute(t *testing.T) {
	runner := newTestRunner(nil)
	images := testImages(9)

	result, err := runner.Execute(context.Background(), images, Options{
		Order:   2,
		Seed:    42,
		Formats: []string{FormatJSON, FormatSVG},
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if result.Order != 2 || result.Seed != 42 {
		t.Errorf("order/seed = %d/%d", result.Order, result.Seed)
	}
	if result.ID == "" || result.Layout.ID != result.ID {
		t.Errorf("generation id = %q, layout id = %q", result.ID, result.Layout.ID)
	}
	if err := design.Validate(result.Deck); err != nil {
		t.Errorf("deck invalid: %v", err)
	}
	if len(result.Images) != 7 || len(result.Unused) != 2 {
		t.Errorf("images = %d used, %d unused", len(result.Images), len(result.Unused))
	}
	if len(result.Cards) != 7 || len(result.Failures) != 0 {
		t.Errorf("cards = %d, failures = %d", len(result.Cards), len(result.Failures))
	}
	// 2 columns × 3 rows on A4
	if result.Stats.Pages != 2 || result.Stats.Cards != 7 {
		t.Errorf("stats = %+v", result.Stats)
	}
	if result.CacheInfo.LayoutHit || result.CacheInfo.RenderHit {
		t.Error("fresh generation should not hit the cache")
	}
	for _, f := range []string{FormatJSON, FormatSVG} {
		if len(result.Artifacts[f]) == 0 {
			t.Errorf("missing %s artifact", f)
		}
	}

	// Every pair of drawn cards shares exactly one image.
	var cards [][]string
	for _, p := range result.Layout.Pages {
		for _, c := range p.Cards {
			var ids []string
			for _, s := range c.Symbols {
				ids = append(ids, s.Image)
			}
			cards = append(cards, ids)
		}
	}
	for i := range cards {
		for j := i + 1; j < len(cards); j++ {
			shared := 0
			for _, a := range cards[i] {
				for _, b := range cards[j] {
					if a == b {
						shared++
					}
				}
			}
			if shared != 1 {
				t.Errorf("cards %d and %d share %d images", i, j, shared)
			}
		}
	}
}

func TestExecuteDeterministic(t *testing.T) {
	images := testImages(13)
	opts := Options{Order: 3, Seed: 7, Formats: []string{FormatJSON}}

	a, err := newTestRunner(nil).Execute(context.Background(), images, opts)
	if err != nil {
		t.Fatal(err)
	}
	b, err := newTestRunner(nil).Execute(context.Background(), images, opts)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a.Layout.Pages, b.Layout.Pages); diff != "" {
		t.Errorf("same seed produced different layouts (-a +b):\n%s", diff)
	}
	if diff := cmp.Diff(a.Deck, b.Deck); diff != "" {
		t.Errorf("same seed produced different decks (-a +b):\n%s", diff)
	}
}

func TestExecuteNoShuffle(t *testing.T) {
	images := testImages(7)
	result, err := newTestRunner(nil).Execute(context.Background(), images, Options{
		Order: 2, Seed: 1, NoShuffle: true, Formats: []string{FormatJSON},
	})
	if err != nil {
		t.Fatal(err)
	}
	want, _ := design.Generate(2)
	if diff := cmp.Diff(want, result.Deck); diff != "" {
		t.Errorf("unshuffled deck mismatch (-want +got):\n%s", diff)
	}
	for s, img := range result.Images {
		if img != images[s] {
			t.Errorf("symbol %d bound to %s, want %s", s, img.Name, images[s].Name)
		}
	}
}

func TestExecuteRandomSeed(t *testing.T) {
	result, err := newTestRunner(nil).Execute(context.Background(), testImages(7), Options{
		Order: 2, Formats: []string{FormatJSON},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Seed == 0 {
		t.Error("random seed should be drawn")
	}
	if result.CacheInfo.Cacheable {
		t.Error("random-seed generations are not cacheable")
	}
}

func TestExecuteErrors(t *testing.T) {
	tests := []struct {
		name   string
		images int
		opts   Options
		code   errors.Code
	}{
		{"not enough images", 6, Options{Order: 2}, errors.ErrCodeNotEnoughImages},
		{"invalid order", 100, Options{Order: 6}, errors.ErrCodeInvalidOrder},
		{"invalid geometry", 7, Options{Order: 2, CardRadius: 500}, errors.ErrCodeInvalidGeometry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestRunner(nil).Execute(context.Background(), testImages(tt.images), tt.opts)
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestExecuteCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestRunner(nil).Execute(ctx, testImages(7), Options{Order: 2}); err != context.Canceled {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

type rejectRecorder struct {
	observability.NoopPipelineHooks
	mu       sync.Mutex
	rejected []string
	packed   int
	failed   int
}

func (r *rejectRecorder) OnRejected(_ context.Context, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, reason)
}

func (r *rejectRecorder) OnPackComplete(_ context.Context, packed, failed int, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packed, r.failed = packed, failed
}

func TestExecuteRejectsConcurrent(t *testing.T) {
	rec := &rejectRecorder{}
	observability.SetPipelineHooks(rec)
	defer observability.Reset()

	runner := newTestRunner(nil)
	runner.running.Store(true)

	_, err := runner.Execute(context.Background(), testImages(7), Options{Order: 2})
	if !errors.Is(err, errors.ErrCodeConcurrentRequest) {
		t.Fatalf("error = %v, want CONCURRENT_REQUEST", err)
	}
	if len(rec.rejected) != 1 {
		t.Errorf("OnRejected calls = %d", len(rec.rejected))
	}

	// Admission reopens once the running generation has finished.
	runner.running.Store(false)
	if _, err := runner.Execute(context.Background(), testImages(7), Options{Order: 2, Formats: []string{FormatJSON}}); err != nil {
		t.Fatalf("Execute() after release: %v", err)
	}
	if runner.Busy() {
		t.Error("runner should be idle after Execute returns")
	}
	if rec.packed != 7 || rec.failed != 0 {
		t.Errorf("OnPackComplete = %d packed, %d failed", rec.packed, rec.failed)
	}
}

func TestExecuteFailurePolicies(t *testing.T) {
	// A margin this large makes every pair of symbols collide.
	base := Options{
		Order:         2,
		Seed:          3,
		SymbolMargin:  margin(0.9),
		OuterAttempts: 3,
		InnerAttempts: 5,
		Formats:       []string{FormatJSON},
	}

	t.Run("abort", func(t *testing.T) {
		opts := base
		opts.OnFailure = OnFailureAbort
		_, err := newTestRunner(nil).Execute(context.Background(), testImages(7), opts)
		if !errors.Is(err, errors.ErrCodePackingFailure) {
			t.Errorf("error = %v, want PACKING_FAILURE", err)
		}
	})

	t.Run("relax", func(t *testing.T) {
		opts := base
		opts.OnFailure = OnFailureRelax
		_, err := newTestRunner(nil).Execute(context.Background(), testImages(7), opts)
		if !errors.Is(err, errors.ErrCodePackingFailure) {
			t.Errorf("error = %v, want PACKING_FAILURE", err)
		}
	})

	t.Run("skip", func(t *testing.T) {
		opts := base
		opts.OnFailure = OnFailureSkip
		result, err := newTestRunner(nil).Execute(context.Background(), testImages(7), opts)
		if err != nil {
			t.Fatalf("Execute() error: %v", err)
		}
		if len(result.Failures) != 7 {
			t.Errorf("failures = %d, want 7", len(result.Failures))
		}
		if got := sheet.CardCount(result.Layout.Pages); got != 7 {
			t.Errorf("layout holds %d cards, want every slot kept", got)
		}
		for _, p := range result.Layout.Pages {
			for _, c := range p.Cards {
				if !c.Failed || len(c.Symbols) != 0 {
					t.Errorf("card %d: failed=%v symbols=%d", c.Index, c.Failed, len(c.Symbols))
				}
			}
		}
	})
}

func TestExecuteRelaxRecovers(t *testing.T) {
	// A wide margin still packs once the relax rounds tighten it.
	result, err := newTestRunner(nil).Execute(context.Background(), testImages(7), Options{
		Order:        2,
		Seed:         11,
		SymbolMargin: margin(0.12),
		OnFailure:    OnFailureRelax,
		Formats:      []string{FormatJSON},
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(result.Failures) != 0 {
		t.Errorf("failures = %d", len(result.Failures))
	}
	if result.Stats.RelaxRounds > RelaxRounds {
		t.Errorf("relax rounds = %d", result.Stats.RelaxRounds)
	}
}

func TestExecuteCache(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	runner := newTestRunner(fc)
	opts := Options{Order: 2, Seed: 99, Formats: []string{FormatJSON, FormatSVG}}

	first, err := runner.Execute(context.Background(), testImages(7), opts)
	if err != nil {
		t.Fatal(err)
	}
	if first.CacheInfo.LayoutHit {
		t.Error("first run should miss")
	}

	// Fresh IDs, same files: the layout is found by digest and rebound.
	images := testImages(7)
	second, err := runner.Execute(context.Background(), images, opts)
	if err != nil {
		t.Fatal(err)
	}
	if !second.CacheInfo.LayoutHit || !second.CacheInfo.RenderHit {
		t.Errorf("cache info = %+v, want hits", second.CacheInfo)
	}
	if !bytes.Equal(first.Artifacts[FormatSVG], second.Artifacts[FormatSVG]) {
		t.Error("cached svg differs")
	}
	ids := imagesrc.Index(images)
	for _, p := range second.Layout.Pages {
		for _, c := range p.Cards {
			for _, s := range c.Symbols {
				if _, ok := ids[s.Image]; !ok {
					t.Fatalf("symbol %d not rebound to current image ids", s.Symbol)
				}
			}
		}
	}

	opts.Refresh = true
	third, err := runner.Execute(context.Background(), testImages(7), opts)
	if err != nil {
		t.Fatal(err)
	}
	if third.CacheInfo.LayoutHit || third.CacheInfo.RenderHit {
		t.Error("refresh should bypass the cache")
	}
}

func TestRenderFormats(t *testing.T) {
	result, err := newTestRunner(nil).Execute(context.Background(), testImages(7), Options{
		Order:   2,
		Seed:    5,
		Formats: []string{FormatPDF, FormatSVG, FormatPNG, FormatJSON},
		DPI:     25.4,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(result.Artifacts[FormatPDF], []byte("%PDF-")) {
		t.Error("pdf artifact should start with %PDF-")
	}
	if !strings.Contains(string(result.Artifacts[FormatSVG]), "<svg") {
		t.Error("svg artifact should contain <svg")
	}
	if !bytes.HasPrefix(result.Artifacts[FormatPNG], []byte("\x89PNG")) {
		t.Error("png artifact should carry the PNG signature")
	}
	if _, err := sheet.ReadJSON(bytes.NewReader(result.Artifacts[FormatJSON])); err != nil {
		t.Errorf("json artifact does not parse: %v", err)
	}
}

func TestRenderFromLayout(t *testing.T) {
	result, err := newTestRunner(nil).Execute(context.Background(), testImages(7), Options{
		Order: 2, Seed: 8, Formats: []string{FormatJSON},
	})
	if err != nil {
		t.Fatal(err)
	}
	layout, err := sheet.ReadJSON(bytes.NewReader(result.Artifacts[FormatJSON]))
	if err != nil {
		t.Fatal(err)
	}

	artifacts, report, err := RenderFromLayout(context.Background(), layout, testImages(7), Options{Formats: []string{FormatSVG}})
	if err != nil {
		t.Fatalf("RenderFromLayout() error: %v", err)
	}
	if len(artifacts[FormatSVG]) == 0 {
		t.Error("missing svg artifact")
	}
	if report.Cards != 7 || report.Symbols != 21 {
		t.Errorf("report = %+v", report)
	}

	_, _, err = RenderFromLayout(context.Background(), layout, testImages(6), Options{Formats: []string{FormatSVG}})
	if !errors.Is(err, errors.ErrCodeNotFound) || !strings.Contains(err.Error(), "img-06.png") {
		t.Errorf("missing image error = %v", err)
	}
}

func TestBindImages(t *testing.T) {
	images := testImages(2)
	layout := &sheet.Layout{Images: map[string]string{"a": "img-01.png", "b": "img-00.png"}}
	bound, err := BindImages(layout, images)
	if err != nil {
		t.Fatal(err)
	}
	if bound["a"] != images[1] || bound["b"] != images[0] {
		t.Errorf("BindImages() bound wrong images")
	}
}

func TestNewRNGDeterministic(t *testing.T) {
	a, b := NewRNG(5), NewRNG(5)
	for range 10 {
		if a.Uint64() != b.Uint64() {
			t.Fatal("NewRNG should be deterministic")
		}
	}
	if NewRNG(5).Uint64() == NewRNG(6).Uint64() {
		t.Error("different seeds should differ")
	}
}
