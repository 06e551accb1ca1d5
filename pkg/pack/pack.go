package pack

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/matzehuels/spotmatch/pkg/errors"
)

// Default retry budgets.
const (
	// DefaultOuterAttempts is the number of attempts at packing a whole card.
	DefaultOuterAttempts = 500

	// DefaultInnerAttempts is the number of candidates drawn per symbol
	// before the current card attempt is abandoned.
	DefaultInnerAttempts = 100
)

// Item is one symbol to place on a card.
type Item struct {
	// ID identifies the image; it is copied into the placement untouched.
	ID string

	// AspectRatio is height divided by width of the image.
	AspectRatio float64
}

// Placement positions one image on a card. Coordinates are card-local: the
// card is the unit circle centered at the origin and (X, Y) is the corner of
// the bounding box with the smallest coordinates.
type Placement struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation,omitempty"`
}

// Right returns the largest x of the bounding box.
func (p Placement) Right() float64 { return p.X + p.Width }

// Bottom returns the largest y of the bounding box.
func (p Placement) Bottom() float64 { return p.Y + p.Height }

// Contained reports whether all four corners of the bounding box lie inside
// the unit circle. Rotation is ignored.
func (p Placement) Contained() bool {
	for _, c := range [4][2]float64{
		{p.X, p.Y},
		{p.Right(), p.Y},
		{p.X, p.Bottom()},
		{p.Right(), p.Bottom()},
	} {
		if c[0]*c[0]+c[1]*c[1] > 1 {
			return false
		}
	}
	return true
}

// Overlaps reports whether the bounding boxes of p and q, each grown by
// margin on every side, overlap on both axes. Touching edges do not count.
// A negative margin shrinks both boxes and so tolerates some overlap.
func Overlaps(p, q Placement, margin float64) bool {
	return p.X-margin < q.Right()+margin &&
		p.Right()+margin > q.X-margin &&
		p.Y-margin < q.Bottom()+margin &&
		p.Bottom()+margin > q.Y-margin
}

// SizeRange returns the bounds for the longer side of the next candidate,
// given how many inner attempts remain for the current symbol.
type SizeRange func(remaining int) (lo, hi float64)

// DefaultSizeRange returns the size policy for order n. The upper bound is
// 0.6 for small orders and shrinks with 1/sqrt(n+1) for denser cards; the
// lower bound starts at 2/3 of the upper bound and relaxes to 1/2 of it as
// the inner attempts run out.
func DefaultSizeRange(n, innerAttempts int) SizeRange {
	hi := min(0.6, 1.6/math.Sqrt(float64(n+1)))
	scale := hi / 0.6
	budget := max(innerAttempts, 1)
	return func(remaining int) (float64, float64) {
		lo := max(0.4*float64(remaining)/float64(budget), 0.3) * scale
		return lo, hi
	}
}

// Scale returns a size range whose bounds are those of r multiplied by f.
func Scale(r SizeRange, f float64) SizeRange {
	return func(remaining int) (float64, float64) {
		lo, hi := r(remaining)
		return lo * f, hi * f
	}
}

// Options configures [Pack].
type Options struct {
	// Margin grows every bounding box on each side for the overlap test, in
	// card-local units (fractions of the card radius). May be negative.
	Margin float64

	// Rotate enables a uniform random rotation in [0, 360) per placement.
	Rotate bool

	// OuterAttempts bounds the attempts at the whole card. Default: 500.
	OuterAttempts int

	// InnerAttempts bounds the candidates per symbol. Default: 100.
	InnerAttempts int

	// SizeRange is the size policy. Default: [DefaultSizeRange] for the
	// number of items being packed.
	SizeRange SizeRange
}

func (o Options) withDefaults(items int) Options {
	if o.OuterAttempts <= 0 {
		o.OuterAttempts = DefaultOuterAttempts
	}
	if o.InnerAttempts <= 0 {
		o.InnerAttempts = DefaultInnerAttempts
	}
	if o.SizeRange == nil {
		o.SizeRange = DefaultSizeRange(items-1, o.InnerAttempts)
	}
	return o
}

// FailureError reports that a card could not be packed within its budget.
type FailureError struct {
	Card     int // deck index of the card, -1 when packed standalone
	Symbols  int // number of symbols on the card
	Attempts int // outer attempts spent
	BestRun  int // most symbols placed by any single attempt
}

func (e *FailureError) Error() string {
	if e.Card >= 0 {
		return fmt.Sprintf("card %d: could not place %d symbols after %d attempts (best attempt placed %d)",
			e.Card, e.Symbols, e.Attempts, e.BestRun)
	}
	return fmt.Sprintf("could not place %d symbols after %d attempts (best attempt placed %d)",
		e.Symbols, e.Attempts, e.BestRun)
}

// Code returns the error code for this error type.
func (e *FailureError) Code() errors.Code {
	return errors.ErrCodePackingFailure
}

// Result is the outcome of a successful [Pack].
type Result struct {
	Placements []Placement
	Attempts   int // outer attempts used, including the successful one
}

// Pack lays out items on the unit disc by randomized search. Every attempt
// places the items in order; an item that exhausts its inner budget discards
// the whole attempt. Pack returns either one placement per item or a
// *FailureError, never a partial layout.
//
// Pack is a pure function of its arguments; pass a seeded rng for
// reproducible layouts.
func Pack(items []Item, opts Options, rng *rand.Rand) (Result, error) {
	for i, it := range items {
		if !(it.AspectRatio > 0) || math.IsInf(it.AspectRatio, 0) {
			return Result{}, errors.New(errors.ErrCodeInvalidInput,
				"item %d (%s): invalid aspect ratio %v", i, it.ID, it.AspectRatio)
		}
	}
	if len(items) == 0 {
		return Result{Attempts: 0}, nil
	}

	opts = opts.withDefaults(len(items))
	best := 0
	for attempt := 1; attempt <= opts.OuterAttempts; attempt++ {
		placed := attemptCard(items, opts, rng)
		if len(placed) == len(items) {
			return Result{Placements: placed, Attempts: attempt}, nil
		}
		best = max(best, len(placed))
	}
	return Result{}, &FailureError{
		Card:     -1,
		Symbols:  len(items),
		Attempts: opts.OuterAttempts,
		BestRun:  best,
	}
}

// attemptCard tries to place every item once. It returns the placements
// made before the first item that could not be placed.
func attemptCard(items []Item, opts Options, rng *rand.Rand) []Placement {
	placed := make([]Placement, 0, len(items))
	for _, it := range items {
		p, ok := placeItem(it, placed, opts, rng)
		if !ok {
			return placed
		}
		placed = append(placed, p)
	}
	return placed
}

// placeItem draws up to InnerAttempts candidates for it and returns the first
// one that is contained in the disc and clear of everything already placed.
func placeItem(it Item, placed []Placement, opts Options, rng *rand.Rand) (Placement, bool) {
	for remaining := opts.InnerAttempts - 1; remaining >= 0; remaining-- {
		c := candidate(it, opts.SizeRange, remaining, rng)
		if !c.Contained() || collides(c, placed, opts.Margin) {
			continue
		}
		if opts.Rotate {
			c.Rotation = rng.Float64() * 360
		}
		return c, true
	}
	return Placement{}, false
}

func candidate(it Item, sizes SizeRange, remaining int, rng *rand.Rand) Placement {
	lo, hi := sizes(remaining)
	s := lo + rng.Float64()*(hi-lo)

	w, h := s, s*it.AspectRatio
	if it.AspectRatio > 1 {
		w, h = s/it.AspectRatio, s
	}

	return Placement{
		ID:     it.ID,
		X:      -1 + rng.Float64()*max(2-w, 0),
		Y:      -1 + rng.Float64()*max(2-h, 0),
		Width:  w,
		Height: h,
	}
}

func collides(c Placement, placed []Placement, margin float64) bool {
	for _, p := range placed {
		if Overlaps(c, p, margin) {
			return true
		}
	}
	return false
}
