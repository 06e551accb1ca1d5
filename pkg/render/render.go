package render

import (
	"fmt"
	"image"

	"github.com/matzehuels/spotmatch/pkg/errors"
	"github.com/matzehuels/spotmatch/pkg/imagesrc"
	"github.com/matzehuels/spotmatch/pkg/sheet"
)

// Renderer assembles draw commands into a document. Coordinates and sizes
// are in page units.
type Renderer interface {
	// NewPage starts a page. Every DrawCard and DrawImage call belongs to
	// the page most recently started.
	NewPage(width, height float64) error

	// DrawCard draws a card outline centered at (cx, cy).
	DrawCard(cx, cy, radius float64) error

	// DrawImage draws img into the box at (x, y). rotation is informational:
	// img is already rotated and the box already fits the rotated bitmap.
	DrawImage(img image.Image, x, y, width, height, rotation float64) error
}

// Options configures [Draw].
type Options struct {
	// Provider rotates bitmaps. Required when Rotate is set.
	Provider imagesrc.Provider

	// Rotate applies symbol rotation. When false symbols are drawn upright
	// regardless of their recorded rotation.
	Rotate bool
}

// SymbolError records a per-symbol collaborator failure that did not stop
// rendering.
type SymbolError struct {
	Page  int
	Card  int
	Image string
	Err   error
}

func (e SymbolError) Error() string {
	return fmt.Sprintf("page %d card %d image %s: %v", e.Page, e.Card, e.Image, e.Err)
}

// Report summarizes a [Draw] call.
type Report struct {
	Pages          int
	Cards          int
	Symbols        int
	SkippedCards   int
	RotateFailures []SymbolError
}

// Draw issues the draw commands for pages to r in page, card, symbol order.
// images resolves symbol image IDs. Renderer errors stop drawing and are
// returned as-is.
func Draw(pages []sheet.Page, images map[string]*imagesrc.Image, r Renderer, opts Options) (*Report, error) {
	if opts.Rotate && opts.Provider == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "rotation requires an image provider")
	}

	rep := &Report{}
	for _, page := range pages {
		if err := r.NewPage(page.Width, page.Height); err != nil {
			return rep, fmt.Errorf("page %d: %w", page.Number, err)
		}
		rep.Pages++

		for _, card := range page.Cards {
			if card.Failed {
				rep.SkippedCards++
				continue
			}
			if err := r.DrawCard(card.CX, card.CY, card.Radius); err != nil {
				return rep, fmt.Errorf("page %d card %d: %w", page.Number, card.Index, err)
			}
			rep.Cards++

			for _, sym := range card.Symbols {
				img, ok := images[sym.Image]
				if !ok || img.Bitmap == nil {
					return rep, errors.New(errors.ErrCodeNotFound,
						"page %d card %d: image %q not loaded", page.Number, card.Index, sym.Image)
				}
				if err := drawSymbol(r, img, sym, opts, func(err error) {
					rep.RotateFailures = append(rep.RotateFailures, SymbolError{
						Page: page.Number, Card: card.Index, Image: sym.Image, Err: err,
					})
				}); err != nil {
					return rep, fmt.Errorf("page %d card %d: %w", page.Number, card.Index, err)
				}
				rep.Symbols++
			}
		}
	}
	return rep, nil
}

func drawSymbol(r Renderer, img *imagesrc.Image, sym sheet.Symbol, opts Options, onRotateErr func(error)) error {
	if !opts.Rotate || sym.Rotation == 0 {
		return r.DrawImage(img.Bitmap, sym.X, sym.Y, sym.Width, sym.Height, 0)
	}

	rotated, err := opts.Provider.Rotate(img, sym.Rotation)
	if err != nil {
		onRotateErr(err)
		return r.DrawImage(img.Bitmap, sym.X, sym.Y, sym.Width, sym.Height, 0)
	}

	x, y, w, h := RotatedBox(sym, img.Bitmap.Bounds(), rotated.Bounds())
	return r.DrawImage(rotated, x, y, w, h, sym.Rotation)
}

// RotatedBox returns the box for a rotated bitmap: centered on the symbol box
// and scaled by the same factor that maps the original bitmap onto it.
func RotatedBox(sym sheet.Symbol, orig, rotated image.Rectangle) (x, y, w, h float64) {
	if orig.Dx() == 0 || orig.Dy() == 0 {
		return sym.X, sym.Y, sym.Width, sym.Height
	}
	sx := sym.Width / float64(orig.Dx())
	sy := sym.Height / float64(orig.Dy())
	w = float64(rotated.Dx()) * sx
	h = float64(rotated.Dy()) * sy
	cx := sym.X + sym.Width/2
	cy := sym.Y + sym.Height/2
	return cx - w/2, cy - h/2, w, h
}
