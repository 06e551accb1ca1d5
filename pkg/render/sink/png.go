package sink

import (
	"bytes"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"github.com/matzehuels/spotmatch/pkg/errors"
)

// DefaultDPI is the default PNG resolution.
const DefaultDPI = 96.0

const mmPerInch = 25.4

// PNGOption configures the PNG sink.
type PNGOption func(*PNG)

// WithDPI sets the raster resolution in dots per inch.
func WithDPI(dpi float64) PNGOption {
	return func(p *PNG) { p.dpi = dpi }
}

// WithPNGLineWidth sets the card outline width in page units.
func WithPNGLineWidth(w float64) PNGOption {
	return func(p *PNG) { p.lineWidth = w }
}

type pngOp struct {
	page          pageBox
	card          bool
	img           image.Image
	x, y, w, h, r float64
}

// PNG rasterizes all sheets into one image, pages stacked top to bottom.
// Commands are recorded and drawn in Bytes, once the canvas size is known.
type PNG struct {
	dpi       float64
	lineWidth float64
	stack     stack
	ops       []pngOp
}

// NewPNG returns an empty PNG document.
func NewPNG(opts ...PNGOption) *PNG {
	p := &PNG{dpi: DefaultDPI, lineWidth: DefaultLineWidth}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewPage implements [render.Renderer].
func (p *PNG) NewPage(width, height float64) error {
	p.stack.add(width, height)
	return nil
}

// DrawCard implements [render.Renderer].
func (p *PNG) DrawCard(cx, cy, radius float64) error {
	page, ok := p.stack.current()
	if !ok {
		return errors.New(errors.ErrCodeInternal, "png: DrawCard before NewPage")
	}
	p.ops = append(p.ops, pngOp{page: page, card: true, x: cx, y: cy, r: radius})
	return nil
}

// DrawImage implements [render.Renderer].
func (p *PNG) DrawImage(img image.Image, x, y, width, height, _ float64) error {
	page, ok := p.stack.current()
	if !ok {
		return errors.New(errors.ErrCodeInternal, "png: DrawImage before NewPage")
	}
	p.ops = append(p.ops, pngOp{page: page, img: img, x: x, y: y, w: width, h: height})
	return nil
}

// Bytes implements [Document].
func (p *PNG) Bytes() ([]byte, error) {
	if !(p.dpi > 0) {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "png: dpi must be positive, got %v", p.dpi)
	}
	scale := p.dpi / mmPerInch
	w, h := p.stack.size()
	if w == 0 || h == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "png: no pages")
	}

	dc := gg.NewContext(px(w, scale), px(h, scale))
	dc.SetColor(color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff})
	dc.Clear()
	for _, pg := range p.stack.pages {
		dc.DrawRectangle(0, pg.offset*scale, pg.width*scale, pg.height*scale)
		dc.SetColor(color.White)
		dc.Fill()
	}

	dc.SetColor(color.Black)
	dc.SetLineWidth(max(p.lineWidth*scale, 1))
	for _, op := range p.ops {
		top := op.page.offset
		if op.card {
			dc.DrawCircle(op.x*scale, (top+op.y)*scale, op.r*scale)
			dc.Stroke()
			continue
		}
		bw, bh := px(op.w, scale), px(op.h, scale)
		if bw == 0 || bh == 0 {
			continue
		}
		resized := imaging.Resize(op.img, bw, bh, imaging.Lanczos)
		dc.DrawImage(resized, int(math.Round(op.x*scale)), int(math.Round((top+op.y)*scale)))
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode png")
	}
	return buf.Bytes(), nil
}

func px(v, scale float64) int {
	return int(math.Round(v * scale))
}
