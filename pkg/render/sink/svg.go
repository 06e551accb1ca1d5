package sink

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/matzehuels/spotmatch/pkg/errors"
	"github.com/matzehuels/spotmatch/pkg/imagesrc"
)

// SVGOption configures the SVG sink.
type SVGOption func(*SVG)

// WithSVGLineWidth sets the card outline width in page units.
func WithSVGLineWidth(w float64) SVGOption {
	return func(s *SVG) { s.lineWidth = w }
}

// WithPageOutlines draws a thin frame around each page.
func WithPageOutlines() SVGOption {
	return func(s *SVG) { s.outlines = true }
}

// SVG renders all sheets into one SVG document, pages stacked top to bottom.
// Sizes are emitted in millimetres.
type SVG struct {
	lineWidth float64
	outlines  bool

	stack  stack
	images imageKeys
	defs   bytes.Buffer
	body   bytes.Buffer
}

// NewSVG returns an empty SVG document.
func NewSVG(opts ...SVGOption) *SVG {
	s := &SVG{lineWidth: DefaultLineWidth}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewPage implements [render.Renderer].
func (s *SVG) NewPage(width, height float64) error {
	p := s.stack.add(width, height)
	fmt.Fprintf(&s.body, `  <rect class="page" x="0" y="%.3f" width="%.3f" height="%.3f" fill="white"`,
		p.offset, width, height)
	if s.outlines {
		s.body.WriteString(` stroke="#ccc" stroke-width="0.2"`)
	}
	s.body.WriteString("/>\n")
	return nil
}

// DrawCard implements [render.Renderer].
func (s *SVG) DrawCard(cx, cy, radius float64) error {
	p, ok := s.stack.current()
	if !ok {
		return errors.New(errors.ErrCodeInternal, "svg: DrawCard before NewPage")
	}
	fmt.Fprintf(&s.body, `  <circle class="card" cx="%.3f" cy="%.3f" r="%.3f" fill="none" stroke="black" stroke-width="%.3f"/>`+"\n",
		cx, p.offset+cy, radius, s.lineWidth)
	return nil
}

// DrawImage implements [render.Renderer].
func (s *SVG) DrawImage(img image.Image, x, y, width, height, rotation float64) error {
	p, ok := s.stack.current()
	if !ok {
		return errors.New(errors.ErrCodeInternal, "svg: DrawImage before NewPage")
	}

	id, fresh := s.images.key(img)
	if fresh {
		if err := s.define(id, img); err != nil {
			return err
		}
	}

	fmt.Fprintf(&s.body, `  <use href="#img-%d" x="%.3f" y="%.3f" width="%.3f" height="%.3f"`,
		id, x, p.offset+y, width, height)
	if rotation != 0 {
		fmt.Fprintf(&s.body, ` data-rotation="%.1f"`, rotation)
	}
	s.body.WriteString("/>\n")
	return nil
}

func (s *SVG) define(id int, img image.Image) error {
	data, err := imagesrc.EncodePNG(img)
	if err != nil {
		return err
	}
	b := img.Bounds()
	fmt.Fprintf(&s.defs, `    <symbol id="img-%d" viewBox="0 0 %d %d" preserveAspectRatio="none">`+"\n", id, b.Dx(), b.Dy())
	fmt.Fprintf(&s.defs, `      <image width="%d" height="%d" href="data:image/png;base64,%s"/>`+"\n",
		b.Dx(), b.Dy(), base64.StdEncoding.EncodeToString(data))
	s.defs.WriteString("    </symbol>\n")
	return nil
}

// Bytes implements [Document].
func (s *SVG) Bytes() ([]byte, error) {
	w, h := s.stack.size()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.3f %.3f" width="%.3fmm" height="%.3fmm">`+"\n",
		w, h, w, h)
	if s.defs.Len() > 0 {
		buf.WriteString("  <defs>\n")
		buf.Write(s.defs.Bytes())
		buf.WriteString("  </defs>\n")
	}
	buf.Write(s.body.Bytes())
	buf.WriteString("</svg>\n")
	return buf.Bytes(), nil
}
