package sink

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/matzehuels/spotmatch/pkg/imagesrc"
	"github.com/matzehuels/spotmatch/pkg/render"
	"github.com/matzehuels/spotmatch/pkg/sheet"
)

func fixture() ([]sheet.Page, map[string]*imagesrc.Image) {
	bmp := image.NewNRGBA(image.Rect(0, 0, 8, 4))
	for x := range 8 {
		bmp.Set(x, 1, color.NRGBA{B: 255, A: 255})
	}
	images := map[string]*imagesrc.Image{
		"a": {ID: "a", Bitmap: bmp, Width: 8, Height: 4, AspectRatio: 0.5},
	}
	card := func(i int, cx float64) sheet.Card {
		return sheet.Card{Index: i, CX: cx, CY: 50, Radius: 40, Symbols: []sheet.Symbol{
			{Image: "a", X: cx - 20, Y: 30, Width: 16, Height: 8},
			{Image: "a", X: cx, Y: 55, Width: 20, Height: 10, Rotation: 30},
		}}
	}
	pages := []sheet.Page{
		{Number: 1, Width: 210, Height: 297, Cards: []sheet.Card{card(0, 50), card(1, 150)}},
		{Number: 2, Width: 210, Height: 297, Cards: []sheet.Card{card(2, 50)}},
	}
	return pages, images
}

func draw(t *testing.T, doc Document, opts render.Options) []byte {
	t.Helper()
	pages, images := fixture()
	if _, err := render.Draw(pages, images, doc, opts); err != nil {
		t.Fatalf("Draw() error: %v", err)
	}
	data, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error: %v", err)
	}
	return data
}

func TestPDF(t *testing.T) {
	data := draw(t, NewPDF(WithPDFTitle("test deck")), render.Options{})
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("output does not start with a PDF header: %q", data[:min(len(data), 16)])
	}
	if got := bytes.Count(data, []byte("/Type /Page\n")); got != 2 {
		t.Errorf("found %d pages, want 2", got)
	}
}

func TestPDFDrawBeforePage(t *testing.T) {
	if err := NewPDF().DrawCard(1, 1, 1); err == nil {
		t.Error("DrawCard() before NewPage should fail")
	}
}

func TestSVG(t *testing.T) {
	svg := string(draw(t, NewSVG(WithPageOutlines()), render.Options{
		Rotate:   true,
		Provider: imagesrc.NewImagingProvider(0),
	}))

	tests := []struct {
		name  string
		sub   string
		count int
	}{
		{"stacked viewBox", `viewBox="0 0 210.000 599.000"`, 1},
		{"page frames", `class="page"`, 2},
		{"cards", `class="card"`, 3},
		{"shared bitmap plus rotated ones", `<symbol id="img-`, 4},
		{"upright uses share one bitmap", `<use href="#img-0"`, 3},
		{"rotation recorded", `data-rotation="30.0"`, 3},
		{"second page offset", `cy="352.000"`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strings.Count(svg, tt.sub); got != tt.count {
				t.Errorf("count(%q) = %d, want %d", tt.sub, got, tt.count)
			}
		})
	}
	if !strings.HasSuffix(svg, "</svg>\n") {
		t.Error("svg not closed")
	}
}

func TestPNG(t *testing.T) {
	// At 25.4 dpi one millimetre is one pixel.
	data := draw(t, NewPNG(WithDPI(25.4)), render.Options{})
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 210 || cfg.Height != 2*297+int(PageGap) {
		t.Errorf("size = %dx%d, want 210x%d", cfg.Width, cfg.Height, 2*297+int(PageGap))
	}
}

func TestPNGErrors(t *testing.T) {
	if _, err := NewPNG().Bytes(); err == nil {
		t.Error("Bytes() without pages should fail")
	}
	p := NewPNG(WithDPI(0))
	_ = p.NewPage(10, 10)
	if _, err := p.Bytes(); err == nil {
		t.Error("Bytes() with zero dpi should fail")
	}
}
