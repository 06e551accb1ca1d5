package sink

import (
	"bytes"
	"fmt"
	"image"

	"github.com/jung-kurt/gofpdf"

	"github.com/matzehuels/spotmatch/pkg/errors"
	"github.com/matzehuels/spotmatch/pkg/imagesrc"
)

// PDFOption configures the PDF sink.
type PDFOption func(*PDF)

// WithPDFLineWidth sets the card outline width in mm.
func WithPDFLineWidth(w float64) PDFOption {
	return func(p *PDF) { p.lineWidth = w }
}

// WithPDFTitle sets the document title metadata.
func WithPDFTitle(title string) PDFOption {
	return func(p *PDF) { p.title = title }
}

// PDF renders sheets as a PDF document with one page per sheet.
type PDF struct {
	doc       *gofpdf.Fpdf
	images    imageKeys
	lineWidth float64
	title     string
	pages     int
}

// NewPDF returns an empty PDF document.
func NewPDF(opts ...PDFOption) *PDF {
	p := &PDF{lineWidth: DefaultLineWidth}
	for _, opt := range opts {
		opt(p)
	}

	p.doc = gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           gofpdf.SizeType{Wd: 210, Ht: 297},
	})
	p.doc.SetMargins(0, 0, 0)
	p.doc.SetAutoPageBreak(false, 0)
	p.doc.SetCreator("spotmatch", true)
	if p.title != "" {
		p.doc.SetTitle(p.title, true)
	}
	return p
}

// NewPage implements [render.Renderer].
func (p *PDF) NewPage(width, height float64) error {
	// "P" keeps width and height as given; "L" would swap them.
	p.doc.AddPageFormat("P", gofpdf.SizeType{Wd: width, Ht: height})
	p.doc.SetDrawColor(0, 0, 0)
	p.doc.SetLineWidth(p.lineWidth)
	p.pages++
	return p.err()
}

// DrawCard implements [render.Renderer].
func (p *PDF) DrawCard(cx, cy, radius float64) error {
	if p.pages == 0 {
		return errors.New(errors.ErrCodeInternal, "pdf: DrawCard before NewPage")
	}
	p.doc.Circle(cx, cy, radius, "D")
	return p.err()
}

// DrawImage implements [render.Renderer].
func (p *PDF) DrawImage(img image.Image, x, y, width, height, _ float64) error {
	if p.pages == 0 {
		return errors.New(errors.ErrCodeInternal, "pdf: DrawImage before NewPage")
	}

	id, fresh := p.images.key(img)
	name := fmt.Sprintf("img%d", id)
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	if fresh {
		data, err := imagesrc.EncodePNG(img)
		if err != nil {
			return err
		}
		p.doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
		if err := p.err(); err != nil {
			return err
		}
	}
	p.doc.ImageOptions(name, x, y, width, height, false, opts, 0, "")
	return p.err()
}

// Bytes implements [Document].
func (p *PDF) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.doc.Output(&buf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "write pdf")
	}
	return buf.Bytes(), nil
}

func (p *PDF) err() error {
	if p.doc.Ok() {
		return nil
	}
	return errors.Wrap(errors.ErrCodeInternal, p.doc.Error(), "pdf")
}
