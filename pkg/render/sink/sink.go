package sink

import (
	"image"

	"github.com/matzehuels/spotmatch/pkg/render"
)

// Document is a renderer that produces an artifact.
type Document interface {
	render.Renderer

	// Bytes finishes the document and returns the encoded artifact.
	Bytes() ([]byte, error)
}

// DefaultLineWidth is the card outline width in page units (mm).
const DefaultLineWidth = 0.3

// PageGap separates stacked pages in the SVG and PNG sinks, in page units.
const PageGap = 5.0

type pageBox struct {
	width, height float64
	offset        float64 // y of the page top in the stacked document
}

// stack lays pages out top to bottom and returns the document size.
type stack struct {
	pages []pageBox
}

func (s *stack) add(width, height float64) pageBox {
	off := 0.0
	if n := len(s.pages); n > 0 {
		last := s.pages[n-1]
		off = last.offset + last.height + PageGap
	}
	p := pageBox{width: width, height: height, offset: off}
	s.pages = append(s.pages, p)
	return p
}

func (s *stack) current() (pageBox, bool) {
	if len(s.pages) == 0 {
		return pageBox{}, false
	}
	return s.pages[len(s.pages)-1], true
}

func (s *stack) size() (w, h float64) {
	for _, p := range s.pages {
		w = max(w, p.width)
		h = max(h, p.offset+p.height)
	}
	return w, h
}

// imageKeys assigns a stable key to every distinct bitmap, so a bitmap used
// on many cards is embedded once.
type imageKeys struct {
	keys  map[image.Image]int
	order []image.Image
}

func (k *imageKeys) key(img image.Image) (id int, fresh bool) {
	if k.keys == nil {
		k.keys = make(map[image.Image]int)
	}
	if id, ok := k.keys[img]; ok {
		return id, false
	}
	id = len(k.order)
	k.keys[img] = id
	k.order = append(k.order, img)
	return id, true
}
