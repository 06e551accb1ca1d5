// Package sheet lays packed cards out on printable pages.
//
// Cards are placed on a fixed grid: the page is divided into as many columns
// and rows of 2·radius as fit, each card is centered in its cell, and pages
// fill row by row. All page coordinates are in the unit of the geometry
// (millimetres throughout spotmatch).
package sheet

import (
	"math"

	"github.com/matzehuels/spotmatch/pkg/errors"
	"github.com/matzehuels/spotmatch/pkg/pack"
)

// Geometry describes the page and card size.
type Geometry struct {
	PageWidth  float64 `json:"page_width" toml:"page_width"`
	PageHeight float64 `json:"page_height" toml:"page_height"`
	Radius     float64 `json:"radius" toml:"radius"`
}

// Columns returns how many cards fit across a page.
func (g Geometry) Columns() int {
	return fit(g.PageWidth, g.Radius)
}

// Rows returns how many cards fit down a page.
func (g Geometry) Rows() int {
	return fit(g.PageHeight, g.Radius)
}

// CardsPerPage returns Columns()·Rows().
func (g Geometry) CardsPerPage() int {
	return g.Columns() * g.Rows()
}

// PageCount returns the number of pages needed for cards.
func (g Geometry) PageCount(cards int) int {
	per := g.CardsPerPage()
	if per < 1 || cards <= 0 {
		return 0
	}
	return (cards + per - 1) / per
}

// Validate reports INVALID_GEOMETRY when no card fits on a page.
func (g Geometry) Validate() error {
	for _, v := range []float64{g.PageWidth, g.PageHeight, g.Radius} {
		if !(v > 0) || math.IsInf(v, 0) {
			return errors.New(errors.ErrCodeInvalidGeometry,
				"page %vx%v with card radius %v: dimensions must be positive", g.PageWidth, g.PageHeight, g.Radius)
		}
	}
	if g.CardsPerPage() < 1 {
		return errors.New(errors.ErrCodeInvalidGeometry,
			"a card of radius %v does not fit on a %vx%v page", g.Radius, g.PageWidth, g.PageHeight)
	}
	return nil
}

func fit(side, radius float64) int {
	if !(radius > 0) || !(side > 0) {
		return 0
	}
	return int(math.Floor(side / (2 * radius)))
}

// Symbol is a placed image in page coordinates.
type Symbol struct {
	Image    string  `json:"image"`
	Symbol   int     `json:"symbol"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation,omitempty"`
}

// Card is a card outline and its symbols in page coordinates. A card whose
// packing failed keeps its slot and has Failed set and no symbols.
type Card struct {
	Index   int      `json:"index"`
	CX      float64  `json:"cx"`
	CY      float64  `json:"cy"`
	Radius  float64  `json:"radius"`
	Failed  bool     `json:"failed,omitempty"`
	Symbols []Symbol `json:"symbols,omitempty"`
}

// Page is one printable page.
type Page struct {
	Number int     `json:"number"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Cards  []Card  `json:"cards"`
}

// Paginate assigns every card a slot and converts its placements from
// card-local to page coordinates. Card i goes to page i/CardsPerPage; within
// a page cards fill columns first, then rows.
func Paginate(cards []pack.Packed, g Geometry) ([]Page, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	cols, rows := g.Columns(), g.Rows()
	per := cols * rows
	colW := g.PageWidth / float64(cols)
	rowH := g.PageHeight / float64(rows)

	pages := make([]Page, 0, g.PageCount(len(cards)))
	for i, c := range cards {
		slot := i % per
		if slot == 0 {
			pages = append(pages, Page{
				Number: len(pages) + 1,
				Width:  g.PageWidth,
				Height: g.PageHeight,
				Cards:  make([]Card, 0, min(per, len(cards)-i)),
			})
		}
		cx := (float64(slot%cols) + 0.5) * colW
		cy := (float64(slot/cols) + 0.5) * rowH

		page := &pages[len(pages)-1]
		page.Cards = append(page.Cards, place(c, cx, cy, g.Radius))
	}
	return pages, nil
}

func place(c pack.Packed, cx, cy, r float64) Card {
	out := Card{Index: c.Index, CX: cx, CY: cy, Radius: r, Failed: !c.OK()}
	if out.Failed {
		return out
	}
	out.Symbols = make([]Symbol, len(c.Placements))
	for i, p := range c.Placements {
		s := Symbol{
			Image:    p.ID,
			Symbol:   -1,
			X:        cx + p.X*r,
			Y:        cy + p.Y*r,
			Width:    p.Width * r,
			Height:   p.Height * r,
			Rotation: p.Rotation,
		}
		if i < len(c.Symbols) {
			s.Symbol = c.Symbols[i]
		}
		out.Symbols[i] = s
	}
	return out
}

// CardCount returns the number of card slots across pages.
func CardCount(pages []Page) int {
	n := 0
	for _, p := range pages {
		n += len(p.Cards)
	}
	return n
}
