package sheet

import (
	"bytes"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/spotmatch/pkg/errors"
	"github.com/matzehuels/spotmatch/pkg/pack"
)

var a4 = Geometry{PageWidth: 210, PageHeight: 297, Radius: 42}

func packed(n int) []pack.Packed {
	out := make([]pack.Packed, n)
	for i := range out {
		out[i] = pack.Packed{
			Index:   i,
			Symbols: []int{i, i + 1},
			Placements: []pack.Placement{
				{ID: fmt.Sprintf("a%d", i), X: -0.5, Y: -0.5, Width: 0.4, Height: 0.3, Rotation: 10},
				{ID: fmt.Sprintf("b%d", i), X: 0.1, Y: 0.1, Width: 0.3, Height: 0.3},
			},
		}
	}
	return out
}

func TestGeometry(t *testing.T) {
	tests := []struct {
		name       string
		g          Geometry
		cols, rows int
	}{
		{"a4 default", a4, 2, 3},
		{"letter", Geometry{PageWidth: 216, PageHeight: 279, Radius: 40}, 2, 3},
		{"exact fit", Geometry{PageWidth: 100, PageHeight: 100, Radius: 25}, 2, 2},
		{"small cards", Geometry{PageWidth: 210, PageHeight: 297, Radius: 20}, 5, 7},
		{"too large", Geometry{PageWidth: 210, PageHeight: 297, Radius: 110}, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.g.Columns(); got != tt.cols {
				t.Errorf("Columns() = %d, want %d", got, tt.cols)
			}
			if got := tt.g.Rows(); got != tt.rows {
				t.Errorf("Rows() = %d, want %d", got, tt.rows)
			}
			if got := tt.g.CardsPerPage(); got != tt.cols*tt.rows {
				t.Errorf("CardsPerPage() = %d, want %d", got, tt.cols*tt.rows)
			}
		})
	}
}

func TestGeometryValidate(t *testing.T) {
	tests := []struct {
		name    string
		g       Geometry
		wantErr bool
	}{
		{"a4", a4, false},
		{"card wider than page", Geometry{PageWidth: 210, PageHeight: 297, Radius: 110}, true},
		{"zero radius", Geometry{PageWidth: 210, PageHeight: 297}, true},
		{"negative page", Geometry{PageWidth: -210, PageHeight: 297, Radius: 42}, true},
		{"nan", Geometry{PageWidth: math.NaN(), PageHeight: 297, Radius: 42}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.g.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrCodeInvalidGeometry) {
				t.Errorf("code = %v, want INVALID_GEOMETRY", errors.GetCode(err))
			}
		})
	}
}

func TestPaginateChunks(t *testing.T) {
	pages, err := Paginate(packed(13), a4)
	if err != nil {
		t.Fatal(err)
	}

	var sizes []int
	for _, p := range pages {
		sizes = append(sizes, len(p.Cards))
	}
	if diff := cmp.Diff([]int{6, 6, 1}, sizes); diff != "" {
		t.Errorf("page sizes mismatch (-want +got):\n%s", diff)
	}
	if got := a4.PageCount(13); got != 3 {
		t.Errorf("PageCount(13) = %d, want 3", got)
	}
}

func TestPaginateCoverage(t *testing.T) {
	for _, n := range []int{1, 6, 7, 31, 57} {
		cards := packed(n)
		cards[0].Failure = &pack.FailureError{Card: 0, Symbols: 2}
		cards[0].Placements = nil

		pages, err := Paginate(cards, a4)
		if err != nil {
			t.Fatal(err)
		}
		if got := CardCount(pages); got != n {
			t.Errorf("n=%d: %d slots, want %d", n, got, n)
		}
		seen := make(map[int]bool)
		for _, p := range pages {
			for _, c := range p.Cards {
				seen[c.Index] = true
			}
		}
		if len(seen) != n {
			t.Errorf("n=%d: %d distinct cards, want %d", n, len(seen), n)
		}
		if first := pages[0].Cards[0]; !first.Failed || len(first.Symbols) != 0 {
			t.Errorf("n=%d: failed card = %+v", n, first)
		}
	}
}

func TestPaginateCoordinates(t *testing.T) {
	pages, err := Paginate(packed(8), a4)
	if err != nil {
		t.Fatal(err)
	}

	colW, rowH := 210.0/2, 297.0/3
	tests := []struct {
		page, slot int
		cx, cy     float64
	}{
		{0, 0, colW / 2, rowH / 2},
		{0, 1, colW * 1.5, rowH / 2},
		{0, 2, colW / 2, rowH * 1.5},
		{0, 5, colW * 1.5, rowH * 2.5},
		{1, 0, colW / 2, rowH / 2},
		{1, 1, colW * 1.5, rowH / 2},
	}
	for _, tt := range tests {
		c := pages[tt.page].Cards[tt.slot]
		if math.Abs(c.CX-tt.cx) > 1e-9 || math.Abs(c.CY-tt.cy) > 1e-9 {
			t.Errorf("page %d slot %d center = (%v, %v), want (%v, %v)", tt.page, tt.slot, c.CX, c.CY, tt.cx, tt.cy)
		}
	}

	c := pages[0].Cards[0]
	want := []Symbol{
		{Image: "a0", Symbol: 0, X: c.CX - 21, Y: c.CY - 21, Width: 16.8, Height: 12.6, Rotation: 10},
		{Image: "b0", Symbol: 1, X: c.CX + 4.2, Y: c.CY + 4.2, Width: 12.6, Height: 12.6},
	}
	approx := cmp.Comparer(func(x, y float64) bool { return math.Abs(x-y) < 1e-9 })
	if diff := cmp.Diff(want, c.Symbols, approx); diff != "" {
		t.Errorf("symbols mismatch (-want +got):\n%s", diff)
	}
	if pages[1].Number != 2 || pages[1].Width != 210 || pages[1].Height != 297 {
		t.Errorf("page 2 header = %+v", pages[1])
	}
}

func TestPaginateInvalidGeometry(t *testing.T) {
	_, err := Paginate(packed(3), Geometry{PageWidth: 50, PageHeight: 50, Radius: 30})
	if !errors.Is(err, errors.ErrCodeInvalidGeometry) {
		t.Errorf("Paginate() error = %v, want INVALID_GEOMETRY", err)
	}
}

func TestPaginateEmpty(t *testing.T) {
	pages, err := Paginate(nil, a4)
	if err != nil || len(pages) != 0 {
		t.Errorf("Paginate(nil) = %v, %v", pages, err)
	}
}

func TestLayoutJSON(t *testing.T) {
	pages, _ := Paginate(packed(2), a4)
	l := &Layout{
		Version:  LayoutVersion,
		ID:       "gen-1",
		Order:    2,
		Seed:     42,
		Geometry: a4,
		Images:   map[string]string{"a0": "a.png", "b0": "b.png", "a1": "c.png", "b1": "d.png"},
		Pages:    pages,
	}

	var buf bytes.Buffer
	if err := WriteJSON(l, &buf); err != nil {
		t.Fatal(err)
	}
	got, err := ReadJSON(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(l, got); diff != "" {
		t.Errorf("layout changed through JSON (-want +got):\n%s", diff)
	}

	path := filepath.Join(t.TempDir(), "layout.json")
	if err := ExportJSON(l, path); err != nil {
		t.Fatal(err)
	}
	if _, err := ImportJSON(path); err != nil {
		t.Errorf("ImportJSON() error: %v", err)
	}
}

func TestReadJSONRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"malformed", `{"version": `},
		{"wrong version", `{"version": 9, "geometry": {"page_width": 210, "page_height": 297, "radius": 42}}`},
		{"bad geometry", `{"version": 1, "geometry": {"page_width": 10, "page_height": 10, "radius": 42}}`},
		{"unknown image", `{"version": 1, "geometry": {"page_width": 210, "page_height": 297, "radius": 42},
			"images": {}, "pages": [{"number": 1, "cards": [{"index": 0, "symbols": [{"image": "x"}]}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadJSON(bytes.NewBufferString(tt.in))
			if err == nil {
				t.Fatal("ReadJSON() should fail")
			}
			code := errors.GetCode(err)
			if code != errors.ErrCodeInvalidLayout && code != errors.ErrCodeInvalidGeometry {
				t.Errorf("code = %v", code)
			}
		})
	}
}
