package sheet

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matzehuels/spotmatch/pkg/errors"
)

// LayoutVersion is the current layout file format version.
const LayoutVersion = 1

// Layout is a complete, renderable sheet. It is the JSON artifact of a
// generation and the input of a re-render.
type Layout struct {
	Version  int      `json:"version"`
	ID       string   `json:"id,omitempty"`
	Order    int      `json:"order"`
	Seed     uint64   `json:"seed"`
	Geometry Geometry `json:"geometry"`
	// Images maps the image IDs used in symbols to the source file names,
	// so a layout can be re-rendered against a freshly loaded pool.
	Images map[string]string `json:"images"`
	Pages  []Page            `json:"pages"`
}

// Validate checks that the layout is structurally renderable.
func (l *Layout) Validate() error {
	if l.Version != LayoutVersion {
		return errors.New(errors.ErrCodeInvalidLayout, "unsupported layout version %d", l.Version)
	}
	if err := l.Geometry.Validate(); err != nil {
		return err
	}
	for _, p := range l.Pages {
		for _, c := range p.Cards {
			for _, s := range c.Symbols {
				if _, ok := l.Images[s.Image]; !ok {
					return errors.New(errors.ErrCodeInvalidLayout,
						"page %d card %d: symbol references unknown image %q", p.Number, c.Index, s.Image)
				}
			}
		}
	}
	return nil
}

// WriteJSON encodes l as indented JSON and writes it to w.
func WriteJSON(l *Layout, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(l); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ReadJSON decodes and validates a layout from r. ReadJSON does not close r.
func ReadJSON(r io.Reader) (*Layout, error) {
	var l Layout
	if err := json.NewDecoder(r).Decode(&l); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLayout, err, "decode layout")
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// ExportJSON writes l to a JSON file at path.
func ExportJSON(l *Layout, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return WriteJSON(l, f)
}

// ImportJSON reads a layout file at path.
func ImportJSON(path string) (*Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	l, err := ReadJSON(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}
