package pack

// Packed is the packing outcome of one deck card: either a placement per
// symbol or a failure. Symbols[i] is the design symbol drawn by
// Placements[i].
type Packed struct {
	Index      int           `json:"index"`
	Symbols    []int         `json:"symbols"`
	Placements []Placement   `json:"placements,omitempty"`
	Attempts   int           `json:"attempts"`
	Failure    *FailureError `json:"-"`
}

// OK reports whether the card was packed.
func (p Packed) OK() bool {
	return p.Failure == nil
}

// Failed returns the packed cards that carry a failure.
func Failed(cards []Packed) []Packed {
	var out []Packed
	for _, c := range cards {
		if !c.OK() {
			out = append(out, c)
		}
	}
	return out
}
