package design

import "github.com/matzehuels/spotmatch/pkg/errors"

// Plane describes the deck produced by one order.
type Plane struct {
	Order          int `json:"n"`
	Symbols        int `json:"symbols"`
	SymbolsPerCard int `json:"symbols_per_card"`
}

// Planes lists every supported plane in ascending order.
func Planes() []Plane {
	out := make([]Plane, 0, len(errors.SupportedOrders))
	for _, n := range errors.SupportedOrders {
		out = append(out, PlaneOf(n))
	}
	return out
}

// PlaneOf returns the plane parameters for order n without validating n.
func PlaneOf(n int) Plane {
	return Plane{Order: n, Symbols: SymbolCount(n), SymbolsPerCard: n + 1}
}

// PoolFit summarizes what a pool of a given size can produce.
type PoolFit struct {
	PoolSize int
	// Active is the largest plane the pool fills, nil if the pool is too small for any.
	Active *Plane
	// Next is the smallest plane larger than Active, nil if Active is the largest.
	Next *Plane
}

// Unused returns how many pool images the active plane leaves out.
func (f PoolFit) Unused() int {
	if f.Active == nil {
		return 0
	}
	return f.PoolSize - f.Active.Symbols
}

// Missing returns how many more images are needed to reach the next plane.
func (f PoolFit) Missing() int {
	if f.Next == nil {
		return 0
	}
	return f.Next.Symbols - f.PoolSize
}

// ForPool reports the largest plane a pool of poolSize images can fill and
// the next plane above it.
func ForPool(poolSize int) PoolFit {
	fit := PoolFit{PoolSize: poolSize}
	planes := Planes()
	for i := range planes {
		if poolSize >= planes[i].Symbols {
			fit.Active = &planes[i]
			continue
		}
		fit.Next = &planes[i]
		break
	}
	return fit
}
