package design

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/matzehuels/spotmatch/pkg/errors"
)

// Card is an ordered list of symbol indices. Within a valid deck every card
// of order n holds exactly n+1 distinct indices in [0, n²+n+1).
type Card []int

// Deck is the full list of cards for one order.
type Deck struct {
	Order int
	Cards []Card
}

// Symbols returns the number of distinct symbols used by the deck.
func (d Deck) Symbols() int { return SymbolCount(d.Order) }

// SymbolCount returns n²+n+1, the number of symbols (and cards) of an order-n plane.
func SymbolCount(n int) int { return n*n + n + 1 }

// Generate builds the projective plane of order n.
//
// The first card is the line at infinity {0, …, n-1, n}. For every slope a
// there is a card {0} ∪ {n+1+n·a+b}, and for every pair (a, b) a card
// {a+1} ∪ {n+1+n·c+((a·c+b) mod n)}. The result is deterministic; use
// [Shuffle] for cosmetic variation.
//
// Generate returns an INVALID_ORDER error if n is not in
// [errors.SupportedOrders]; n is never rounded to a nearby order.
func Generate(n int) (Deck, error) {
	if err := errors.ValidateOrder(n); err != nil {
		return Deck{}, err
	}

	cards := make([]Card, 0, SymbolCount(n))

	infinity := make(Card, 0, n+1)
	for d := range n {
		infinity = append(infinity, d)
	}
	cards = append(cards, append(infinity, n))

	for a := range n {
		vertical := make(Card, 0, n+1)
		vertical = append(vertical, 0)
		for b := range n {
			vertical = append(vertical, n+1+n*a+b)
		}
		cards = append(cards, vertical)

		for b := range n {
			line := make(Card, 0, n+1)
			line = append(line, a+1)
			for c := range n {
				line = append(line, n+1+n*c+(a*c+b)%n)
			}
			cards = append(cards, line)
		}
	}

	return Deck{Order: n, Cards: cards}, nil
}

// Shuffle returns a copy of d with the card sequence and the symbol order
// within each card permuted by rng. The intersection property is unaffected.
func Shuffle(d Deck, rng *rand.Rand) Deck {
	cards := make([]Card, len(d.Cards))
	for i, c := range d.Cards {
		cards[i] = slices.Clone(c)
		rng.Shuffle(len(cards[i]), func(x, y int) {
			cards[i][x], cards[i][y] = cards[i][y], cards[i][x]
		})
	}
	rng.Shuffle(len(cards), func(x, y int) {
		cards[x], cards[y] = cards[y], cards[x]
	})
	return Deck{Order: d.Order, Cards: cards}
}

// Validate checks that d is a complete projective plane: S cards of n+1
// distinct in-range symbols, every symbol used, and every pair of cards
// sharing exactly one symbol.
func Validate(d Deck) error {
	n := d.Order
	s := SymbolCount(n)
	if len(d.Cards) != s {
		return fmt.Errorf("deck has %d cards, want %d", len(d.Cards), s)
	}

	sets := make([]map[int]bool, len(d.Cards))
	used := make([]bool, s)
	for i, c := range d.Cards {
		if len(c) != n+1 {
			return fmt.Errorf("card %d has %d symbols, want %d", i, len(c), n+1)
		}
		sets[i] = make(map[int]bool, len(c))
		for _, sym := range c {
			if sym < 0 || sym >= s {
				return fmt.Errorf("card %d: symbol %d out of range [0, %d)", i, sym, s)
			}
			if sets[i][sym] {
				return fmt.Errorf("card %d: duplicate symbol %d", i, sym)
			}
			sets[i][sym] = true
			used[sym] = true
		}
	}

	for sym, ok := range used {
		if !ok {
			return fmt.Errorf("symbol %d appears on no card", sym)
		}
	}

	for i := range d.Cards {
		for j := i + 1; j < len(d.Cards); j++ {
			if shared := Shared(d.Cards[i], d.Cards[j]); len(shared) != 1 {
				return fmt.Errorf("cards %d and %d share %d symbols, want 1", i, j, len(shared))
			}
		}
	}
	return nil
}

// Shared returns the symbols two cards have in common, in a's order.
func Shared(a, b Card) []int {
	var out []int
	for _, x := range a {
		if slices.Contains(b, x) {
			out = append(out, x)
		}
	}
	return out
}
