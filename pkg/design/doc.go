// Package design generates the card structure of a spot-the-match deck.
//
// A deck of order n is a finite projective plane: n²+n+1 symbols arranged on
// n²+n+1 cards of n+1 symbols each, such that any two cards share exactly one
// symbol. Symbols are indices into an image pool; this package never sees the
// images themselves.
//
//	deck, err := design.Generate(7) // 57 cards, 8 symbols each
//	if err != nil {
//	    return err
//	}
//	deck = design.Shuffle(deck, rng) // cosmetic only
//
// Only prime orders up to 11 are supported. Prime powers such as 4 or 8 also
// have planes, but not through the modular construction used here.
package design
