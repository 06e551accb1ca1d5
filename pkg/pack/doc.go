// Package pack places a card's images inside the card circle.
//
// Packing is a randomized search with two bounded retry loops rather than an
// exact solver. Each symbol gets up to InnerAttempts random candidates; a
// symbol that finds no valid spot abandons the whole card attempt, and the
// card gets up to OuterAttempts fresh starts. A candidate is valid when all
// four corners of its bounding box lie in the unit circle and its
// margin-grown box is clear of every box already placed.
//
// Rotation is cosmetic: it is drawn after a candidate has been accepted and
// never enters the geometric tests. Use a negative margin to compensate for
// rotated images looking smaller than their boxes.
package pack
