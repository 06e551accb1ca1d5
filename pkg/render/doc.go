// Package render turns paginated sheets into draw commands.
//
// # Overview
//
// Layout ends at [sheet.Page]: card outlines and symbol boxes in page
// coordinates. A [Renderer] is anything that can assemble those into a
// document. [Draw] walks the pages and issues the commands in a fixed order:
//
//	NewPage
//	  DrawCard                      (one per packed card)
//	    DrawImage ... DrawImage     (one per symbol)
//	  DrawCard
//	    ...
//	NewPage
//	  ...
//
// Cards whose packing failed keep their grid slot but produce no commands.
//
// # Rotation
//
// Symbol rotation is applied to the bitmap before drawing via
// [imagesrc.Provider.Rotate]. The rotated bitmap is drawn centered on the
// original box, scaled so the unrotated image would fill the box exactly.
// A rotation failure affects only that symbol: it is recorded in the
// [Report] and the symbol is drawn unrotated.
//
// # Sinks
//
// The [sink] subpackage implements Renderer for PDF, SVG and PNG output.
// The [incidence] subpackage renders the abstract deck structure, not a
// printable sheet, as a Graphviz card-symbol graph.
//
// [sink]: github.com/matzehuels/spotmatch/pkg/render/sink
// [incidence]: github.com/matzehuels/spotmatch/pkg/render/incidence
package render
