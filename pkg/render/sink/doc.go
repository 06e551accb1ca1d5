// Package sink implements [render.Renderer] for the printable output formats.
//
// Each sink collects the draw commands of one [render.Draw] call and
// produces a single artifact from [Document.Bytes]:
//
//   - [PDF]: one PDF page per sheet, in millimetres (github.com/jung-kurt/gofpdf)
//   - [SVG]: all sheets stacked vertically in one SVG, images embedded as
//     PNG data URIs and shared between cards
//   - [PNG]: all sheets stacked vertically in one raster image at a
//     configurable resolution (github.com/fogleman/gg)
//
// The sheet JSON layout is not a sink; see [sheet.WriteJSON].
//
// [render.Renderer]: github.com/matzehuels/spotmatch/pkg/render.Renderer
// [render.Draw]: github.com/matzehuels/spotmatch/pkg/render.Draw
// [sheet.WriteJSON]: github.com/matzehuels/spotmatch/pkg/sheet.WriteJSON
package sink
