// Package incidence renders the abstract structure of a deck as a graph.
//
// The incidence graph of a deck has one node per card and one per symbol,
// with an edge wherever a card carries a symbol. For a valid deck every
// card node has n+1 neighbours, every symbol node has n+1 neighbours, and
// any two card nodes share exactly one neighbour.
//
//	dot := incidence.ToDOT(deck, incidence.Options{})
//	svg, err := incidence.RenderSVG(ctx, dot)
package incidence

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/spotmatch/pkg/design"
)

// Options configures incidence graph rendering.
type Options struct {
	// Labels names symbol nodes, e.g. by image file name. Symbols without
	// a label are shown by index.
	Labels map[int]string

	// Highlight marks the symbols of one card. Negative disables it.
	Highlight int
}

// CardID returns the DOT node ID of card i.
func CardID(i int) string { return fmt.Sprintf("card%d", i) }

// SymbolID returns the DOT node ID of symbol s.
func SymbolID(s int) string { return fmt.Sprintf("sym%d", s) }

// ToDOT converts a deck to an undirected Graphviz graph, cards on one rank
// and symbols on the other.
func ToDOT(d design.Deck, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("graph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  ranksep=2;\n")
	buf.WriteString("  nodesep=0.1;\n")
	buf.WriteString("  node [fontsize=10];\n")
	buf.WriteString("  edge [color=\"#00000040\"];\n")
	buf.WriteString("\n")

	highlight := map[int]bool{}
	if opts.Highlight >= 0 && opts.Highlight < len(d.Cards) {
		for _, s := range d.Cards[opts.Highlight] {
			highlight[s] = true
		}
	}

	buf.WriteString("  { rank=same;\n")
	for i := range d.Cards {
		attrs := fmt.Sprintf("shape=circle, label=%q", strconv.Itoa(i))
		if i == opts.Highlight {
			attrs += ", style=filled, fillcolor=gold"
		}
		fmt.Fprintf(&buf, "    %s [%s];\n", CardID(i), attrs)
	}
	buf.WriteString("  }\n")

	buf.WriteString("  { rank=same;\n")
	for s := range d.Symbols() {
		label, ok := opts.Labels[s]
		if !ok {
			label = strconv.Itoa(s)
		}
		attrs := fmt.Sprintf("shape=box, label=%q", label)
		if highlight[s] {
			attrs += ", style=filled, fillcolor=gold"
		}
		fmt.Fprintf(&buf, "    %s [%s];\n", SymbolID(s), attrs)
	}
	buf.WriteString("  }\n\n")

	for i, c := range d.Cards {
		for _, s := range c {
			fmt.Fprintf(&buf, "  %s -- %s;\n", CardID(i), SymbolID(s))
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces Graphviz's pt-sized root element with a plain
// viewBox so the SVG scales to its container.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}
