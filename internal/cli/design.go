package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/spotmatch/pkg/design"
	"github.com/matzehuels/spotmatch/pkg/errors"
	"github.com/matzehuels/spotmatch/pkg/imagesrc"
	"github.com/matzehuels/spotmatch/pkg/pipeline"
	"github.com/matzehuels/spotmatch/pkg/render/incidence"
)

// Output formats of the design command.
const (
	designTable = "table"
	designJSON  = "json"
	designDOT   = "dot"
	designSVG   = "svg"
)

// designFlags holds the command-line flags for the design command.
type designFlags struct {
	order     int
	format    string
	seed      uint64 // shuffle with this seed; 0 keeps the canonical deck
	verify    bool
	highlight int    // card whose symbols are highlighted in graphs
	images    string // label symbols with the names of these images
	output    string
}

// designOutput is the JSON shape of a deck.
type designOutput struct {
	Order          int      `json:"n"`
	Symbols        int      `json:"symbols"`
	SymbolsPerCard int      `json:"symbols_per_card"`
	Seed           uint64   `json:"seed,omitempty"`
	Cards          [][]int  `json:"cards"`
	Labels         []string `json:"labels,omitempty"`
}

// designCommand creates the design command for inspecting card designs.
func (c *CLI) designCommand() *cobra.Command {
	flags := designFlags{format: designTable, highlight: -1}

	cmd := &cobra.Command{
		Use:   "design",
		Short: "Print or draw the card design of one order",
		Long: `Design prints which symbols go on which card for an order-n deck, without
touching any images. As a graph (dot, svg) it shows cards and symbols as
nodes with an edge wherever a card carries a symbol.`,
		Example: `  spotmatch design --order 3
  spotmatch design --order 7 --format svg --highlight 0 -o plane7.svg
  spotmatch design --order 11 --verify`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDesign(cmd.Context(), flags)
		},
	}

	cmd.Flags().IntVarP(&flags.order, "order", "n", 0, "plane order: 2, 3, 5, 7 or 11")
	cmd.Flags().StringVarP(&flags.format, "format", "f", flags.format, "output format: table, json, dot, svg")
	cmd.Flags().Uint64Var(&flags.seed, "seed", 0, "shuffle the deck with this seed")
	cmd.Flags().BoolVar(&flags.verify, "verify", false, "check that every two cards share exactly one symbol")
	cmd.Flags().IntVar(&flags.highlight, "highlight", flags.highlight, "highlight the symbols of this card (dot, svg)")
	cmd.Flags().StringVar(&flags.images, "images", "", "label symbols with the files of this image directory")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output file (default stdout)")
	_ = cmd.MarkFlagRequired("order")

	return cmd
}

func (c *CLI) runDesign(ctx context.Context, flags designFlags) error {
	logger := loggerFromContext(ctx)

	deck, err := design.Generate(flags.order)
	if err != nil {
		return err
	}
	if flags.seed != 0 {
		deck = design.Shuffle(deck, pipeline.NewRNG(flags.seed))
	}

	if flags.verify {
		prog := newProgress(logger)
		if err := design.Validate(deck); err != nil {
			printError("Order %d deck is invalid: %v", flags.order, err)
			return errors.Wrap(errors.ErrCodeInternal, err, "verify order %d", flags.order)
		}
		prog.done(fmt.Sprintf("Verified %d card pairs", len(deck.Cards)*(len(deck.Cards)-1)/2))
	}

	labels, err := designLabels(flags.images, deck.Symbols())
	if err != nil {
		return err
	}

	data, err := formatDesign(ctx, deck, flags, labels)
	if err != nil {
		return err
	}

	if flags.output == "" {
		_, err := io.WriteString(c.Out, data)
		return err
	}
	if err := os.WriteFile(flags.output, []byte(data), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", flags.output, err)
	}
	printFile(flags.output)
	return nil
}

// designLabels names the first symbols after the image files in dir, in the
// order generate assigns them without shuffling.
func designLabels(dir string, symbols int) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	paths, err := imagesrc.ListDir(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) < symbols {
		return nil, errors.New(errors.ErrCodeNotEnoughImages, "%s has %d images, the deck needs %d", dir, len(paths), symbols)
	}
	labels := make([]string, symbols)
	for i := range labels {
		labels[i] = filepath.Base(paths[i])
	}
	return labels, nil
}

func formatDesign(ctx context.Context, deck design.Deck, flags designFlags, labels []string) (string, error) {
	switch flags.format {
	case designTable:
		return designTableString(deck, labels), nil
	case designJSON:
		out := designOutput{
			Order:          deck.Order,
			Symbols:        deck.Symbols(),
			SymbolsPerCard: deck.Order + 1,
			Seed:           flags.seed,
			Cards:          make([][]int, len(deck.Cards)),
			Labels:         labels,
		}
		for i, card := range deck.Cards {
			out.Cards[i] = card
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	case designDOT, designSVG:
		opts := incidence.Options{Highlight: flags.highlight}
		if labels != nil {
			opts.Labels = make(map[int]string, len(labels))
			for i, l := range labels {
				opts.Labels[i] = l
			}
		}
		dot := incidence.ToDOT(deck, opts)
		if flags.format == designDOT {
			return dot, nil
		}
		svg, err := incidence.RenderSVG(ctx, dot)
		if err != nil {
			return "", err
		}
		return string(svg), nil
	default:
		return "", errors.New(errors.ErrCodeInvalidFormat, "invalid format %q (must be table, json, dot or svg)", flags.format)
	}
}

// designTableString renders one row per card with its symbols.
func designTableString(deck design.Deck, labels []string) string {
	rows := make([][]string, len(deck.Cards))
	for i, card := range deck.Cards {
		syms := make([]string, len(card))
		for j, s := range card {
			if labels != nil {
				syms[j] = labels[s]
			} else {
				syms[j] = strconv.Itoa(s)
			}
		}
		rows[i] = []string{strconv.Itoa(i), strings.Join(syms, "  ")}
	}

	var b strings.Builder
	b.WriteString(StyleTitle.Render(fmt.Sprintf("Order %d", deck.Order)))
	b.WriteString(StyleDim.Render(fmt.Sprintf("  %d cards · %d symbols per card", len(deck.Cards), deck.Order+1)))
	b.WriteString("\n")
	b.WriteString(renderTable([]string{"Card", "Symbols"}, rows, nil))
	b.WriteString("\n")
	return b.String()
}
