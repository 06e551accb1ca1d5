package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/spotmatch/pkg/design"
	"github.com/matzehuels/spotmatch/pkg/imagesrc"
)

// ordersCommand creates the orders command listing supported planes.
func (c *CLI) ordersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "orders [image-dir]",
		Short: "List supported deck orders and what an image folder can fill",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			poolSize := 0
			if len(args) == 1 {
				paths, err := imagesrc.ListDir(args[0])
				if err != nil {
					return err
				}
				poolSize = len(paths)
			}

			fmt.Fprintln(c.Out, planeTable(design.Planes(), poolSize))
			if len(args) == 1 {
				printPoolFit(design.ForPool(poolSize))
			}
			return nil
		},
	}
}

// printPoolFit summarizes which deck a pool builds and what the next one needs.
func printPoolFit(fit design.PoolFit) {
	if fit.Active == nil {
		printWarning("%d images are not enough for any deck; add %d more for order %d",
			fit.PoolSize, fit.Missing(), fit.Next.Order)
		return
	}
	printSuccess("%d images build an order-%d deck of %d cards", fit.PoolSize, fit.Active.Order, fit.Active.Symbols)
	if n := fit.Unused(); n > 0 {
		printDetail("%d images stay unused", n)
	}
	if fit.Next != nil {
		printDetail("add %d more for order %d", fit.Missing(), fit.Next.Order)
	}
}
