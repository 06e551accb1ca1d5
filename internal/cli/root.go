package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/matzehuels/spotmatch/pkg/buildinfo"
)

// RootCommand creates the root cobra command with all subcommands registered.
//
// Settings are loaded before any subcommand runs, so every command sees the
// merged defaults in c.Settings.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Spotmatch generates spot-the-match card decks from your images",
		Long: `Spotmatch turns a folder of images into a printable deck of round cards
in which any two cards share exactly one picture.

The deck is a finite projective plane of order n (2, 3, 5, 7 or 11). An order-n
deck has n²+n+1 cards with n+1 pictures each and needs as many images.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.verbose {
				c.SetLogLevel(LogDebug)
			}
			settings, err := loadSettings(c.configPath)
			if err != nil {
				return err
			}
			c.Settings = settings
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "settings file (default "+defaultConfigHint()+")")

	root.AddCommand(c.generateCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.designCommand())
	root.AddCommand(c.ordersCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// Execute runs the spotmatch CLI with args, logging to stderr.
func Execute(ctx context.Context, args []string, stderr io.Writer) error {
	c := New(stderr, LogInfo)
	root := c.RootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
