package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/spotmatch/pkg/cache"
)

// cacheCommand groups the subcommands for the local file cache. A Redis
// cache used by serve is managed through Redis itself.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the local layout and artifact cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "clear",
			Short: "Delete every cached layout and artifact",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return c.clearCache() },
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the cache directory",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				dir, err := c.cacheDir()
				if err != nil {
					return fmt.Errorf("cache dir: %w", err)
				}
				_, err = fmt.Fprintln(c.Out, dir)
				return err
			},
		},
	)
	return cmd
}

func (c *CLI) clearCache() error {
	dir, err := c.cacheDir()
	if err != nil {
		return fmt.Errorf("cache dir: %w", err)
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		printInfo("Nothing cached in %s", dir)
		return nil
	}

	fc, err := cache.NewFileCache(dir)
	if err != nil {
		return err
	}
	n, err := fc.Clear()
	if err != nil {
		return err
	}
	printSuccess("Removed %d cached entries from %s", n, fc.Dir())
	return nil
}

// cacheDir prefers cache.dir from the settings file over the XDG location.
func (c *CLI) cacheDir() (string, error) {
	if dir := c.Settings.Cache.Dir; dir != "" {
		return dir, nil
	}
	return cacheDir()
}
