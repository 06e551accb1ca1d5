package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// completionCommand writes shell completion scripts to stdout.
func (c *CLI) completionCommand() *cobra.Command {
	shells := map[string]func(root *cobra.Command, w io.Writer) error{
		"bash":       func(root *cobra.Command, w io.Writer) error { return root.GenBashCompletionV2(w, true) },
		"zsh":        (*cobra.Command).GenZshCompletion,
		"fish":       func(root *cobra.Command, w io.Writer) error { return root.GenFishCompletion(w, true) },
		"powershell": (*cobra.Command).GenPowerShellCompletionWithDesc,
	}

	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Print a shell completion script",
		Long: `Completion prints a completion script for the given shell. Completions
include the supported orders for --order and the policies for --on-failure.`,
		Example: `  source <(spotmatch completion bash)
  spotmatch completion zsh > "${fpath[1]}/_spotmatch"
  spotmatch completion fish > ~/.config/fish/completions/spotmatch.fish
  spotmatch completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return shells[args[0]](cmd.Root(), c.Out)
		},
	}
}
