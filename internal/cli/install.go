package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lydakis/llmcmd/internal/shell"
)

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "install [SHELL]",
		Short:     "Print the key binding snippet for your shell",
		Long:      "Print a snippet that binds Ctrl+K to llmcmd. SHELL defaults to $SHELL.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: shell.Supported(),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := os.Getenv("SHELL")
			if len(args) == 1 {
				name = args[0]
			}
			if name == "" {
				return fmt.Errorf("cannot detect shell; pass one of: bash, fish, zsh")
			}
			in, err := shell.Lookup(name)
			if err != nil {
				return err
			}
			fmt.Fprint(rootStdout, in.Instructions())
			return nil
		},
	}
}
