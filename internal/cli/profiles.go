package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lydakis/llmcmd/internal/config"
)

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List configured profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			for _, name := range cfg.ProfileNames() {
				p := cfg.Profiles[name]
				marker := ""
				if name == cfg.Backend.DefaultProfile {
					marker = " (default)"
				}
				temp := config.DefaultTemperature
				if p.Temperature != nil {
					temp = *p.Temperature
				}
				fmt.Fprintf(rootStdout, "%s%s\n  model: %s\n  temperature: %g\n", name, marker, p.Model, temp)
			}
			fmt.Fprintln(rootStdout)
			fmt.Fprintln(rootStdout, "Usage:")
			fmt.Fprintln(rootStdout, `  llmcmd --fast "query"            use the fast profile`)
			fmt.Fprintln(rootStdout, `  llmcmd --profile heavy "query"   use a named profile`)
			fmt.Fprintln(rootStdout, `  llmcmd --model custom:7b "query" use a model directly`)
			return nil
		},
	}
}
