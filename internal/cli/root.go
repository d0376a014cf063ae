package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lydakis/llmcmd/internal/config"
	"github.com/lydakis/llmcmd/internal/daemon"
	"github.com/lydakis/llmcmd/internal/sysinfo"
	"github.com/lydakis/llmcmd/internal/tui"
)

// clientSlack keeps the client waiting a little past the daemon's own
// request deadline so the daemon's timeout response arrives first.
const clientSlack = 2 * time.Second

var (
	loadConfigFn     = config.Load
	ensureDaemonFn   = daemon.EnsureRunning
	collectContextFn = sysinfo.Collect
	promptFn         = tui.Prompt
	isTerminalFn     = func(f *os.File) bool { return tui.IsTerminal(f) }
)

// Run is the main CLI entry point. Returns an exit code.
func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(rootStderr, "llmcmd: %v\n", err)
	}
	return exitCode(err)
}

type queryFlags struct {
	pipe    bool
	fast    bool
	profile string
	model   string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	var flags queryFlags

	root := &cobra.Command{
		Use:   "llmcmd [QUERY...]",
		Short: "Translate a description into a shell command",
		Long: "llmcmd turns a natural-language description into one shell command and prints it.\n\n" +
			"Without a query it opens a prompt on the terminal. Run `llmcmd install` for a key binding.",
		Version:       buildVersion,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), flags, args)
		},
	}
	root.SetIn(rootStdin)
	root.SetOut(rootStdout)
	root.SetErr(rootStderr)
	root.SetVersionTemplate("llmcmd {{.Version}}\n")

	f := root.Flags()
	f.BoolVar(&flags.pipe, "pipe", false, "No prompt or preview; read the query from arguments or stdin and print only the command")
	f.BoolVarP(&flags.fast, "fast", "f", false, "Use the fast profile")
	f.StringVarP(&flags.profile, "profile", "p", "", "Use a named profile from the config")
	f.StringVarP(&flags.model, "model", "m", "", "Use this model, ignoring profiles")
	f.DurationVar(&flags.timeout, "timeout", 0, "Give up waiting for the daemon after this long (default: request_timeout + 2s)")

	root.AddCommand(newDaemonCmd())
	root.AddCommand(newModelsCmd())
	root.AddCommand(newProfilesCmd())
	root.AddCommand(newInstallCmd())
	root.AddCommand(newConfigCmd())
	return root
}

// loadConfig loads and validates the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := loadConfigFn()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", config.ExampleConfigPath(), err)
	}
	return cfg, nil
}

func startOptions(cfg *config.Config) daemon.StartOptions {
	return daemon.StartOptions{StartupTimeout: cfg.StartupTimeout()}
}

var errQueryRequired = errors.New("a query is required with --pipe")

func joinQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
