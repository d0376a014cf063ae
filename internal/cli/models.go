package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lydakis/llmcmd/internal/backend"
	"github.com/lydakis/llmcmd/internal/config"
)

// modelAdmin manages the models installed on an Ollama server.
type modelAdmin interface {
	Host() string
	ListModels(ctx context.Context) ([]backend.LocalModel, error)
	PullModel(ctx context.Context, name string, progress func(backend.PullProgress)) error
	DeleteModel(ctx context.Context, name string) error
}

// Model management always talks to Ollama; cloud backends fall back to the
// default local host.
var newModelAdminFn = func(cfg *config.Config) modelAdmin {
	host := backend.DefaultOllamaHost
	if cfg.Backend.Type == config.BackendOllama && cfg.Backend.Host != "" {
		host = cfg.Backend.Host
	}
	return backend.NewOllama(backend.Config{
		Provider: backend.ProviderOllama,
		Endpoint: host,
		Headers:  cfg.Backend.Headers,
	}, nil)
}

const modelListTimeout = 10 * time.Second

func newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage local Ollama models",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List installed models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, err := modelAdminFromConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), modelListTimeout)
			defer cancel()
			models, err := admin.ListModels(ctx)
			if err != nil {
				return err
			}
			printModels(models)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "pull MODEL",
		Short: "Download a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, err := modelAdminFromConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(rootStderr, "pulling %s from %s\n", args[0], admin.Host())
			progress := &pullPrinter{}
			err = admin.PullModel(cmd.Context(), args[0], progress.print)
			progress.finish()
			if err != nil {
				return err
			}
			fmt.Fprintf(rootStdout, "model %s pulled\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "rm MODEL",
		Aliases: []string{"remove"},
		Short:   "Remove a model",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, err := modelAdminFromConfig()
			if err != nil {
				return err
			}
			if err := admin.DeleteModel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(rootStdout, "model %s removed\n", args[0])
			return nil
		},
	})
	return cmd
}

func modelAdminFromConfig() (modelAdmin, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newModelAdminFn(cfg), nil
}

func printModels(models []backend.LocalModel) {
	if len(models) == 0 {
		fmt.Fprintln(rootStdout, "No models installed.")
		fmt.Fprintln(rootStdout, "Pull one with: llmcmd models pull qwen2.5-coder:7b")
		return
	}
	tw := tabwriter.NewWriter(rootStdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tPARAMS\tMODIFIED")
	for _, m := range models {
		params := m.ParameterSize
		if m.Quantization != "" {
			params += " " + m.Quantization
		}
		modified := "-"
		if !m.ModifiedAt.IsZero() {
			modified = humanize.Time(m.ModifiedAt)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Name, humanize.Bytes(uint64(m.Size)), params, modified)
	}
	tw.Flush() //nolint:errcheck
}

// pullPrinter rewrites one stderr line per download layer.
type pullPrinter struct {
	last    string
	inplace bool
}

func (p *pullPrinter) print(u backend.PullProgress) {
	if u.Total > 0 {
		pct := u.Completed * 100 / u.Total
		fmt.Fprintf(rootStderr, "\r%s: %d%% (%s/%s)", u.Status, pct, humanize.Bytes(uint64(u.Completed)), humanize.Bytes(uint64(u.Total)))
		p.inplace = true
		p.last = u.Status
		return
	}
	if u.Status == p.last {
		return
	}
	p.finish()
	fmt.Fprintln(rootStderr, u.Status)
	p.last = u.Status
}

func (p *pullPrinter) finish() {
	if p.inplace {
		fmt.Fprintln(rootStderr)
		p.inplace = false
	}
}
