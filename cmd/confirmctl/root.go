package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"confirmit/internal/app"
	"confirmit/internal/platform/config"
	"confirmit/internal/platform/logger"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// newRootCmd builds a fresh command tree so tests never share flag state.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "confirmctl",
		Short: "Operator tool for the confirmit trust engine",
		Long: `confirmctl runs operator tasks against the same stores and consensus log
the server uses: schema migrations, anchor verification and business review.

Configuration is read the same way as the server: an optional YAML file
overlaid by environment variables.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("CONFIRMIT_CONFIG"), "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level for diagnostics on stderr")

	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newAnchorCmd(opts))
	root.AddCommand(newBusinessCmd(opts))
	return root
}

func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.NewWithWriter(os.Stderr, o.logLevel), nil
}

// build loads configuration and wires the services.
func (o *rootOptions) build(cmd *cobra.Command) (*app.App, error) {
	cfg, log, err := o.load()
	if err != nil {
		return nil, err
	}
	return app.Build(cmd.Context(), cfg, log)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
