// Package main provides the fatigue maintenance CLI: dataset training,
// model statistics, version management and synthetic simulations.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/fatigo/config"
	"github.com/YuminosukeSato/fatigo/engine"
	"github.com/YuminosukeSato/fatigo/pkg/log"
)

// set by the release build
var version = "dev"

type rootOptions struct {
	configPath string
	dataDir    string
	logLevel   string
	jsonOut    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "fatigue",
		Short:         "Maintain the cognitive fatigue model",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.logLevel == "" {
				return nil
			}
			return log.SetupLogger(opts.logLevel)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/fatigo/config.yaml)")
	flags.StringVar(&opts.dataDir, "data-dir", "", "data directory (default $XDG_DATA_HOME/fatigo)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&opts.jsonOut, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newTrainDatasetCmd(opts),
		newStatsCmd(opts),
		newVersionsCmd(opts),
		newRollbackCmd(opts),
		newResetCmd(opts),
		newSimulateCmd(opts),
		newPlotCmd(opts),
	)
	return root
}

// openEngine loads the configuration and constructs the engine.
func openEngine(opts *rootOptions, w io.Writer) (*engine.Engine, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dataDir != "" {
		cfg = cfg.RootAt(opts.dataDir)
	}
	eng, err := engine.New(cfg, engine.WithLogger(log.GetLoggerWithName("engine")))
	if err != nil {
		return nil, err
	}
	for _, err := range eng.StartupErrors() {
		warnColor.Fprintf(w, "warning: %v (starting from defaults)\n", err)
	}
	return eng, nil
}
