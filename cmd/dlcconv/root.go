package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/EchoTools/dlcconv/pkg/config"
	"github.com/EchoTools/dlcconv/pkg/logging"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
	log *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "dlcconv",
		Short: "Convert PC DLC archives into console package projects",
		Long: `dlcconv stages PC DLC archives for the console package builder: it writes
param.sfo, icon0.png and a GP4 project next to a copy of the archive with its
platform flag patched, then runs the builder.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Configuration file (default "+config.DefaultPath()+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format: text, json")

	root.AddCommand(
		newConvertCmd(a),
		newSFOCmd(a),
		newGP4Cmd(a),
		newFlagsCmd(a),
		newCatalogCmd(a),
	)
	return root
}

// setup loads the configuration and the logger. A missing default
// configuration file is not an error.
func (a *app) setup(cmd *cobra.Command) error {
	path := a.configPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case a.configPath == "" && errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
	default:
		return err
	}

	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}

	log, err := logging.FromConfig(cmd.ErrOrStderr(), cfg.Logging.Format, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	a.cfg = cfg
	a.log = log
	return nil
}
