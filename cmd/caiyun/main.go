package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"caiyun/internal/adapter"
	"caiyun/internal/bindings"
	"caiyun/internal/config"
	logx "caiyun/pkg/logx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	var gf globalFlags

	root := &cobra.Command{
		Use:           "caiyun",
		Short:         "Caiyun weather notifications for scripting hosts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&gf.configPath, "config", "c", "", "config file (.json, .yaml or .yml)")
	root.PersistentFlags().BoolVar(&gf.debug, "debug", false, "verbose task logging")

	root.AddCommand(newRunCmd(&gf))
	root.AddCommand(newInterceptCmd(&gf))
	root.AddCommand(newServeCmd(&gf))
	root.AddCommand(newDetectCmd(&gf))
	root.AddCommand(newConfigCmd(&gf))
	return root
}

// loadConfig reads the config file. Without --config an absent
// ./caiyun.json is not an error.
func loadConfig(gf *globalFlags) (*config.Config, error) {
	path := strings.TrimSpace(gf.configPath)
	explicit := path != ""
	if !explicit {
		path = "caiyun.json"
	}
	cfg, err := config.NewManager(path).Load()
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return &config.Config{}, nil
		}
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func logConfig(cfg *config.Config, debug bool) logx.Config {
	lc := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	}
	if debug {
		lc.Level = "debug"
	}
	return lc
}

// openTask assembles the configured host and the adapter on top of it.
func openTask(cfg *config.Config, debug bool, opts bindings.Options, log logx.Logger) (*adapter.API, *bindings.Host, error) {
	opts.Log = log
	h, err := bindings.Assemble(cfg, opts)
	if err != nil {
		return nil, nil, err
	}
	api, err := adapter.New(cfg.TaskName(), h.Globals,
		adapter.WithDebug(debug || cfg.Task.Debug),
		adapter.WithLogger(log),
	)
	if err != nil {
		_ = h.Close()
		return nil, nil, err
	}
	return api, h, nil
}
