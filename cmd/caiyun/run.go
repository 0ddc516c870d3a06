package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"caiyun/internal/bindings"
	"caiyun/internal/host"
	"caiyun/internal/task"
	logx "caiyun/pkg/logx"
)

func newRunCmd(gf *globalFlags) *cobra.Command {
	var emit bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Query the weather once and notify",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, gf, emit, nil)
		},
	}
	cmd.Flags().BoolVar(&emit, "emit-result", false, "write the completion payload to stdout as JSON")
	return cmd
}

func newInterceptCmd(gf *globalFlags) *cobra.Command {
	var emit bool
	cmd := &cobra.Command{
		Use:   "intercept <url>",
		Short: "Store the location carried by an intercepted weather request URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, gf, emit, &host.InboundRequest{URL: args[0], Method: http.MethodGet})
		},
	}
	cmd.Flags().BoolVar(&emit, "emit-result", false, "write the completion payload to stdout as JSON")
	return cmd
}

func runOnce(cmd *cobra.Command, gf *globalFlags, emit bool, req *host.InboundRequest) error {
	cfg, err := loadConfig(gf)
	if err != nil {
		return err
	}
	svc, log := logx.New(logConfig(cfg, gf.debug))
	defer svc.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := bindings.Options{Request: req}
	if emit {
		opts.Result = cmd.OutOrStdout()
	}
	api, h, err := openTask(cfg, gf.debug, opts, log)
	if err != nil {
		return err
	}
	defer h.Close()

	err = task.New(api, cfg).Main(ctx)
	h.Flush()
	return err
}
