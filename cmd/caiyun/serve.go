package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"caiyun/internal/bindings"
	"caiyun/internal/config"
	"caiyun/internal/scheduler"
	"caiyun/internal/task"
	logx "caiyun/pkg/logx"
)

const (
	defaultSchedule   = "0 7 * * *"
	defaultRunTimeout = 2 * time.Minute
	stopGrace         = 10 * time.Second
)

func newServeCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the task on the configured schedule and reload on config changes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(gf.configPath) == "" {
				return errors.New("serve requires --config")
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, gf)
		},
	}
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	sc := scheduler.Config{
		Schedule:   cfg.Scheduler.Schedule,
		Timezone:   cfg.Scheduler.Timezone,
		Timeout:    cfg.Scheduler.RunTimeout(defaultRunTimeout),
		RunOnStart: cfg.Scheduler.RunOnStart,
	}
	if strings.TrimSpace(sc.Schedule) == "" {
		sc.Schedule = defaultSchedule
	}
	return sc
}

func serve(ctx context.Context, gf *globalFlags) error {
	mgr := config.NewManager(gf.configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}
	svc, log := logx.New(logConfig(cfg, gf.debug))
	defer svc.Close()
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	// Each run assembles a fresh host from the newest config.
	job := func(ctx context.Context) error {
		cur := mgr.Get()
		api, h, err := openTask(cur, gf.debug, bindings.Options{}, log)
		if err != nil {
			return err
		}
		defer h.Close()
		return task.New(api, cur).Run(ctx)
	}

	runner, err := scheduler.New(schedulerConfig(cfg), job, log.With(logx.String("comp", "scheduler")))
	if err != nil {
		return err
	}
	runner.Start(ctx)

	updates := mgr.Subscribe(1)
	defer mgr.Unsubscribe(updates)
	go func() { _ = mgr.Watch(ctx) }()

	sdNotify(log, daemon.SdNotifyReady)
	stopWatchdog := startWatchdog(ctx, log)
	defer stopWatchdog()

	prev := cfg
	for {
		select {
		case <-ctx.Done():
			sdNotify(log, daemon.SdNotifyStopping)
			stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
			runner.Stop(stopCtx)
			cancel()
			return nil
		case next, ok := <-updates:
			if !ok {
				continue
			}
			sections, fields := config.Changes(prev, next)
			log.Info("config changed", append([]logx.Field{logx.String("sections", strings.Join(sections, ","))}, fields...)...)
			svc.Apply(logConfig(next, gf.debug))
			if err := runner.Apply(schedulerConfig(next)); err != nil {
				log.Warn("schedule not applied", logx.Err(err))
			}
			prev = next
		}
	}
}

func sdNotify(log logx.Logger, state string) {
	if ok, err := daemon.SdNotify(false, state); err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	} else if ok {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// startWatchdog pings systemd at half the configured watchdog interval.
func startWatchdog(ctx context.Context, log logx.Logger) func() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				sdNotify(log, daemon.SdNotifyWatchdog)
			}
		}
	}()
	return cancel
}
