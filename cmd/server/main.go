package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/Tyrowin/relayhub/internal/heartbeat"
	"github.com/Tyrowin/relayhub/internal/logx"
	"github.com/Tyrowin/relayhub/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to YAML config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] [addr]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if addr := flag.Arg(0); addr != "" {
		cfg.Addr = addr
	}

	logSvc, log := logx.NewService(cfg.Log)
	defer func() { _ = logSvc.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := []server.Option{server.WithLogger(log.With(logx.String("comp", "hub")))}
	events := []server.Events{server.LogEvents{Log: log.With(logx.String("comp", "hub"))}}
	if cfg.Metrics {
		metrics := server.NewMetrics("relayhub")
		events = append(events, metrics)
		opts = append(opts, server.WithMetricsHandler(metrics.Handler()))
	}
	opts = append(opts, server.WithEvents(events...))
	hub := server.NewHub(cfg, opts...)

	ln, err := server.Listen(cfg.Addr)
	if err != nil {
		return err
	}

	hb, err := heartbeat.New(cfg.Heartbeat, hub, log.With(logx.String("comp", "heartbeat")))
	if err != nil {
		_ = ln.Close()
		return err
	}
	if hb != nil {
		hb.Start()
		defer hb.Stop()
	}

	if cfgPath != "" {
		go func() {
			err := server.WatchConfig(ctx, cfgPath, log.With(logx.String("comp", "config")), func(next server.Config) {
				logSvc.Apply(next.Log)
				hub.ApplyConfig(next)
			})
			if err != nil {
				log.Warn("config watch disabled", logx.Err(err))
			}
		}()
	}

	log.Info("relay hub starting",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("metrics", cfg.Metrics),
		logx.Bool("config_watch", cfgPath != ""),
	)
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		log.Debug("systemd notified ready")
	}

	err = hub.Serve(ctx, ln)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("shutdown timed out with connections still closing")
	case err != nil:
		return err
	}
	log.Info("relay hub stopped")
	return nil
}

func loadConfig(path string) (server.Config, error) {
	if path == "" {
		return *server.NewConfigFromEnv(), nil
	}
	return server.LoadConfig(path)
}
