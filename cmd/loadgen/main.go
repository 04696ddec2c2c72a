package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/stdb-loadgen/internal/client"
	"github.com/stdb-loadgen/internal/config"
	"github.com/stdb-loadgen/internal/generator"
	"github.com/stdb-loadgen/internal/metrics"
	"github.com/stdb-loadgen/internal/profile"
	"github.com/stdb-loadgen/internal/runner"
	"github.com/stdb-loadgen/internal/scenario"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to the YAML configuration file")
		profileName = flag.String("profile", "", "load profile name (overrides config)")
		jsonReport  = flag.String("report", "", "write the JSON report to this file")
		listOnly    = flag.Bool("list-profiles", false, "list available profiles and exit")
	)
	flag.Parse()

	if *listOnly {
		for _, name := range profile.Names() {
			fmt.Println(name)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("failed to load configuration: %v", err)
	}

	log := newLogger(cfg.Logging)

	name := cfg.Run.Profile
	if *profileName != "" {
		name = *profileName
	}
	prof, err := profile.Get(name)
	if err != nil {
		log.Fatalf("failed to resolve profile: %v", err)
	}

	log.WithFields(logrus.Fields{
		"profile": prof.Name,
		"target":  cfg.Target.BaseURL(),
		"module":  cfg.Target.Module,
		"pool":    cfg.Client.PoolSize,
	}).Info("starting load run")

	registry := metrics.New()
	pool, err := client.NewPool(context.Background(), cfg.Client.PoolSize, func() *client.Client {
		return client.New(client.Config{
			BaseURL:           cfg.Target.BaseURL(),
			WSURL:             cfg.Target.WSURL(),
			Module:            cfg.Target.Module,
			Token:             cfg.Target.Token,
			ConnectTimeout:    cfg.Client.ConnectTimeout,
			RequestTimeout:    cfg.Client.RequestTimeout,
			SubscribeWait:     cfg.Client.SubscribeWait,
			HeartbeatInterval: cfg.Client.HeartbeatInterval,
			RetryDelay:        cfg.Client.RetryDelay,
			MaxRetries:        cfg.Client.MaxRetries,
		}, registry, log)
	}, log)
	if err != nil {
		log.Fatalf("failed to build connection pool: %v", err)
	}
	defer pool.CloseAll()

	gen := generator.New()
	if cfg.Run.Seed != 0 {
		gen = generator.NewSeeded(cfg.Run.Seed)
	}

	disp, err := scenario.NewDispatcher(cfg.Scenarios, &scenario.Env{
		Pool:    pool,
		Gen:     gen,
		Metrics: registry,
		Log:     log.WithField("component", "scenario"),
	})
	if err != nil {
		log.Fatalf("failed to build scenario dispatcher: %v", err)
	}

	r := runner.New(prof, disp, registry, runner.Options{
		ThinkTime:     cfg.Run.ThinkTime,
		IterationRate: cfg.Run.IterationRate,
	}, log)

	if cfg.Status.Enabled {
		srv := r.ServeStatus(cfg.Status.Addr)
		defer runner.ShutdownStatus(srv)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("shutdown signal received, finishing run early")
		cancel()
	}()

	report := r.Run(ctx)
	report.WriteText(os.Stdout)

	if *jsonReport != "" {
		f, err := os.Create(*jsonReport)
		if err != nil {
			log.Fatalf("failed to create report file: %v", err)
		}
		defer f.Close()
		if err := report.WriteJSON(f); err != nil {
			log.Fatalf("failed to write report: %v", err)
		}
		log.WithField("path", *jsonReport).Info("report written")
	}

	if !report.Passed {
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		log.SetLevel(level)
	}
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}
