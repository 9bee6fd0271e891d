package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/melih/docker-cicd-manager/internal/adapters/builder"
	"github.com/melih/docker-cicd-manager/internal/adapters/docker"
	"github.com/melih/docker-cicd-manager/internal/adapters/http"
	"github.com/melih/docker-cicd-manager/internal/config"
	"github.com/melih/docker-cicd-manager/internal/core/domain"
	"github.com/melih/docker-cicd-manager/internal/logging"
	"github.com/melih/docker-cicd-manager/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		logrus.Fatal(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatal(err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	log := logging.Component("api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Docker engine and manager
	engine, err := docker.NewEngine(docker.EngineConfig{Host: cfg.Docker.Host, APIVersion: cfg.Docker.APIVersion})
	if err != nil {
		log.WithError(err).Fatal("failed to initialize docker client")
	}
	if err := docker.Connect(ctx, engine, cfg.Docker.ConnectRetries, 500*time.Millisecond); err != nil {
		log.WithError(err).Fatal("docker daemon unavailable")
	}

	policy, err := docker.ParsePullPolicy(cfg.Docker.PullPolicy)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mgr := docker.NewManager(engine,
		docker.WithLogger(logging.Component("docker")),
		docker.WithMetrics(metrics.NewCollector(reg)),
		docker.WithStopTimeout(cfg.Docker.StopTimeout),
		docker.WithPullPolicy(policy),
	)
	log = log.WithField("session", mgr.Session())

	// 2. HTTP layer
	app := http.NewRouter(http.RouterConfig{
		Service:       mgr,
		Builder:       builder.NewBuilderAdapter(engine, mgr.Session()),
		Gatherer:      reg,
		PreviewDomain: cfg.Server.PreviewDomain,
		Logger:        logging.Component("http"),
	})

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.WithError(err).Warn("server shutdown")
		}
	}()

	log.Infof("server starting on %s", cfg.Server.Addr)
	if err := app.Listen(cfg.Server.Addr); err != nil {
		log.WithError(err).Error("server failed")
	}

	// 3. Release what this session created
	if cfg.Server.CleanupOnShutdown {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		n, err := mgr.CleanupTestContainers(cleanupCtx, domain.ScopeSession)
		cancel()
		if err != nil {
			log.WithError(err).Warn("cleanup incomplete")
		}
		log.WithField("removed", n).Info("cleaned up test containers")
	}
	if err := mgr.Close(); err != nil {
		log.WithError(err).Warn("failed to close docker client")
	}
}
