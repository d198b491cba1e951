package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gftdcojp/buslog/internal/archive"
	"github.com/gftdcojp/buslog/internal/catalog"
	"github.com/gftdcojp/buslog/internal/config"
	"github.com/gftdcojp/buslog/internal/lifecycle"
	"github.com/gftdcojp/buslog/internal/metrics"
	"github.com/gftdcojp/buslog/internal/recorder"
	"github.com/gftdcojp/buslog/internal/serve"
	"github.com/gftdcojp/buslog/pkg/natsutil"
	"github.com/gftdcojp/buslog/pkg/s3util"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("buslog-recorder %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Observability.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("fatal error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cat, err := catalog.NewBoltStore(cfg.Catalog, logger.Named("catalog"))
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer cat.Close()

	var (
		s3Client *s3util.Client
		arch     *archive.Store
	)
	if cfg.Archive.Enabled {
		s3Client, err = s3util.NewClient(ctx, cfg.Archive)
		if err != nil {
			return fmt.Errorf("creating S3 client: %w", err)
		}
		arch, err = archive.NewStore(s3Client.S3, cfg.Archive, logger.Named("archive"))
		if err != nil {
			return err
		}
		defer arch.Close()
	}

	var nc *nats.Conn
	if cfg.Recorder.Enabled || cfg.API.NATSPrefix != "" {
		nc, err = natsutil.Connect(cfg.NATS, logger.Named("nats"))
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer nc.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		js, err := jetstream.New(nc)
		if err != nil {
			return fmt.Errorf("creating JetStream context: %w", err)
		}
		if _, err := natsutil.EnsureStream(ctx, js, cfg.Recorder.Stream, cfg.Recorder.Subjects); err != nil {
			return err
		}
		rec = recorder.New(recorder.Config{
			JS:       js,
			Catalog:  cat,
			Archive:  arch,
			Recorder: cfg.Recorder,
			Session:  cfg.Session,
			Logger:   logger,
		})
		g.Go(func() error { return rec.Run(gctx) })
	}

	if cfg.Retention.Enabled {
		mgr := lifecycle.NewManager(cat, arch, cfg.Retention, logger)
		g.Go(func() error { return mgr.Run(gctx) })
	}

	if cfg.API.Enabled {
		deps := serve.Deps{
			Catalog: cat,
			Archive: arch,
			Session: cfg.Session,
			Logger:  logger,
		}
		if rec != nil {
			deps.Recorder = rec
		}
		g.Go(func() error { return serve.RunHTTP(gctx, cfg.API, deps) })
	}

	if cfg.API.NATSPrefix != "" {
		g.Go(func() error {
			return serve.RunNATSResponder(gctx, nc, cfg.API.NATSPrefix, cat, logger.Named("nats-responder"))
		})
	}

	if cfg.Observability.Metrics.Enabled {
		g.Go(func() error { return metrics.RunServer(gctx, cfg.Observability.Metrics) })
	}

	if cfg.Observability.Health.Enabled {
		outputDir := ""
		if cfg.Recorder.Enabled {
			outputDir = cfg.Recorder.OutputDir
		}
		checker := metrics.NewHealthChecker(nc, cat, s3Client, outputDir)
		g.Go(func() error {
			return metrics.RunHealthServer(gctx, cfg.Observability.Health, checker)
		})
	}

	logger.Info("buslog-recorder started",
		zap.String("version", version),
		zap.Bool("recorder", cfg.Recorder.Enabled),
		zap.String("stream", cfg.Recorder.Stream),
		zap.Bool("archive", cfg.Archive.Enabled),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level.SetLevel(zap.DebugLevel)
	case "info":
		zapCfg.Level.SetLevel(zap.InfoLevel)
	case "warn":
		zapCfg.Level.SetLevel(zap.WarnLevel)
	case "error":
		zapCfg.Level.SetLevel(zap.ErrorLevel)
	}

	if cfg.Output != "" {
		zapCfg.OutputPaths = []string{cfg.Output}
	}

	return zapCfg.Build()
}
