package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/yurifrl/finbr/pkg/archive"
	"github.com/yurifrl/finbr/pkg/classify"
	"github.com/yurifrl/finbr/pkg/config"
	"github.com/yurifrl/finbr/pkg/server"
	"github.com/yurifrl/finbr/pkg/service"
	"github.com/yurifrl/finbr/pkg/store"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Prefix:          "finbr",
	})

	flags := pflag.NewFlagSet("finbr-server", pflag.ExitOnError)
	cfgFile := flags.StringP("config", "c", "", "Config file (default is ./config.yaml)")
	flags.String("addr", "", "Listen address (default 0.0.0.0:3000)")
	flags.String("log-level", "", "Log level")
	flags.String("bucket", "", "GCS bucket for raw documents")
	migrate := flags.Bool("migrate", false, "Create tables before serving")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Build(*cfgFile, flags)
	if err != nil {
		logger.Fatal("failed to load config", "err", err)
	}
	logger = cfg.Logger("finbr")
	if logger.GetLevel() != log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Secrets.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}
	pg, err := store.Open(ctx, logger, cfg.Secrets.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to open database", "err", err)
	}
	defer pg.Close()
	if *migrate {
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal("migration failed", "err", err)
		}
	}

	var arch archive.Archiver = archive.Nop{}
	if cfg.Archive.Bucket != "" {
		gcs, err := archive.NewGCS(ctx, logger, cfg.Archive.Bucket, cfg.Archive.Prefix, cfg.Secrets.GoogleCredentials)
		if err != nil {
			logger.Fatal("failed to create archive", "err", err)
		}
		defer gcs.Close()
		arch = gcs
	}

	processor := service.NewProcessor(logger, pg, arch, service.Options{
		HierarchyTTL: cfg.Hierarchy.TTL,
		Classify: classify.Options{
			StopOnError:         cfg.Classify.StopOnError,
			LargeBatchThreshold: cfg.Classify.LargeBatchThreshold,
			ProgressEvery:       cfg.Classify.ProgressEvery,
		},
	})
	srv := server.New(cfg.Server, logger, processor)

	logger.Info("starting server", "addr", cfg.Server.Addr)
	if err := srv.Start(ctx, cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", "err", err)
	}
}
