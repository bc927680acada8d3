package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/impactdao/treasury-engine/pkg/api"
	apphttp "github.com/impactdao/treasury-engine/pkg/app/http"
	"github.com/impactdao/treasury-engine/pkg/auth"
	"github.com/impactdao/treasury-engine/pkg/config"
	govservice "github.com/impactdao/treasury-engine/pkg/governance/service"
	"github.com/impactdao/treasury-engine/pkg/govstore"
	"github.com/impactdao/treasury-engine/pkg/ingest"
	"github.com/impactdao/treasury-engine/pkg/ledgerstore"
	"github.com/impactdao/treasury-engine/pkg/notifier"
	"github.com/impactdao/treasury-engine/pkg/pgutil"
	stakingservice "github.com/impactdao/treasury-engine/pkg/staking/service"
	treasuryservice "github.com/impactdao/treasury-engine/pkg/treasury/service"
)

var configPath = flag.String("config", "config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting treasury engine",
		zap.String("config", *configPath),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database))

	ledgerStore := ledgerstore.NewStore(db)
	govStore := govstore.NewStore(db)

	var notif notifier.Notifier = notifier.Nop{}
	if cfg.Queue.URL != "" {
		amqpNotifier, err := notifier.NewAMQP(&cfg.Queue, logger)
		if err != nil {
			logger.Fatal("Failed to connect notification publisher", zap.Error(err))
		}
		defer func() { _ = amqpNotifier.Close() }()
		notif = amqpNotifier
		logger.Info("Notification publisher connected", zap.String("exchange", cfg.Queue.NotifyExchange))
	} else {
		logger.Warn("Queue URL not configured; notifications disabled")
	}

	treasurySvc := treasuryservice.NewService(ledgerStore, logger)
	stakingSvc := stakingservice.NewService(ledgerStore, logger)
	govSvc := govservice.NewService(govStore, ledgerStore, notif, &cfg.Governance, logger)

	if cfg.Queue.URL != "" {
		engine := ingest.NewEngine(treasurySvc, stakingSvc, govSvc, logger)
		consumer, err := ingest.NewConsumer(&cfg.Queue, engine, logger)
		if err != nil {
			logger.Fatal("Failed to start event consumer", zap.Error(err))
		}
		defer func() { _ = consumer.Close() }()

		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("Event consumer stopped", zap.Error(err))
				stop()
			}
		}()
	} else {
		logger.Warn("Queue URL not configured; event ingestion disabled")
	}

	sweeper := govservice.NewSweeper(govSvc, govStore, cfg.Governance.SweepInterval, logger)
	go sweeper.Run(ctx)

	handler := api.NewHandler(treasurySvc, stakingSvc, govSvc, logger)
	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, logger)
	router := api.NewRouter(handler, verifier)

	if cfg.Monitoring.Enabled {
		router.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.Int("port", cfg.Monitoring.MetricsPort))
	}

	if err := apphttp.ServeAndWait(ctx, router, logger, &cfg.Server); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Treasury engine stopped")
}
