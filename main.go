package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	appconfig "sentimentflow/config"
	"sentimentflow/internal/api"
	"sentimentflow/internal/cache"
	"sentimentflow/internal/channel"
	"sentimentflow/internal/fanout"
	"sentimentflow/internal/ingest"
	"sentimentflow/internal/query"
	"sentimentflow/internal/store"
	"sentimentflow/internal/stream"
	"sentimentflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := appconfig.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	if cfg.Logging.CloudWatch {
		logger.InitCloudWatch(cfg.Storage.DynamoDB.Region, cfg.Logging.Namespace)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Sentimentflow.Name,
		"version":     cfg.Sentimentflow.Version,
		"environment": appconfig.AppEnvironment(),
	}).Info("starting sentimentflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel, log)

	logger.StartReport(ctx, log, 0)

	var st store.Store
	switch cfg.Storage.Backend {
	case "dynamodb":
		dynamo, err := store.NewDynamoStore(ctx, cfg.Storage.DynamoDB)
		if err != nil {
			log.WithError(err).Error("failed to initialize dynamodb store")
			os.Exit(1)
		}
		st = dynamo
	default:
		log.WithComponent("main").Warn("using in-memory store; data will not survive restarts")
		st = store.NewMemoryStore()
	}

	channels := channel.NewChannels(cfg.Channels.MeasurementBuffer, cfg.Channels.EventBuffer)

	resultCache := cache.New(cfg.Cache.MaxEntries)
	queryService := query.NewService(st, resultCache)
	writer := fanout.NewWriter(st, cfg.Ingest.Retry)

	hub := stream.NewHub(channels.Events, cfg.Stream.DebounceInterval, cfg.Stream.HeartbeatInterval, cfg.Stream.SendBuffer)
	go hub.Run(ctx)

	ingestor := ingest.NewIngestor(cfg, writer, channels.Measurements, channels.Events)
	if err := ingestor.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start ingestor")
		os.Exit(1)
	}

	server := api.NewServer(cfg.Server, queryService, resultCache, hub, channels.Measurements)
	if server != nil {
		if err := server.Run(ctx); err != nil {
			log.WithError(err).Error("api server exited")
		}
	} else {
		<-ctx.Done()
	}

	cancel()
	ingestor.Stop()
	log.WithComponent("main").Info("sentimentflow stopped")
}

func handleShutdown(cancel context.CancelFunc, log *logger.Log) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithComponent("main").WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	cancel()
}
