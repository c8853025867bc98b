package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/libsync/exportd/internal/config"
	"github.com/libsync/exportd/internal/logger"
	"github.com/libsync/exportd/internal/repository"
	"github.com/libsync/exportd/internal/source"
	"github.com/libsync/exportd/internal/source/ilsdump"
)

func main() {
	appLogger := logger.New(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLogger)

	sourceType := flag.String("source", "ilsdump", "Record source to sync from")
	dumpPath := flag.String("dump", "", "Path to the JSONL dump file")
	batchSize := flag.Int("batch", 500, "Records to upsert per batch")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	var src source.Source
	switch *sourceType {
	case "ilsdump":
		if *dumpPath == "" {
			appLogger.Fatal("Missing required -dump flag")
		}
		src = ilsdump.NewAdapter(*dumpPath)
	default:
		appLogger.WithField("source", *sourceType).Fatal("Unknown source type")
	}

	stats, err := source.NewSyncer(db, appLogger).Sync(ctx, src, *batchSize)
	if err != nil {
		appLogger.WithError(err).Fatal("Mirror sync failed")
	}

	appLogger.WithFields(logger.Fields{
		"batches":   stats.Batches,
		"locations": stats.Locations,
		"bibs":      stats.Bibs,
		"items":     stats.Items,
	}).Info("Sync completed")
}
