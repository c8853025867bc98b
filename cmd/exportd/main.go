package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/libsync/exportd/internal/cache"
	"github.com/libsync/exportd/internal/config"
	"github.com/libsync/exportd/internal/domain"
	"github.com/libsync/exportd/internal/export"
	"github.com/libsync/exportd/internal/exporters"
	"github.com/libsync/exportd/internal/logger"
	"github.com/libsync/exportd/internal/notify"
	"github.com/libsync/exportd/internal/repository"
	"github.com/libsync/exportd/internal/solr"
	"github.com/libsync/exportd/internal/storage"
)

const dateLayout = "2006-01-02T15:04:05"

func main() {
	appLogger := logger.New(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLogger)

	exportType := flag.String("type", "", "Export type to run (ItemsToSolr, BibsToSolr, LocationsToSolr)")
	filterKind := flag.String("filter", "full_export", "Filter: full_export, date_range, record_range, location, bib_location, last_export")
	fromDate := flag.String("from", "", "Date range start (2006-01-02T15:04:05)")
	toDate := flag.String("to", "", "Date range end (2006-01-02T15:04:05)")
	fromID := flag.Uint64("from-id", 0, "Record range start ID")
	toID := flag.Uint64("to-id", 0, "Record range end ID")
	location := flag.String("location", "", "Location code for location filters")
	onlyNullItems := flag.Bool("only-null-items", false, "Bib-location filter: only bibs whose items have no location")
	username := flag.String("user", "", "Username to attribute the job to")
	automated := flag.Bool("automated", false, "Attribute the job to the configured automated user")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	if *exportType == "" {
		appLogger.Fatal("Missing required -type flag")
	}

	user := *username
	if *automated {
		user = cfg.Exporter.AutomatedUsername
	}
	if user == "" {
		appLogger.Fatal("Missing -user flag (or pass -automated)")
	}

	filter, err := buildFilter(*filterKind, *fromDate, *toDate, *fromID, *toID, *location, *onlyNullItems)
	if err != nil {
		appLogger.WithError(err).Fatal("Invalid filter")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	recordRepo := repository.NewRecordRepository(db)
	jobRepo := repository.NewJobRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var recordCache *cache.RecordCache
	if cfg.Redis.Addr != "" {
		recordCache = cache.New(&cfg.Redis)
		defer recordCache.Close()
		if err := recordCache.Ping(ctx); err != nil {
			appLogger.WithError(err).Warn("Record cache unreachable, continuing without it")
			recordCache = nil
		}
	}

	solrClient := solr.NewClient(&cfg.Solr, cfg.Exporter.ReplicationRetries, cfg.Exporter.ReplicationBackoff, appLogger)

	var archiver storage.ReportArchiver
	if cfg.Archive.Enabled {
		s3Archive, err := storage.NewS3Archive(&cfg.Archive)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize report archive")
		}
		if err := s3Archive.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure archive bucket")
		}
		archiver = s3Archive
	}

	sink := notify.NewNotifier(notify.NewSMTPSender(&cfg.SMTP), &cfg.Exporter, appLogger)

	registry, err := buildRegistry(cfg, recordRepo, solrClient, recordCache)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to build exporter registry")
	}

	executor := export.NewExecutor(
		registry,
		jobRepo,
		export.NewGovernor(cfg.Exporter.Slots),
		sink,
		archiver,
		appLogger,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	job, err := executor.Trigger(ctx, *exportType, filter, user)
	if err != nil {
		appLogger.WithError(err).Fatal("Export job failed")
	}

	appLogger.WithFields(logger.Fields{
		logger.FieldJobID:  job.ID,
		logger.FieldStatus: string(job.Status),
		"records":          job.TotalRecords,
		"chunks":           job.TotalChunks,
		"errors":           job.Errors,
		"warnings":         job.Warnings,
	}).Info("Export completed")

	if job.Status == domain.JobStatusFailed {
		os.Exit(1)
	}
}

// buildFilter translates CLI flags into the filter variant for the job.
func buildFilter(kind, fromDate, toDate string, fromID, toID uint64, location string, onlyNullItems bool) (domain.ExportFilter, error) {
	switch domain.FilterKind(kind) {
	case domain.FilterFull:
		return domain.FullFilter(), nil
	case domain.FilterDateRange:
		from, err := time.Parse(dateLayout, fromDate)
		if err != nil {
			return domain.ExportFilter{}, fmt.Errorf("invalid -from date: %w", err)
		}
		to, err := time.Parse(dateLayout, toDate)
		if err != nil {
			return domain.ExportFilter{}, fmt.Errorf("invalid -to date: %w", err)
		}
		return domain.DateRangeFilter(from, to)
	case domain.FilterRecordRange:
		return domain.RecordRangeFilter(fromID, toID)
	case domain.FilterLocation:
		return domain.LocationFilter(location), nil
	case domain.FilterBibLocation:
		return domain.BibLocationFilter(location, onlyNullItems), nil
	case domain.FilterLastExport:
		return domain.LastExportFilter(), nil
	default:
		return domain.ExportFilter{}, fmt.Errorf("unknown filter kind %q", kind)
	}
}

// buildRegistry wires every export type with its repositories, target
// core, and chunk sizing.
func buildRegistry(cfg *config.Config, records *repository.RecordRepository, solrClient *solr.Client, recordCache *cache.RecordCache) (*export.Registry, error) {
	recOverrides, err := cfg.Exporter.RecChunkOverrides()
	if err != nil {
		return nil, err
	}
	delOverrides, err := cfg.Exporter.DelChunkOverrides()
	if err != nil {
		return nil, err
	}

	coreFor := func(name string) (config.SolrCoreConfig, error) {
		coreName, ok := cfg.Exporter.CoreMap[name]
		if !ok {
			return config.SolrCoreConfig{}, fmt.Errorf("%w: no core mapped for export type %s", domain.ErrConfiguration, name)
		}
		core, ok := cfg.Solr.Core(coreName)
		if !ok {
			return config.SolrCoreConfig{}, fmt.Errorf("%w: core %s for export type %s is not configured", domain.ErrConfiguration, coreName, name)
		}
		return core, nil
	}

	deps := func(core config.SolrCoreConfig) exporters.Deps {
		return exporters.Deps{
			Records:       records,
			Solr:          solrClient,
			Cache:         recordCache,
			Core:          core,
			SourceTimeout: cfg.Exporter.SourceTimeout,
		}
	}

	registry := export.NewRegistry()

	itemsCore, err := coreFor(exporters.ItemsToSolrName)
	if err != nil {
		return nil, err
	}
	registry.Register(exporters.NewItemsToSolr(deps(itemsCore), recOverrides, delOverrides))

	bibsCore, err := coreFor(exporters.BibsToSolrName)
	if err != nil {
		return nil, err
	}
	registry.Register(exporters.NewBibsToSolr(deps(bibsCore), recOverrides, delOverrides))

	locationsCore, err := coreFor(exporters.LocationsToSolrName)
	if err != nil {
		return nil, err
	}
	registry.Register(exporters.NewLocationsToSolr(deps(locationsCore), recOverrides))

	return registry, nil
}
