package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"repairshop-scraper/config"
	"repairshop-scraper/geocoding"
	"repairshop-scraper/models"
	"repairshop-scraper/orchestrator"
	"repairshop-scraper/scraper"
	"repairshop-scraper/scraper/ai"
	"repairshop-scraper/scraper/browser"
	"repairshop-scraper/scraper/searchapi"
	"repairshop-scraper/services"
	"repairshop-scraper/storage"
	"repairshop-scraper/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.NewLogger().Error("%v", err)
		os.Exit(1)
	}
	logger := utils.NewLoggerTo(os.Stdout, os.Stderr, cfg.LogDebug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("=== Repair shop scraper starting ===")
	logger.Info("Config: term %q | location %q | sources %v | max %d | store %s",
		cfg.SearchTerm, cfg.Location, cfg.Sources, cfg.MaxResults, cfg.StoreDriver)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open %s store: %v", cfg.StoreDriver, err)
		if cfg.StoreDriver == config.DriverPostgres {
			logger.Error("Make sure Docker is running: docker compose up -d")
		}
		os.Exit(1)
	}
	defer store.Close()

	limiter := utils.NewRateLimiter(cfg.RequestsPerSecond)
	collectors := buildCollectors(cfg, limiter, logger)

	var enricherOpts []services.EnricherOption
	if cfg.VerifyEmailMX {
		enricherOpts = append(enricherOpts, services.WithMXVerifier(services.NewMXVerifier("", 5*time.Second)))
	}
	// Nominatim's usage policy allows one request per second, independent
	// of the collectors' budget.
	geocoder := geocoding.NewNominatim(cfg.GeocoderURL, cfg.GeocoderUserAgent, cfg.GeocoderEmail, utils.NewRateLimiter(1))
	enricher := services.NewEnricher(geocoder, logger, enricherOpts...)
	pipeline := services.NewDefaultPipeline(enricher, logger)

	opts := []orchestrator.Option{
		orchestrator.WithUpserter(storage.NewUpserter(store, logger)),
		orchestrator.WithBatching(cfg.BatchSize, cfg.BatchPause()),
		orchestrator.WithSourceConcurrency(cfg.SourceConcurrency),
	}
	if cfg.CSVOutputPath != "" {
		csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
		if err != nil {
			logger.Error("Failed to create CSV writer: %v", err)
			os.Exit(1)
		}
		defer csvWriter.Close()
		opts = append(opts, orchestrator.WithRawWriter(csvWriter))
	}

	orch := orchestrator.New(collectors, pipeline, logger, opts...)

	sources := make([]models.Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sources = append(sources, models.Source(s))
	}

	stats, runErr := orch.Execute(ctx, orchestrator.Options{
		SearchTerm:  cfg.SearchTerm,
		Location:    cfg.Location,
		Sources:     sources,
		MaxResults:  cfg.MaxResults,
		CategoryKey: cfg.CategoryKey,
	})
	printStats(stats)
	if runErr != nil {
		logger.Error("Run failed: %v", runErr)
		os.Exit(1)
	}
	if stats.TotalFound == 0 {
		logger.Warn("No listings were found.")
		return
	}

	listings, err := store.FetchAll(ctx)
	if err != nil {
		logger.Error("Failed to fetch listings for insights: %v", err)
		return
	}
	insightSvc := services.NewInsightService(logger)
	insightSvc.Print(insightSvc.Generate(listings))
}

func openStore(ctx context.Context, cfg *config.Config, logger *utils.Logger) (storage.ListingStore, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		return storage.NewSQLiteStore(ctx, cfg.SQLitePath)
	case config.DriverMemory:
		return storage.NewMemoryStore(), nil
	default:
		return storage.NewPostgresStore(ctx, cfg.DSN(), logger)
	}
}

// buildCollectors registers every source. The orchestrator only runs the
// requested ones and validates their credentials first.
func buildCollectors(cfg *config.Config, limiter *utils.RateLimiter, logger *utils.Logger) []scraper.Collector {
	driverOpts := browser.Options{
		Headless:          cfg.Headless,
		ChromeBin:         cfg.ChromeBin,
		SearchURL:         cfg.BrowserSearchURL,
		NavigationTimeout: cfg.NavigationTimeout(),
		ScrollRounds:      cfg.ScrollRounds,
		ScrollDelta:       cfg.ScrollDeltaPx,
		ScrollPauseMin:    time.Duration(cfg.ScrollPauseMinMs) * time.Millisecond,
		ScrollPauseMax:    time.Duration(cfg.ScrollPauseMaxMs) * time.Millisecond,
	}
	extractor := browser.NewExtractor()
	newSession := func() browser.Session {
		return browser.NewDriver(driverOpts, extractor, logger)
	}
	retry := utils.NewRetryConfig(cfg.MaxRetries, cfg.RetryBaseDelay(), logger)

	return []scraper.Collector{
		browser.NewCollector(newSession, retry, logger),
		searchapi.NewClient(cfg.SearchAPIURL, cfg.SearchAPIKey, limiter, retry, logger),
		ai.NewClient(ai.Config{
			BaseURL:  cfg.AIAPIURL,
			APIKey:   cfg.AIAPIKey,
			Classify: cfg.AIClassify,
		}, limiter, retry, logger),
	}
}

func printStats(s *models.RunStatistics) {
	fmt.Println()
	fmt.Println("  ── Run statistics ──────────────────────")
	fmt.Printf("  Found      : %d\n", s.TotalFound)
	fmt.Printf("  Processed  : %d\n", s.TotalProcessed)
	fmt.Printf("  Inserted   : %d\n", s.TotalInserted)
	fmt.Printf("  Updated    : %d\n", s.TotalUpdated)
	for _, src := range []models.Source{models.SourceBrowser, models.SourceSearchAPI, models.SourceAI} {
		if n, ok := s.SourceBreakdown[src]; ok {
			fmt.Printf("  %-11s: %d\n", src, n)
		}
	}
	fmt.Printf("  Elapsed    : %dms\n", s.ElapsedMs)
	for _, e := range s.Errors {
		fmt.Printf("  Error      : %s\n", e)
	}
	fmt.Println()
}
