// Package orchestrator runs one acquisition job: collect from the requested
// sources, process through the pipeline and persist the survivors.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"repairshop-scraper/models"
	"repairshop-scraper/scraper"
	"repairshop-scraper/services"
	"repairshop-scraper/storage"
	"repairshop-scraper/utils"
)

var (
	// ErrUnknownSource is returned when a requested source has no collector.
	ErrUnknownSource = errors.New("unknown source")
	// ErrInvalidOptions is returned for malformed run options.
	ErrInvalidOptions = errors.New("invalid options")
)

const (
	DefaultBatchSize  = 25
	DefaultBatchPause = 500 * time.Millisecond
)

// Options describes one run.
type Options struct {
	SearchTerm string
	Location   string
	Sources    []models.Source
	MaxResults int
	// CategoryKey enables persistence when non-empty.
	CategoryKey string
}

func (o Options) validate() error {
	switch {
	case strings.TrimSpace(o.SearchTerm) == "":
		return fmt.Errorf("%w: search term is required", ErrInvalidOptions)
	case strings.TrimSpace(o.Location) == "":
		return fmt.Errorf("%w: location is required", ErrInvalidOptions)
	case o.MaxResults <= 0:
		return fmt.Errorf("%w: max results must be positive, got %d", ErrInvalidOptions, o.MaxResults)
	case len(o.Sources) == 0:
		return fmt.Errorf("%w: at least one source is required", ErrInvalidOptions)
	}
	seen := make(map[models.Source]bool, len(o.Sources))
	for _, s := range o.Sources {
		if seen[s] {
			return fmt.Errorf("%w: source %q requested twice", ErrInvalidOptions, s)
		}
		seen[s] = true
	}
	return nil
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithUpserter enables persistence for runs that carry a CategoryKey.
func WithUpserter(u *storage.Upserter) Option {
	return func(o *Orchestrator) { o.upserter = u }
}

// WithRawWriter dumps merged raw records before processing.
func WithRawWriter(w storage.RawListingWriter) Option {
	return func(o *Orchestrator) { o.rawWriter = w }
}

// WithBatching sets the persistence batch size and the pause between batches.
func WithBatching(size int, pause time.Duration) Option {
	return func(o *Orchestrator) {
		if size > 0 {
			o.batchSize = size
		}
		if pause >= 0 {
			o.batchPause = pause
		}
	}
}

// WithSourceConcurrency runs up to n collectors at once. n <= 1 keeps the
// sequential default.
func WithSourceConcurrency(n int) Option {
	return func(o *Orchestrator) { o.concurrency = n }
}

// Orchestrator coordinates collectors, the pipeline and the store. Like the
// pipeline it owns, it must not run two jobs at the same time.
type Orchestrator struct {
	collectors  map[models.Source]scraper.Collector
	pipeline    *services.Pipeline
	upserter    *storage.Upserter
	rawWriter   storage.RawListingWriter
	logger      *utils.Logger
	batchSize   int
	batchPause  time.Duration
	concurrency int
}

// New creates an Orchestrator. Collectors are keyed by their Source.
func New(collectors []scraper.Collector, pipeline *services.Pipeline, logger *utils.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		collectors:  make(map[models.Source]scraper.Collector, len(collectors)),
		pipeline:    pipeline,
		logger:      logger,
		batchSize:   DefaultBatchSize,
		batchPause:  DefaultBatchPause,
		concurrency: 1,
	}
	for _, c := range collectors {
		o.collectors[c.Source()] = c
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// sourceResult is what one collector produced.
type sourceResult struct {
	listings []*models.RawListing
	err      error
}

// Execute runs one job and returns its statistics. Misconfiguration fails
// before any collection. A failing source is recorded and skipped, unless
// it was the only one requested, in which case its error is returned too.
func (o *Orchestrator) Execute(ctx context.Context, opts Options) (*models.RunStatistics, error) {
	start := time.Now()
	stats := models.NewRunStatistics()

	collectors, err := o.resolve(opts)
	if err != nil {
		return stats, err
	}

	o.pipeline.Reset()

	o.logger.Info("[orchestrator] Searching %q in %q across %d source(s), max %d",
		opts.SearchTerm, opts.Location, len(collectors), opts.MaxResults)

	perSource := (opts.MaxResults + len(collectors) - 1) / len(collectors)
	results := o.collect(ctx, collectors, opts, perSource)

	var raws []*models.RawListing
	var firstErr error
	for i, c := range collectors {
		src := c.Source()
		res := results[i]
		if res.err != nil {
			o.logger.Error("[orchestrator] Source %s failed: %v", src, res.err)
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", src, res.err))
			stats.SourceBreakdown[src] = 0
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", src, res.err)
			}
			continue
		}
		stats.SourceBreakdown[src] = len(res.listings)
		raws = append(raws, res.listings...)
	}
	stats.TotalFound = len(raws)

	var runErr error
	if len(collectors) == 1 && firstErr != nil {
		runErr = firstErr
	}

	if len(raws) == 0 {
		o.logger.Warn("[orchestrator] No listings found")
		stats.ElapsedMs = time.Since(start).Milliseconds()
		return stats, runErr
	}

	if o.rawWriter != nil {
		if err := o.rawWriter.WriteRaw(raws); err != nil {
			o.logger.Warn("[orchestrator] Raw dump failed: %v", err)
		}
	}

	listings, err := o.pipeline.Run(ctx, raws)
	stats.TotalProcessed = len(listings)
	if err != nil {
		stats.ElapsedMs = time.Since(start).Milliseconds()
		return stats, fmt.Errorf("orchestrator: pipeline: %w", err)
	}

	if opts.CategoryKey != "" && o.upserter != nil {
		err := o.persist(ctx, opts.CategoryKey, listings, stats)
		if err != nil {
			stats.ElapsedMs = time.Since(start).Milliseconds()
			return stats, fmt.Errorf("orchestrator: persist: %w", err)
		}
	}

	stats.ElapsedMs = time.Since(start).Milliseconds()
	o.logger.Info("[orchestrator] Done in %dms: found %d, processed %d, inserted %d, updated %d, %d source error(s)",
		stats.ElapsedMs, stats.TotalFound, stats.TotalProcessed, stats.TotalInserted, stats.TotalUpdated, len(stats.Errors))
	return stats, runErr
}

// resolve maps the requested sources to collectors and validates their
// configuration.
func (o *Orchestrator) resolve(opts Options) ([]scraper.Collector, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	collectors := make([]scraper.Collector, 0, len(opts.Sources))
	for _, src := range opts.Sources {
		c, ok := o.collectors[src]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSource, src)
		}
		if v, ok := c.(scraper.Validator); ok {
			if err := v.Validate(); err != nil {
				return nil, fmt.Errorf("%s: %w", src, err)
			}
		}
		collectors = append(collectors, c)
	}
	return collectors, nil
}

// collect runs every collector and returns results in collector order.
func (o *Orchestrator) collect(ctx context.Context, collectors []scraper.Collector, opts Options, limit int) []sourceResult {
	results := make([]sourceResult, len(collectors))
	run := func(i int) {
		c := collectors[i]
		o.logger.Info("[orchestrator] Collecting from %s (cap %d)", c.Source(), limit)
		listings, err := c.Collect(ctx, opts.SearchTerm, opts.Location, limit)
		if len(listings) > limit {
			listings = listings[:limit]
		}
		results[i] = sourceResult{listings: listings, err: err}
	}

	if o.concurrency <= 1 || len(collectors) == 1 {
		for i := range collectors {
			run(i)
		}
		return results
	}

	pool := utils.NewWorkerPool(o.concurrency)
	for i := range collectors {
		pool.Submit(func() { run(i) })
	}
	pool.Wait()
	return results
}

// persist upserts listings in batches, adding the insert and update counts
// to stats. A failed batch is logged and skipped.
func (o *Orchestrator) persist(ctx context.Context, categoryKey string, listings []*models.Listing, stats *models.RunStatistics) error {
	for start := 0; start < len(listings); start += o.batchSize {
		if start > 0 {
			if err := utils.SleepContext(ctx, o.batchPause); err != nil {
				return err
			}
		}
		end := min(start+o.batchSize, len(listings))

		res, err := o.upserter.Upsert(ctx, categoryKey, listings[start:end])
		stats.TotalInserted += res.Inserted
		stats.TotalUpdated += res.Updated
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			o.logger.Error("[orchestrator] Batch %d-%d failed: %v", start, end, err)
			continue
		}
		o.logger.Debug("[orchestrator] Stored batch %d-%d (%d new, %d updated)", start, end, res.Inserted, res.Updated)
	}
	return nil
}
