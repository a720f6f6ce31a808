// Package services holds the processing pipeline that turns raw collector
// output into stored listings, and the reports computed over stored data.
package services

import (
	"context"

	"repairshop-scraper/models"
	"repairshop-scraper/utils"
)

// Stage is one processing step. Returning nil filters the listing out.
type Stage interface {
	Process(ctx context.Context, l *models.Listing) *models.Listing
}

// Resetter is implemented by stages holding per-run state.
type Resetter interface {
	Reset()
}

// Pipeline applies its stages to every listing, strictly in order. It holds
// per-run state and must not be shared by concurrent runs.
type Pipeline struct {
	stages []Stage
	logger *utils.Logger
}

// NewPipeline creates a Pipeline running stages in the given order.
func NewPipeline(logger *utils.Logger, stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages, logger: logger}
}

// NewDefaultPipeline wires Clean → Dedup → Enrich.
func NewDefaultPipeline(enricher *Enricher, logger *utils.Logger) *Pipeline {
	return NewPipeline(logger,
		NewCleaner(logger),
		NewDeduplicator(logger),
		enricher,
	)
}

// Process runs one raw listing through every stage.
func (p *Pipeline) Process(ctx context.Context, raw *models.RawListing) *models.Listing {
	l := models.FromRaw(raw)
	for _, s := range p.stages {
		if l = s.Process(ctx, l); l == nil {
			return nil
		}
	}
	return l
}

// Run processes raws in order and returns the survivors. It stops early
// only when ctx is done.
func (p *Pipeline) Run(ctx context.Context, raws []*models.RawListing) ([]*models.Listing, error) {
	out := make([]*models.Listing, 0, len(raws))
	for _, r := range raws {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if l := p.Process(ctx, r); l != nil {
			out = append(out, l)
		}
	}
	p.logger.Info("[pipeline] Processed %d → %d listings (dropped %d)",
		len(raws), len(out), len(raws)-len(out))
	return out, nil
}

// Reset clears per-run state, such as seen fingerprints.
func (p *Pipeline) Reset() {
	for _, s := range p.stages {
		if r, ok := s.(Resetter); ok {
			r.Reset()
		}
	}
}
