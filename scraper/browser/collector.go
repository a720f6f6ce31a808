package browser

import (
	"context"

	"repairshop-scraper/models"
	"repairshop-scraper/utils"
)

// Session is the browser lifecycle the Collector drives. *Driver implements it.
type Session interface {
	Initialize(ctx context.Context) error
	Collect(ctx context.Context, searchTerm, location string, maxResults int) ([]*models.RawListing, error)
	Close() error
}

// Collector runs a browser session under the retry policy, replacing the
// session between attempts so each attempt starts from a fresh identity.
type Collector struct {
	newSession func() Session
	retry      utils.RetryConfig
	logger     *utils.Logger
}

// NewCollector creates a browser Collector. newSession is called once per
// attempt that needs a session.
func NewCollector(newSession func() Session, retry *utils.RetryConfig, logger *utils.Logger) *Collector {
	return &Collector{newSession: newSession, retry: *retry, logger: logger}
}

// Source implements scraper.Collector.
func (c *Collector) Source() models.Source {
	return models.SourceBrowser
}

// Collect implements scraper.Collector.
func (c *Collector) Collect(ctx context.Context, searchTerm, location string, maxResults int) ([]*models.RawListing, error) {
	var (
		sess    Session
		results []*models.RawListing
	)
	discard := func() error {
		if sess == nil {
			return nil
		}
		err := sess.Close()
		sess = nil
		return err
	}
	defer func() {
		if err := discard(); err != nil {
			c.logger.Warn("[browser] Closing session: %v", err)
		}
	}()

	retry := c.retry
	retry.BeforeRetry = func(context.Context, int) error {
		return discard()
	}

	err := retry.Do(ctx, "browser collect", func(ctx context.Context) error {
		if sess == nil {
			s := c.newSession()
			if err := s.Initialize(ctx); err != nil {
				_ = s.Close()
				return err
			}
			sess = s
		}
		out, err := sess.Collect(ctx, searchTerm, location, maxResults)
		if err != nil {
			return err
		}
		results = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
