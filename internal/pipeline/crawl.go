package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/fetch"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/internal/store"
	"github.com/sells-group/prospect-cli/pkg/pagespeed"
)

// Crawler crawls one business's website and persists a BusinessPage row
// per URL. Page upserts are keyed on (business_id, url), so concurrent
// URL workers never contend on the same row.
type Crawler struct {
	store    store.Store
	fetcher  fetch.Fetcher
	psi      pagespeed.Client
	discover *Discoverer
	cfg      config.CrawlConfig
}

// NewCrawler creates a Crawler. psi may be nil; performance metrics are
// then left null on every row.
func NewCrawler(st store.Store, fetcher fetch.Fetcher, psi pagespeed.Client, cfg config.CrawlConfig) *Crawler {
	matcher := NewPathMatcher(cfg.ExcludePaths)
	return &Crawler{
		store:    st,
		fetcher:  fetcher,
		psi:      psi,
		discover: NewDiscoverer(fetcher, matcher, cfg.MaxPages),
		cfg:      cfg,
	}
}

// CrawlBusiness discovers the business's URL set, filters out pages
// already crawled in prior runs (unless force), and fetches the rest with
// bounded concurrency. Fetch failures are retried with backoff; exhaustion
// writes a degraded row instead of failing the business.
func (c *Crawler) CrawlBusiness(ctx context.Context, b model.Business, force bool) (model.CrawlOutcome, error) {
	var outcome model.CrawlOutcome

	if !b.HasWebsite() {
		zap.L().Info("crawl: business has no website, skipping",
			zap.String("business_id", b.ID),
			zap.String("name", b.Name),
		)
		return outcome, nil
	}

	urls, err := c.discover.Discover(ctx, b.Website)
	if err != nil {
		return outcome, eris.Wrapf(err, "crawl: discover urls for %s", b.ID)
	}

	if !force {
		crawled, err := c.store.CrawledURLs(ctx, b.ID)
		if err != nil {
			return outcome, eris.Wrapf(err, "crawl: load crawled urls for %s", b.ID)
		}
		fresh := urls[:0]
		for _, u := range urls {
			if crawled[u] {
				outcome.Skipped++
				continue
			}
			fresh = append(fresh, u)
		}
		urls = fresh
	}

	if len(urls) == 0 {
		zap.L().Info("crawl: nothing new to crawl",
			zap.String("business_id", b.ID),
			zap.Int("skipped", outcome.Skipped),
		)
		return outcome, nil
	}

	processor := NewProcessor(b.Domain())
	retryCfg := resilience.RetryConfig{
		MaxAttempts: c.cfg.MaxAttempts,
		OnRetry:     resilience.RetryLogger("fetch", "page"),
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	maxInFlight := c.cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 5
	}
	g.SetLimit(maxInFlight)

	for _, pageURL := range urls {
		g.Go(func() error {
			mu.Lock()
			outcome.Attempted++
			mu.Unlock()

			page, fetchErr := resilience.DoVal(gCtx, retryCfg, func(ctx context.Context) (*fetch.Page, error) {
				return c.fetcher.Fetch(ctx, pageURL)
			})

			var row model.BusinessPage
			degraded := false
			if fetchErr != nil {
				zap.L().Warn("crawl: page degraded after retries",
					zap.String("business_id", b.ID),
					zap.String("url", pageURL),
					zap.Error(fetchErr),
				)
				row = model.BusinessPage{
					BusinessID: b.ID,
					URL:        pageURL,
					PageType:   model.PageTypeOther,
					Degraded:   true,
				}
				degraded = true
			} else {
				row = processor.Process(b.ID, page, c.measure(gCtx, pageURL))
				zap.L().Debug("crawl: page processed",
					zap.String("url", pageURL),
					zap.String("page_type", string(row.PageType)),
					zap.Duration("load_time", page.LoadTime),
				)
			}
			row.CrawledAt = time.Now().UTC()

			// Overwrite persisted fields only on a forced-refresh success;
			// degraded rows never regress earlier extractions.
			overwrite := force && !degraded
			if err := c.store.UpsertPage(gCtx, row, overwrite); err != nil {
				return eris.Wrapf(err, "crawl: persist page %s", pageURL)
			}

			mu.Lock()
			if degraded {
				outcome.Degraded++
			} else {
				outcome.Succeeded++
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcome, err
	}

	zap.L().Info("crawl: business complete",
		zap.String("business_id", b.ID),
		zap.String("name", b.Name),
		zap.Int("attempted", outcome.Attempted),
		zap.Int("succeeded", outcome.Succeeded),
		zap.Int("degraded", outcome.Degraded),
		zap.Int("skipped", outcome.Skipped),
	)
	return outcome, nil
}

// measure runs PageSpeed Insights for a URL. Measurement failure is soft:
// the page row simply carries null metrics.
func (c *Crawler) measure(ctx context.Context, pageURL string) *pagespeed.Metrics {
	if c.psi == nil {
		return nil
	}
	m, err := c.psi.Analyze(ctx, pageURL)
	if err != nil {
		zap.L().Debug("crawl: pagespeed measurement failed",
			zap.String("url", pageURL),
			zap.Error(err),
		)
		return nil
	}
	return m
}
