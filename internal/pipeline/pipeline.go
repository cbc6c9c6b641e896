// Package pipeline implements the crawl-and-enrichment pipeline: URL
// discovery, page classification and extraction, report compilation, and
// idempotent CRM publication.
package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/fetch"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
	"github.com/sells-group/prospect-cli/pkg/pagespeed"
	"github.com/sells-group/prospect-cli/pkg/zoho"
)

// Pipeline drives the full run: crawl, report, publish, per business.
// Businesses are independent units of work; one business's failure never
// halts the run.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	crawler  *Crawler
	compiler *Compiler
	pub      *Publisher
}

// New creates a Pipeline. psi and crm may be nil; the pagespeed and
// publish steps are then skipped.
func New(cfg *config.Config, st store.Store, fetcher fetch.Fetcher, psi pagespeed.Client, crm zoho.Client) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		store:    st,
		crawler:  NewCrawler(st, fetcher, psi, cfg.Crawl),
		compiler: NewCompiler(st, cfg.Reports.Root),
	}
	if crm != nil {
		p.pub = NewPublisher(st, crm)
	}
	return p
}

// Run executes crawl, report, and publish for every matching business
// with bounded cross-business concurrency. Cancellation stops new
// businesses from starting; in-flight businesses finish.
func (p *Pipeline) Run(ctx context.Context, filter store.BusinessFilter, force bool) (*model.RunSummary, error) {
	businesses, err := p.store.ListBusinesses(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list businesses")
	}
	if len(businesses) == 0 {
		zap.L().Info("pipeline: no businesses match filter")
		return &model.RunSummary{}, nil
	}

	// Results are appended as businesses finish; a cancelled run reports
	// only the businesses that actually started.
	summary := &model.RunSummary{Results: make([]model.BusinessResult, 0, len(businesses))}
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	maxConcurrent := p.cfg.Pipeline.MaxConcurrentBusinesses
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	g.SetLimit(maxConcurrent)

	for _, b := range businesses {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			result := p.runBusiness(gCtx, b, force)
			mu.Lock()
			summary.Results = append(summary.Results, result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	crawled, crawlFailed, published, present, publishFailed := summary.Counts()
	zap.L().Info("pipeline: run complete",
		zap.Int("businesses", len(businesses)),
		zap.Int("crawled", crawled),
		zap.Int("crawl_failed", crawlFailed),
		zap.Int("published", published),
		zap.Int("already_present", present),
		zap.Int("publish_failed", publishFailed),
	)
	return summary, ctx.Err()
}

// runBusiness executes the three ordered steps for one business. Crawl
// persistence finishes before compilation; compilation before publish.
// Step failures are recorded, not propagated.
func (p *Pipeline) runBusiness(ctx context.Context, b model.Business, force bool) model.BusinessResult {
	result := model.BusinessResult{
		BusinessID:   b.ID,
		BusinessName: b.Name,
	}

	outcome, err := p.crawler.CrawlBusiness(ctx, b, force)
	result.Crawl = outcome
	if err != nil {
		result.CrawlError = err.Error()
		zap.L().Error("pipeline: crawl failed",
			zap.String("business_id", b.ID),
			zap.Error(err),
		)
	}

	// A business with zero crawled pages still gets a (flagged
	// incomplete) report from whatever is persisted.
	artifact, err := p.compiler.Compile(ctx, b)
	if err != nil {
		result.ReportError = err.Error()
		result.Publish = model.PublishStatusSkipped
		zap.L().Error("pipeline: report failed",
			zap.String("business_id", b.ID),
			zap.Error(err),
		)
		return result
	}
	result.ReportPath = artifact.Path

	if p.pub == nil {
		result.Publish = model.PublishStatusSkipped
		return result
	}

	status, leadID, err := p.pub.Publish(ctx, b, artifact)
	result.Publish = status
	result.LeadID = leadID
	if err != nil {
		result.PublishError = err.Error()
		zap.L().Error("pipeline: publish failed",
			zap.String("business_id", b.ID),
			zap.String("lead_id", leadID),
			zap.Error(err),
		)
	}
	return result
}

// Crawl runs only the crawl step for every matching business.
func (p *Pipeline) Crawl(ctx context.Context, filter store.BusinessFilter, force bool) (*model.RunSummary, error) {
	return p.runStep(ctx, filter, func(ctx context.Context, b model.Business) model.BusinessResult {
		result := model.BusinessResult{BusinessID: b.ID, BusinessName: b.Name}
		outcome, err := p.crawler.CrawlBusiness(ctx, b, force)
		result.Crawl = outcome
		if err != nil {
			result.CrawlError = err.Error()
		}
		return result
	})
}

// Report runs only the report compilation step.
func (p *Pipeline) Report(ctx context.Context, filter store.BusinessFilter) (*model.RunSummary, error) {
	return p.runStep(ctx, filter, func(ctx context.Context, b model.Business) model.BusinessResult {
		result := model.BusinessResult{BusinessID: b.ID, BusinessName: b.Name}
		artifact, err := p.compiler.Compile(ctx, b)
		if err != nil {
			result.ReportError = err.Error()
			return result
		}
		result.ReportPath = artifact.Path
		return result
	})
}

// Publish recompiles and publishes reports without crawling.
func (p *Pipeline) Publish(ctx context.Context, filter store.BusinessFilter) (*model.RunSummary, error) {
	if p.pub == nil {
		return nil, eris.New("pipeline: zoho credentials not configured")
	}
	return p.runStep(ctx, filter, func(ctx context.Context, b model.Business) model.BusinessResult {
		result := model.BusinessResult{BusinessID: b.ID, BusinessName: b.Name}
		artifact, err := p.compiler.Compile(ctx, b)
		if err != nil {
			result.ReportError = err.Error()
			result.Publish = model.PublishStatusSkipped
			return result
		}
		result.ReportPath = artifact.Path

		status, leadID, err := p.pub.Publish(ctx, b, artifact)
		result.Publish = status
		result.LeadID = leadID
		if err != nil {
			result.PublishError = err.Error()
		}
		return result
	})
}

func (p *Pipeline) runStep(ctx context.Context, filter store.BusinessFilter, step func(context.Context, model.Business) model.BusinessResult) (*model.RunSummary, error) {
	businesses, err := p.store.ListBusinesses(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list businesses")
	}

	summary := &model.RunSummary{Results: make([]model.BusinessResult, 0, len(businesses))}
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	maxConcurrent := p.cfg.Pipeline.MaxConcurrentBusinesses
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	g.SetLimit(maxConcurrent)

	for _, b := range businesses {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			result := step(gCtx, b)
			mu.Lock()
			summary.Results = append(summary.Results, result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return summary, ctx.Err()
}
