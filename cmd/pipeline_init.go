package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/fetch"
	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/internal/store"
	"github.com/sells-group/prospect-cli/pkg/pagespeed"
	"github.com/sells-group/prospect-cli/pkg/zoho"
)

// pipelineEnv holds the initialized store, clients, and pipeline needed
// by the run/crawl/report/publish/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "prospect.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline sets up the store and API clients and builds the
// Pipeline. PageSpeed and Zoho are optional; the pipeline skips the
// corresponding steps when they are not configured. Callers should
// defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	fetcher := fetch.NewHTTPFetcher(time.Duration(cfg.Crawl.TimeoutSecs) * time.Second)

	var psiClient pagespeed.Client
	if cfg.PageSpeed.Key != "" {
		opts := []pagespeed.Option{pagespeed.WithStrategy(cfg.PageSpeed.Strategy)}
		if cfg.PageSpeed.BaseURL != "" {
			opts = append(opts, pagespeed.WithBaseURL(cfg.PageSpeed.BaseURL))
		}
		psiClient = pagespeed.NewClient(cfg.PageSpeed.Key, opts...)
		zap.L().Info("pagespeed measurement enabled", zap.String("strategy", cfg.PageSpeed.Strategy))
	} else {
		zap.L().Debug("PROSPECT_PAGESPEED_KEY not set, page metrics disabled")
	}

	var crmClient zoho.Client
	if cfg.Zoho.ClientID != "" && cfg.Zoho.ClientSecret != "" {
		crmClient = zoho.NewClient(cfg.Zoho.ClientID, cfg.Zoho.ClientSecret, cfg.Zoho.DataCenter,
			zoho.WithRateLimit(cfg.Zoho.RateLimitRPS))
		zap.L().Info("zoho crm publishing enabled", zap.String("data_center", cfg.Zoho.DataCenter))
	} else {
		zap.L().Warn("zoho credentials not set, reports will not be published")
	}

	p := pipeline.New(cfg, st, fetcher, psiClient, crmClient)

	return &pipelineEnv{
		Store:    st,
		Pipeline: p,
	}, nil
}
