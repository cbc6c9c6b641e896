package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

const homeHTML = `<html><head>
	<meta name="description" content="Classic American diner in Portland.">
</head><body>
	<a href="/menu">Menu</a>
	<a href="/contact">Contact</a>
	<a href="https://facebook.com/acmediner">Facebook</a>
</body></html>`

const contactHTML = `<html><body>
	<h1>Contact Us</h1>
	<a href="mailto:hello@acmediner.com">hello@acmediner.com</a>
</body></html>`

func testCrawlConfig() config.CrawlConfig {
	return config.CrawlConfig{
		MaxPages:    20,
		MaxInFlight: 3,
		MaxAttempts: 1,
	}
}

func crawlFixture(t *testing.T) (store.Store, *fakeFetcher, *Crawler, model.Business) {
	t.Helper()
	st := newTestStore(t)

	b := model.Business{ID: "biz-1", Name: "Acme Diner", Website: "https://acmediner.example"}
	require.NoError(t, st.UpsertBusiness(context.Background(), b))

	ff := newFakeFetcher(map[string]string{
		"https://acmediner.example/":        homeHTML,
		"https://acmediner.example/contact": contactHTML,
		// /menu is linked but not routed, so it degrades.
	})
	return st, ff, NewCrawler(st, ff, nil, testCrawlConfig()), b
}

func TestCrawlBusiness_PersistsAndDegrades(t *testing.T) {
	st, _, crawler, b := crawlFixture(t)
	ctx := context.Background()

	outcome, err := crawler.CrawlBusiness(ctx, b, false)
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Attempted)
	assert.Equal(t, 2, outcome.Succeeded)
	assert.Equal(t, 1, outcome.Degraded)

	pages, err := st.ListPages(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, pages, 3)

	byURL := make(map[string]model.BusinessPage)
	for _, p := range pages {
		byURL[p.URL] = p
	}

	home := byURL["https://acmediner.example/"]
	assert.Equal(t, model.PageTypeHome, home.PageType)
	assert.Equal(t, "Classic American diner in Portland.", home.Summary)
	require.Len(t, home.SocialLinks, 1)
	assert.Equal(t, "facebook", home.SocialLinks[0].Platform)

	contact := byURL["https://acmediner.example/contact"]
	assert.Equal(t, model.PageTypeContact, contact.PageType)
	assert.Equal(t, "hello@acmediner.com", contact.Email)

	// The unreachable page still produced a row instead of an error.
	menu := byURL["https://acmediner.example/menu"]
	assert.Equal(t, model.PageTypeOther, menu.PageType)
	assert.True(t, menu.Degraded)
	assert.Empty(t, menu.Email)
}

func TestCrawlBusiness_RerunSkipsCrawledURLs(t *testing.T) {
	st, ff, crawler, b := crawlFixture(t)
	ctx := context.Background()

	_, err := crawler.CrawlBusiness(ctx, b, false)
	require.NoError(t, err)
	firstPages, err := st.ListPages(ctx, b.ID)
	require.NoError(t, err)

	outcome, err := crawler.CrawlBusiness(ctx, b, false)
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.Attempted)
	assert.Equal(t, 3, outcome.Skipped)

	// Same rows, same content: the re-run is idempotent.
	secondPages, err := st.ListPages(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, secondPages, len(firstPages))
	for i := range firstPages {
		assert.Equal(t, firstPages[i].URL, secondPages[i].URL)
		assert.Equal(t, firstPages[i].Summary, secondPages[i].Summary)
		assert.Equal(t, firstPages[i].Email, secondPages[i].Email)
	}

	// Only the discovery root fetch happened on the second run.
	assert.Equal(t, 1, ff.fetchCount("https://acmediner.example/contact"))
}

func TestCrawlBusiness_ForceRefetches(t *testing.T) {
	st, _, crawler, b := crawlFixture(t)
	ctx := context.Background()

	_, err := crawler.CrawlBusiness(ctx, b, false)
	require.NoError(t, err)

	outcome, err := crawler.CrawlBusiness(ctx, b, true)
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Attempted)
	assert.Equal(t, 0, outcome.Skipped)

	pages, err := st.ListPages(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, pages, 3, "forced refresh updates rows, never duplicates")
}

func TestCrawlBusiness_DegradedRecrawlPreservesExtractions(t *testing.T) {
	st, ff, crawler, b := crawlFixture(t)
	ctx := context.Background()

	_, err := crawler.CrawlBusiness(ctx, b, false)
	require.NoError(t, err)

	// The contact page goes dark; a forced re-crawl degrades it.
	ff.mu.Lock()
	delete(ff.pages, "https://acmediner.example/contact")
	ff.mu.Unlock()

	_, err = crawler.CrawlBusiness(ctx, b, true)
	require.NoError(t, err)

	pages, err := st.ListPages(ctx, b.ID)
	require.NoError(t, err)
	for _, p := range pages {
		if p.URL == "https://acmediner.example/contact" {
			assert.True(t, p.Degraded)
			assert.Equal(t, model.PageTypeContact, p.PageType, "earlier classification survives")
			assert.Equal(t, "hello@acmediner.com", p.Email, "earlier extraction survives")
		}
	}
}

func TestCrawlBusiness_NoWebsiteSkips(t *testing.T) {
	st := newTestStore(t)
	b := model.Business{ID: "biz-nw", Name: "No Website LLC"}
	require.NoError(t, st.UpsertBusiness(context.Background(), b))

	crawler := NewCrawler(st, newFakeFetcher(nil), nil, testCrawlConfig())
	outcome, err := crawler.CrawlBusiness(context.Background(), b, false)
	require.NoError(t, err)
	assert.Zero(t, outcome.Attempted)
}

func TestCrawlBusiness_MetricsFromMeasurement(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	b := model.Business{ID: "biz-m", Name: "Metrics Co", Website: "https://metrics.example"}
	require.NoError(t, st.UpsertBusiness(ctx, b))

	ff := newFakeFetcher(map[string]string{
		"https://metrics.example/": `<html><body>home</body></html>`,
	})
	crawler := NewCrawler(st, ff, &fakePSI{score: 77, tti: 3200}, testCrawlConfig())

	_, err := crawler.CrawlBusiness(ctx, b, false)
	require.NoError(t, err)

	pages, err := st.ListPages(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.NotNil(t, pages[0].PageSpeedScore)
	assert.Equal(t, 77, *pages[0].PageSpeedScore)
	require.NotNil(t, pages[0].TimeToInteractiveMS)
	assert.Equal(t, 3200, *pages[0].TimeToInteractiveMS)
}
