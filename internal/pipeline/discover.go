package pipeline

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/fetch"
)

// Discoverer builds a business's candidate URL set from its homepage links
// and sitemap. Discovery is depth 1: only links reachable from the root are
// considered, capped at maxPages including the root itself.
type Discoverer struct {
	fetcher  fetch.Fetcher
	http     *http.Client
	matcher  *PathMatcher
	maxPages int
}

// NewDiscoverer creates a Discoverer. The separate plain HTTP client is for
// sitemap.xml, which the HTML fetcher rejects by content type.
func NewDiscoverer(fetcher fetch.Fetcher, matcher *PathMatcher, maxPages int) *Discoverer {
	if maxPages <= 0 {
		maxPages = 20
	}
	return &Discoverer{
		fetcher: fetcher,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		matcher:  matcher,
		maxPages: maxPages,
	}
}

// Discover returns the URL set for a website, root first. The root is
// always included even when fetching it fails; the crawl step retries it
// with backoff.
func (d *Discoverer) Discover(ctx context.Context, website string) ([]string, error) {
	root, err := normalizeURL(website)
	if err != nil {
		return nil, eris.Wrapf(err, "discover: parse website %s", website)
	}
	base, err := url.Parse(root)
	if err != nil {
		return nil, eris.Wrapf(err, "discover: parse root %s", root)
	}

	seen := map[string]bool{root: true}
	urls := []string{root}

	page, err := d.fetcher.Fetch(ctx, root)
	if err != nil {
		zap.L().Debug("discover: root fetch failed, crawling root only",
			zap.String("url", root),
			zap.Error(err),
		)
		return urls, nil
	}

	for _, link := range d.extractLinks(page.Body, base) {
		if len(urls) >= d.maxPages {
			break
		}
		if seen[link] {
			continue
		}
		seen[link] = true
		urls = append(urls, link)
	}

	// Top up from the sitemap when homepage links fall short of the cap.
	if len(urls) < d.maxPages {
		seeded := 0
		for _, su := range d.fetchSitemapURLs(ctx, base) {
			if len(urls) >= d.maxPages {
				break
			}
			if seen[su] || d.matcher.IsExcluded(su) || isAssetURL(su) {
				continue
			}
			seen[su] = true
			urls = append(urls, su)
			seeded++
		}
		if seeded > 0 {
			zap.L().Debug("discover: seeded urls from sitemap",
				zap.String("host", base.Host),
				zap.Int("count", seeded),
			)
		}
	}

	return urls, nil
}

// extractLinks pulls same-host anchor targets from the homepage HTML,
// preserving document order.
func (d *Discoverer) extractLinks(body []byte, base *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "tel:") {
			return
		}

		resolved, err := url.Parse(href)
		if err != nil {
			return
		}
		absolute := base.ResolveReference(resolved)
		if absolute.Host != base.Host {
			return
		}
		absolute.Fragment = ""

		normalized := absolute.String()
		if seen[normalized] || isAssetURL(normalized) || d.matcher.IsExcluded(normalized) {
			return
		}
		seen[normalized] = true
		links = append(links, normalized)
	})
	return links
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []sitemapLoc `xml:"url"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// fetchSitemapURLs fetches and parses /sitemap.xml, returning same-host
// URLs. Sitemap index files (<sitemapindex>) are not followed.
func (d *Discoverer) fetchSitemapURLs(ctx context.Context, base *url.URL) []string {
	sitemapURL := base.Scheme + "://" + base.Host + "/sitemap.xml"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ProspectBot/1.0)")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return nil
	}

	var urlSet sitemapURLSet
	if err := xml.Unmarshal(body, &urlSet); err != nil {
		return nil
	}

	var urls []string
	for _, entry := range urlSet.URLs {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			continue
		}
		u, err := url.Parse(loc)
		if err != nil || u.Host != base.Host {
			continue
		}
		urls = append(urls, loc)
	}
	return urls
}

// normalizeURL ensures a scheme and a non-empty path so the same site
// always yields the same root URL.
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", eris.Errorf("no host in url %q", raw)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.Fragment = ""
	return u.String(), nil
}
