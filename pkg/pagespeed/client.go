// Package pagespeed wraps the Google PageSpeed Insights v5 API.
package pagespeed

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://www.googleapis.com/pagespeedonline/v5"

// Client performs PageSpeed Insights API operations.
type Client interface {
	Analyze(ctx context.Context, pageURL string) (*Metrics, error)
}

// Metrics holds the performance numbers extracted from a Lighthouse run.
// Either field may be nil when the audit did not produce a value.
type Metrics struct {
	// Score is the performance category score on a 0-100 scale.
	Score *int
	// TimeToInteractiveMS is the interactive audit value in milliseconds.
	TimeToInteractiveMS *int
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithStrategy sets the analysis strategy ("desktop" or "mobile").
func WithStrategy(strategy string) Option {
	return func(c *httpClient) {
		c.strategy = strategy
	}
}

type httpClient struct {
	apiKey   string
	baseURL  string
	strategy string
	http     *http.Client
}

// NewClient creates a PageSpeed Insights client. The API key may be empty;
// Google serves unauthenticated requests at a much lower quota.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		strategy: "desktop",
		http: &http.Client{
			// Lighthouse runs are slow; the API regularly takes >30s.
			Timeout: 60 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type runResponse struct {
	LighthouseResult struct {
		Categories struct {
			Performance struct {
				Score *float64 `json:"score"`
			} `json:"performance"`
		} `json:"categories"`
		Audits struct {
			Interactive struct {
				NumericValue *float64 `json:"numericValue"`
			} `json:"interactive"`
		} `json:"audits"`
	} `json:"lighthouseResult"`
}

func (c *httpClient) Analyze(ctx context.Context, pageURL string) (*Metrics, error) {
	q := url.Values{}
	q.Set("url", pageURL)
	q.Set("strategy", c.strategy)
	q.Set("category", "performance")
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/runPagespeed?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "pagespeed: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "pagespeed: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "pagespeed: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("pagespeed: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result runResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "pagespeed: unmarshal response")
	}

	m := &Metrics{}
	if s := result.LighthouseResult.Categories.Performance.Score; s != nil {
		// Lighthouse reports the score as 0-1.
		v := int(math.Round(*s * 100))
		m.Score = &v
	}
	if n := result.LighthouseResult.Audits.Interactive.NumericValue; n != nil {
		v := int(math.Round(*n))
		m.TimeToInteractiveMS = &v
	}
	return m, nil
}
