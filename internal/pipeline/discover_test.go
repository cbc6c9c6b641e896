package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/fetch"
)

func newTestDiscoverer(maxPages int) *Discoverer {
	return NewDiscoverer(fetch.NewHTTPFetcher(5*time.Second), NewPathMatcher(nil), maxPages)
}

func TestDiscover_HomepageLinks(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body>
			<a href="/menu">Menu</a>
			<a href="%s/contact">Contact</a>
			<a href="/menu">Menu again</a>
			<a href="/logo.png">Logo</a>
			<a href="/blog/post-1">Post</a>
			<a href="https://other.example.com/page">External</a>
			<a href="#top">Anchor</a>
			<a href="mailto:hi@acme.com">Mail</a>
		</body></html>`, srvURL)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	urls, err := newTestDiscoverer(20).Discover(context.Background(), srv.URL)
	require.NoError(t, err)

	// Root first, then same-host links in document order. Assets, excluded
	// paths, externals, anchors, and mailtos are all filtered.
	assert.Equal(t, []string{
		srv.URL + "/",
		srv.URL + "/menu",
		srv.URL + "/contact",
	}, urls)
}

func TestDiscover_MergesSitemap(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="/menu">Menu</a></body></html>`))
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0"?>
			<urlset>
				<url><loc>%s/about</loc></url>
				<url><loc>%s/menu</loc></url>
				<url><loc>https://elsewhere.example.com/x</loc></url>
			</urlset>`, srvURL, srvURL)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	urls, err := newTestDiscoverer(20).Discover(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, []string{
		srv.URL + "/",
		srv.URL + "/menu",
		srv.URL + "/about",
	}, urls)
}

func TestDiscover_CapsAtMaxPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		for i := 0; i < 30; i++ {
			fmt.Fprintf(w, `<a href="/page-%d">p</a>`, i)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	urls, err := newTestDiscoverer(5).Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, urls, 5)
	assert.Equal(t, srv.URL+"/", urls[0])
}

func TestDiscover_UnreachableRootStillReturnsRoot(t *testing.T) {
	d := newTestDiscoverer(20)
	urls, err := d.Discover(context.Background(), "http://127.0.0.1:1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://127.0.0.1:1/"}, urls)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"acme.com", "https://acme.com/"},
		{"http://acme.com", "http://acme.com/"},
		{"https://acme.com/menu", "https://acme.com/menu"},
		{" https://acme.com ", "https://acme.com/"},
	}
	for _, tt := range tests {
		got, err := normalizeURL(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := normalizeURL("")
	assert.Error(t, err)
}
