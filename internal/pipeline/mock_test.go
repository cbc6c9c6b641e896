package pipeline

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/fetch"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/internal/store"
	"github.com/sells-group/prospect-cli/pkg/pagespeed"
	"github.com/sells-group/prospect-cli/pkg/zoho"
)

// fakeFetcher serves canned HTML per URL. Unknown URLs fail transiently.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls map[string]int
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages, calls: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*fetch.Page, error) {
	f.mu.Lock()
	f.calls[url]++
	f.mu.Unlock()

	body, ok := f.pages[url]
	if !ok {
		return nil, resilience.NewTransientError(eris.Errorf("no route for %s", url), http.StatusServiceUnavailable)
	}
	return &fetch.Page{URL: url, Body: []byte(body), StatusCode: http.StatusOK}, nil
}

func (f *fakeFetcher) fetchCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// fakePSI returns fixed metrics for every URL.
type fakePSI struct {
	score int
	tti   int
}

func (f *fakePSI) Analyze(context.Context, string) (*pagespeed.Metrics, error) {
	score, tti := f.score, f.tti
	return &pagespeed.Metrics{Score: &score, TimeToInteractiveMS: &tti}, nil
}

// fakeCRM is an in-memory zoho.Client.
type fakeCRM struct {
	mu          sync.Mutex
	leads       map[string]*zoho.Lead // keyed by company name
	attachments map[string][]zoho.Attachment
	nextLeadID  int
	uploads     int
	searchErr   error
	uploadErr   error
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		leads:       make(map[string]*zoho.Lead),
		attachments: make(map[string][]zoho.Attachment),
	}
}

func (f *fakeCRM) SearchLeadByCompany(_ context.Context, company string) (*zoho.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if lead, ok := f.leads[company]; ok {
		return lead, nil
	}
	return nil, nil
}

func (f *fakeCRM) CreateLead(_ context.Context, lead zoho.Lead) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextLeadID++
	lead.ID = "lead-" + string(rune('0'+f.nextLeadID))
	f.leads[lead.Company] = &lead
	return lead.ID, nil
}

func (f *fakeCRM) ListAttachments(_ context.Context, leadID string) ([]zoho.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attachments[leadID], nil
}

func (f *fakeCRM) UploadAttachment(_ context.Context, leadID, fileName string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads++
	f.attachments[leadID] = append(f.attachments[leadID], zoho.Attachment{
		ID:       fileName,
		FileName: fileName,
	})
	return nil
}

func (f *fakeCRM) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}
