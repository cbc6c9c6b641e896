package store

import (
	"context"

	"github.com/sells-group/prospect-cli/internal/model"
)

// BusinessFilter specifies criteria for listing businesses.
type BusinessFilter struct {
	ID          string `json:"id,omitempty"`
	WithWebsite bool   `json:"with_website,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for the enrichment pipeline.
// Page upserts are atomic on the (business_id, url) unique key, so
// concurrent crawl tasks need no in-process locking.
type Store interface {
	// Businesses. Rows are created by the ingestion side; the core reads
	// them and backfills the CRM lead id.
	UpsertBusiness(ctx context.Context, b model.Business) error
	GetBusiness(ctx context.Context, id string) (*model.Business, error)
	ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.Business, error)
	UpdateLeadID(ctx context.Context, businessID, leadID string) error

	// Pages. UpsertPage inserts or updates the single row for
	// (page.BusinessID, page.URL). With overwrite false, non-empty
	// persisted extraction fields are preserved when the incoming value
	// is empty; with overwrite true (forced-refresh success) the incoming
	// values win unconditionally.
	UpsertPage(ctx context.Context, page model.BusinessPage, overwrite bool) error
	ListPages(ctx context.Context, businessID string) ([]model.BusinessPage, error)
	CrawledURLs(ctx context.Context, businessID string) (map[string]bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
