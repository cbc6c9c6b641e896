package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Pool abstracts the pgx connection pool so tests can substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	website      TEXT,
	address      TEXT,
	city         TEXT,
	state        TEXT,
	phone        TEXT,
	rating       DOUBLE PRECISION,
	review_count INTEGER,
	categories   TEXT,
	zoho_lead_id TEXT
);

CREATE TABLE IF NOT EXISTS business_pages (
	id                     TEXT PRIMARY KEY,
	business_id            TEXT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
	url                    TEXT NOT NULL,
	page_type              TEXT NOT NULL DEFAULT 'Other',
	summary                TEXT NOT NULL DEFAULT '',
	email                  TEXT,
	page_speed_score       INTEGER,
	time_to_interactive_ms INTEGER,
	degraded               BOOLEAN NOT NULL DEFAULT false,
	crawled_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (business_id, url)
);

CREATE INDEX IF NOT EXISTS idx_business_pages_business_id ON business_pages(business_id);

ALTER TABLE business_pages ADD COLUMN IF NOT EXISTS social_links TEXT;
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertBusiness(ctx context.Context, b model.Business) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO businesses (id, name, website, address, city, state, phone, rating, review_count, categories, zoho_lead_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''))
		ON CONFLICT (id) DO UPDATE SET
			name         = excluded.name,
			website      = excluded.website,
			address      = excluded.address,
			city         = excluded.city,
			state        = excluded.state,
			phone        = excluded.phone,
			rating       = excluded.rating,
			review_count = excluded.review_count,
			categories   = excluded.categories,
			zoho_lead_id = COALESCE(excluded.zoho_lead_id, businesses.zoho_lead_id)`,
		b.ID, b.Name, b.Website, b.Address, b.City, b.State, b.Phone,
		b.Rating, b.ReviewCount, b.Categories, b.ZohoLeadID,
	)
	return eris.Wrapf(err, "postgres: upsert business %s", b.ID)
}

func (s *PostgresStore) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, website, address, city, state, phone, rating, review_count, categories, zoho_lead_id
		 FROM businesses WHERE id = $1`, id)
	b, err := scanBusiness(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("business not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get business %s", id)
	}
	return b, nil
}

func (s *PostgresStore) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.Business, error) {
	query := `SELECT id, name, website, address, city, state, phone, rating, review_count, categories, zoho_lead_id
		FROM businesses WHERE true`
	var args []any

	if filter.ID != "" {
		args = append(args, filter.ID)
		query += ` AND id = $1`
	}
	if filter.WithWebsite {
		query += ` AND website IS NOT NULL AND website <> ''`
	}
	query += ` ORDER BY name`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list businesses")
	}
	defer rows.Close()

	var businesses []model.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan business")
		}
		businesses = append(businesses, *b)
	}
	return businesses, eris.Wrap(rows.Err(), "postgres: list businesses iterate")
}

func (s *PostgresStore) UpdateLeadID(ctx context.Context, businessID, leadID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE businesses SET zoho_lead_id = $1 WHERE id = $2`,
		leadID, businessID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead id for %s", businessID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("business not found: %s", businessID)
	}
	return nil
}

const postgresUpsertPreserve = `
INSERT INTO business_pages (id, business_id, url, page_type, summary, email, social_links, page_speed_score, time_to_interactive_ms, degraded, crawled_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11)
ON CONFLICT (business_id, url) DO UPDATE SET
	page_type              = CASE WHEN excluded.page_type <> 'Other' THEN excluded.page_type ELSE business_pages.page_type END,
	summary                = CASE WHEN excluded.summary <> '' THEN excluded.summary ELSE business_pages.summary END,
	email                  = COALESCE(excluded.email, business_pages.email),
	social_links           = COALESCE(excluded.social_links, business_pages.social_links),
	page_speed_score       = COALESCE(excluded.page_speed_score, business_pages.page_speed_score),
	time_to_interactive_ms = COALESCE(excluded.time_to_interactive_ms, business_pages.time_to_interactive_ms),
	degraded               = excluded.degraded,
	crawled_at             = excluded.crawled_at`

const postgresUpsertOverwrite = `
INSERT INTO business_pages (id, business_id, url, page_type, summary, email, social_links, page_speed_score, time_to_interactive_ms, degraded, crawled_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11)
ON CONFLICT (business_id, url) DO UPDATE SET
	page_type              = excluded.page_type,
	summary                = excluded.summary,
	email                  = excluded.email,
	social_links           = excluded.social_links,
	page_speed_score       = excluded.page_speed_score,
	time_to_interactive_ms = excluded.time_to_interactive_ms,
	degraded               = excluded.degraded,
	crawled_at             = excluded.crawled_at`

func (s *PostgresStore) UpsertPage(ctx context.Context, page model.BusinessPage, overwrite bool) error {
	if page.ID == "" {
		page.ID = uuid.New().String()
	}
	if page.PageType == "" {
		page.PageType = model.PageTypeOther
	}
	if page.CrawledAt.IsZero() {
		page.CrawledAt = time.Now().UTC()
	}

	query := postgresUpsertPreserve
	if overwrite {
		query = postgresUpsertOverwrite
	}

	_, err := s.pool.Exec(ctx, query,
		page.ID, page.BusinessID, page.URL, string(page.PageType), page.Summary,
		page.Email, model.FormatSocialLinks(page.SocialLinks),
		page.PageSpeedScore, page.TimeToInteractiveMS, page.Degraded, page.CrawledAt,
	)
	return eris.Wrapf(err, "postgres: upsert page %s", page.URL)
}

func (s *PostgresStore) ListPages(ctx context.Context, businessID string) ([]model.BusinessPage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, business_id, url, page_type, summary, email, social_links, page_speed_score, time_to_interactive_ms, degraded, crawled_at
		 FROM business_pages WHERE business_id = $1 ORDER BY crawled_at, id`,
		businessID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list pages for %s", businessID)
	}
	defer rows.Close()

	var pages []model.BusinessPage
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan page")
		}
		pages = append(pages, *p)
	}
	return pages, eris.Wrap(rows.Err(), "postgres: list pages iterate")
}

func (s *PostgresStore) CrawledURLs(ctx context.Context, businessID string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT url FROM business_pages WHERE business_id = $1`, businessID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: crawled urls for %s", businessID)
	}
	defer rows.Close()

	urls := make(map[string]bool)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, eris.Wrap(err, "postgres: scan url")
		}
		urls[u] = true
	}
	return urls, eris.Wrap(rows.Err(), "postgres: crawled urls iterate")
}
