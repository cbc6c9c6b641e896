package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospect-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas are applied to every pooled connection via the DSN.
// busy_timeout and foreign_keys are per-connection settings; setting them
// with a one-off Exec would leave other pool connections unprotected
// under concurrent upserts.
const sqlitePragmas = "_pragma=journal_mode(WAL)" +
	"&_pragma=busy_timeout(5000)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=foreign_keys(1)"

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. Foreign keys are enabled so business deletion cascades to pages.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", dsn+sep+sqlitePragmas)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	website      TEXT,
	address      TEXT,
	city         TEXT,
	state        TEXT,
	phone        TEXT,
	rating       REAL,
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
	degraded               INTEGER NOT NULL DEFAULT 0,
	crawled_at             DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (business_id, url)
);

CREATE INDEX IF NOT EXISTS idx_business_pages_business_id ON business_pages(business_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}

	// Additive social_links migration. SQLite has no ADD COLUMN IF NOT
	// EXISTS, so guard with pragma_table_info. Rows written before the
	// column existed read as an empty list.
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('business_pages') WHERE name = 'social_links'`,
	).Scan(&n)
	if err != nil {
		return eris.Wrap(err, "sqlite: check social_links column")
	}
	if n == 0 {
		if _, err := s.db.ExecContext(ctx,
			`ALTER TABLE business_pages ADD COLUMN social_links TEXT`,
		); err != nil {
			return eris.Wrap(err, "sqlite: add social_links column")
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertBusiness(ctx context.Context, b model.Business) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO businesses (id, name, website, address, city, state, phone, rating, review_count, categories, zoho_lead_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''))
		ON CONFLICT(id) DO UPDATE SET
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
	return eris.Wrapf(err, "sqlite: upsert business %s", b.ID)
}

func (s *SQLiteStore) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, website, address, city, state, phone, rating, review_count, categories, zoho_lead_id
		 FROM businesses WHERE id = ?`, id)
	b, err := scanBusiness(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("business not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get business %s", id)
	}
	return b, nil
}

func (s *SQLiteStore) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.Business, error) {
	query := `SELECT id, name, website, address, city, state, phone, rating, review_count, categories, zoho_lead_id
		FROM businesses WHERE 1=1`
	var args []any

	if filter.ID != "" {
		query += ` AND id = ?`
		args = append(args, filter.ID)
	}
	if filter.WithWebsite {
		query += ` AND website IS NOT NULL AND website <> ''`
	}
	query += ` ORDER BY name`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list businesses")
	}
	defer rows.Close()

	var businesses []model.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan business")
		}
		businesses = append(businesses, *b)
	}
	return businesses, eris.Wrap(rows.Err(), "sqlite: list businesses iterate")
}

func (s *SQLiteStore) UpdateLeadID(ctx context.Context, businessID, leadID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE businesses SET zoho_lead_id = ? WHERE id = ?`,
		leadID, businessID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead id for %s", businessID)
	}
	return checkRowsAffected(res, "business", businessID)
}

// sqliteUpsertPreserve keeps previously extracted non-empty fields when
// the incoming row has nothing better; a degraded re-crawl never
// regresses a populated row.
const sqliteUpsertPreserve = `
INSERT INTO business_pages (id, business_id, url, page_type, summary, email, social_links, page_speed_score, time_to_interactive_ms, degraded, crawled_at)
VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?)
ON CONFLICT(business_id, url) DO UPDATE SET
	page_type              = CASE WHEN excluded.page_type <> 'Other' THEN excluded.page_type ELSE business_pages.page_type END,
	summary                = CASE WHEN excluded.summary <> '' THEN excluded.summary ELSE business_pages.summary END,
	email                  = COALESCE(excluded.email, business_pages.email),
	social_links           = COALESCE(excluded.social_links, business_pages.social_links),
	page_speed_score       = COALESCE(excluded.page_speed_score, business_pages.page_speed_score),
	time_to_interactive_ms = COALESCE(excluded.time_to_interactive_ms, business_pages.time_to_interactive_ms),
	degraded               = excluded.degraded,
	crawled_at             = excluded.crawled_at`

const sqliteUpsertOverwrite = `
INSERT INTO business_pages (id, business_id, url, page_type, summary, email, social_links, page_speed_score, time_to_interactive_ms, degraded, crawled_at)
VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?)
ON CONFLICT(business_id, url) DO UPDATE SET
	page_type              = excluded.page_type,
	summary                = excluded.summary,
	email                  = excluded.email,
	social_links           = excluded.social_links,
	page_speed_score       = excluded.page_speed_score,
	time_to_interactive_ms = excluded.time_to_interactive_ms,
	degraded               = excluded.degraded,
	crawled_at             = excluded.crawled_at`

func (s *SQLiteStore) UpsertPage(ctx context.Context, page model.BusinessPage, overwrite bool) error {
	if page.ID == "" {
		page.ID = uuid.New().String()
	}
	if page.PageType == "" {
		page.PageType = model.PageTypeOther
	}
	if page.CrawledAt.IsZero() {
		page.CrawledAt = time.Now().UTC()
	}

	query := sqliteUpsertPreserve
	if overwrite {
		query = sqliteUpsertOverwrite
	}

	_, err := s.db.ExecContext(ctx, query,
		page.ID, page.BusinessID, page.URL, string(page.PageType), page.Summary,
		page.Email, model.FormatSocialLinks(page.SocialLinks),
		page.PageSpeedScore, page.TimeToInteractiveMS, page.Degraded, page.CrawledAt,
	)
	return eris.Wrapf(err, "sqlite: upsert page %s", page.URL)
}

func (s *SQLiteStore) ListPages(ctx context.Context, businessID string) ([]model.BusinessPage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, business_id, url, page_type, summary, email, social_links, page_speed_score, time_to_interactive_ms, degraded, crawled_at
		 FROM business_pages WHERE business_id = ? ORDER BY crawled_at, id`,
		businessID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list pages for %s", businessID)
	}
	defer rows.Close()

	var pages []model.BusinessPage
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan page")
		}
		pages = append(pages, *p)
	}
	return pages, eris.Wrap(rows.Err(), "sqlite: list pages iterate")
}

func (s *SQLiteStore) CrawledURLs(ctx context.Context, businessID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url FROM business_pages WHERE business_id = ?`, businessID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: crawled urls for %s", businessID)
	}
	defer rows.Close()

	urls := make(map[string]bool)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan url")
		}
		urls[u] = true
	}
	return urls, eris.Wrap(rows.Err(), "sqlite: crawled urls iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBusiness(row scannable) (*model.Business, error) {
	var b model.Business
	var website, address, city, state, phone, categories, leadID sql.NullString
	var rating sql.NullFloat64
	var reviewCount sql.NullInt64

	err := row.Scan(&b.ID, &b.Name, &website, &address, &city, &state, &phone,
		&rating, &reviewCount, &categories, &leadID)
	if err != nil {
		return nil, err
	}

	b.Website = website.String
	b.Address = address.String
	b.City = city.String
	b.State = state.String
	b.Phone = phone.String
	b.Rating = rating.Float64
	b.ReviewCount = int(reviewCount.Int64)
	b.Categories = categories.String
	b.ZohoLeadID = leadID.String
	return &b, nil
}

func scanPage(row scannable) (*model.BusinessPage, error) {
	var p model.BusinessPage
	var pageType string
	var email, socialLinks sql.NullString
	var score, tti sql.NullInt64

	err := row.Scan(&p.ID, &p.BusinessID, &p.URL, &pageType, &p.Summary,
		&email, &socialLinks, &score, &tti, &p.Degraded, &p.CrawledAt)
	if err != nil {
		return nil, err
	}

	p.PageType = model.PageType(pageType)
	p.Email = email.String
	p.SocialLinks = model.ParseSocialLinks(socialLinks.String)
	if score.Valid {
		v := int(score.Int64)
		p.PageSpeedScore = &v
	}
	if tti.Valid {
		v := int(tti.Int64)
		p.TimeToInteractiveMS = &v
	}
	return &p, nil
}
