package model

import (
	"net/url"
	"strings"
)

// Business is one row per external-directory entity. The ingestion side
// (Yelp/Google clients) owns every field except ZohoLeadID, which the
// publisher backfills after lead lookup or creation.
type Business struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Website     string  `json:"website"`
	Address     string  `json:"address,omitempty"`
	City        string  `json:"city,omitempty"`
	State       string  `json:"state,omitempty"`
	Phone       string  `json:"phone,omitempty"`
	Rating      float64 `json:"rating,omitempty"`
	ReviewCount int     `json:"review_count,omitempty"`
	Categories  string  `json:"categories,omitempty"`
	ZohoLeadID  string  `json:"zoho_lead_id,omitempty"`
}

// HasWebsite reports whether the business has a crawlable website URL.
func (b Business) HasWebsite() bool {
	return strings.TrimSpace(b.Website) != ""
}

// Domain returns the host portion of the business website, without any
// "www." prefix. Empty when the website is missing or unparseable.
func (b Business) Domain() string {
	w := strings.TrimSpace(b.Website)
	if w == "" {
		return ""
	}
	if !strings.Contains(w, "://") {
		w = "https://" + w
	}
	u, err := url.Parse(w)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}
