package model

import "time"

// PageType classifies a crawled page's role on a business website.
type PageType string

const (
	PageTypeHome    PageType = "Home"
	PageTypeContact PageType = "Contact"
	PageTypeMenu    PageType = "Menu"
	PageTypeAbout   PageType = "About"
	PageTypeOther   PageType = "Other"
)

// AllPageTypes returns all defined page types.
func AllPageTypes() []PageType {
	return []PageType{
		PageTypeHome,
		PageTypeContact,
		PageTypeMenu,
		PageTypeAbout,
		PageTypeOther,
	}
}

// ValidPageType reports whether pt is one of the defined page types.
func ValidPageType(pt PageType) bool {
	for _, t := range AllPageTypes() {
		if t == pt {
			return true
		}
	}
	return false
}

// BusinessPage is one crawled-and-classified page belonging to a
// business's own website. At most one row exists per (business, URL);
// re-crawling updates the row in place.
type BusinessPage struct {
	ID                  string       `json:"id"`
	BusinessID          string       `json:"business_id"`
	URL                 string       `json:"url"`
	PageType            PageType     `json:"page_type"`
	Summary             string       `json:"summary,omitempty"`
	Email               string       `json:"email,omitempty"`
	SocialLinks         []SocialLink `json:"social_links,omitempty"`
	PageSpeedScore      *int         `json:"page_speed_score,omitempty"`
	TimeToInteractiveMS *int         `json:"time_to_interactive_ms,omitempty"`
	Degraded            bool         `json:"degraded,omitempty"`
	CrawledAt           time.Time    `json:"crawled_at"`
}
