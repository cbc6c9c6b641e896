package pipeline

import (
	"net/url"
	"strings"

	"github.com/sells-group/prospect-cli/internal/model"
)

// pathRule maps a URL path segment to a page type. Rules are an ordered
// list so classification is deterministic.
type pathRule struct {
	segment  string
	pageType model.PageType
}

var urlPathRules = []pathRule{
	{"contact", model.PageTypeContact},
	{"contact-us", model.PageTypeContact},
	{"contact_us", model.PageTypeContact},
	{"contactus", model.PageTypeContact},
	{"menu", model.PageTypeMenu},
	{"menus", model.PageTypeMenu},
	{"our-menu", model.PageTypeMenu},
	{"food", model.PageTypeMenu},
	{"about", model.PageTypeAbout},
	{"about-us", model.PageTypeAbout},
	{"about_us", model.PageTypeAbout},
	{"aboutus", model.PageTypeAbout},
	{"our-story", model.PageTypeAbout},
	{"who-we-are", model.PageTypeAbout},
}

// contentRule matches title or heading text when the URL path is
// inconclusive.
type contentRule struct {
	keyword  string
	pageType model.PageType
}

var contentRules = []contentRule{
	{"contact us", model.PageTypeContact},
	{"get in touch", model.PageTypeContact},
	{"our menu", model.PageTypeMenu},
	{"about us", model.PageTypeAbout},
	{"our story", model.PageTypeAbout},
}

// classifyByURL maps a URL path to a page type. The root path is Home.
// Only the first path segment is matched, so deep paths like
// /blog/about-our-team do not false-positive.
func classifyByURL(rawURL string) (model.PageType, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return model.PageTypeHome, true
	}
	if idx := strings.Index(path, "/"); idx > 0 {
		path = path[:idx]
	}
	path = strings.ToLower(path)
	for _, rule := range urlPathRules {
		if rule.segment == path {
			return rule.pageType, true
		}
	}
	return "", false
}

// classifyByContent matches the page title and top heading against known
// keywords. Falls back to Other when nothing matches.
func classifyByContent(title, heading string) model.PageType {
	haystack := strings.ToLower(title + " " + heading)
	for _, rule := range contentRules {
		if strings.Contains(haystack, rule.keyword) {
			return rule.pageType
		}
	}
	return model.PageTypeOther
}

// ClassifyPage determines a page's type from its URL, then from its title
// and top heading. Unmatched pages are Other, never empty.
func ClassifyPage(rawURL, title, heading string) model.PageType {
	if pt, ok := classifyByURL(rawURL); ok {
		return pt
	}
	return classifyByContent(title, heading)
}
