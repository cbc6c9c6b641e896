package pipeline

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/prospect-cli/internal/fetch"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/pkg/pagespeed"
)

var emailRe = regexp.MustCompile(`[\w._%+-]+@[\w.-]+\.[a-zA-Z]{2,}`)

const maxSummaryLen = 200

// Processor turns fetched HTML into a classified, extracted BusinessPage.
// Processing never fails: malformed content degrades to a minimal record
// so one bad page cannot stall the pipeline.
type Processor struct {
	businessDomain string
}

// NewProcessor creates a Processor. businessDomain is used to prefer
// same-domain contact emails (e.g. "acmediner.com").
func NewProcessor(businessDomain string) *Processor {
	return &Processor{businessDomain: strings.ToLower(businessDomain)}
}

// Process builds the BusinessPage row for a fetched page. Performance
// metrics may be nil when measurement failed; the row is still complete.
func (p *Processor) Process(businessID string, page *fetch.Page, metrics *pagespeed.Metrics) model.BusinessPage {
	row := model.BusinessPage{
		BusinessID: businessID,
		URL:        page.URL,
		PageType:   model.PageTypeOther,
	}
	if metrics != nil {
		row.PageSpeedScore = metrics.Score
		row.TimeToInteractiveMS = metrics.TimeToInteractiveMS
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return row
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	heading := strings.TrimSpace(doc.Find("h1").First().Text())

	row.PageType = ClassifyPage(page.URL, title, heading)
	row.Summary = extractSummary(doc, title)
	row.Email = p.extractEmail(doc)
	row.SocialLinks = extractSocialLinks(doc)
	return row
}

// extractEmail returns the first well-formed email address, scanning
// mailto: anchors before visible text and preferring the business's own
// domain. Absence yields an empty string, not an error.
func (p *Processor) extractEmail(doc *goquery.Document) string {
	var candidates []string
	seen := make(map[string]bool)

	add := func(email string) {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" || seen[email] || !emailRe.MatchString(email) {
			return
		}
		seen[email] = true
		candidates = append(candidates, email)
	}

	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if idx := strings.Index(addr, "?"); idx >= 0 {
			addr = addr[:idx]
		}
		add(addr)
	})
	for _, m := range emailRe.FindAllString(doc.Text(), -1) {
		add(m)
	}

	if len(candidates) == 0 {
		return ""
	}
	if p.businessDomain != "" {
		for _, c := range candidates {
			if strings.HasSuffix(c, "@"+p.businessDomain) || strings.Contains(c, p.businessDomain) {
				return c
			}
		}
	}
	return candidates[0]
}

// extractSocialLinks scans anchors for known social-platform hosts in
// document order. Each platform is recorded once, first occurrence wins.
func extractSocialLinks(doc *goquery.Document) []model.SocialLink {
	seen := make(map[string]bool)
	var links []model.SocialLink

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		platform := model.PlatformForURL(href)
		if platform == "" || seen[platform] {
			return
		}
		seen[platform] = true
		links = append(links, model.SocialLink{Platform: platform, URL: href})
	})
	return links
}

// extractSummary prefers the meta description, then the OpenGraph
// description, then the first paragraph, then the title.
func extractSummary(doc *goquery.Document, title string) string {
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		if s := strings.TrimSpace(desc); s != "" {
			return truncate(s, maxSummaryLen)
		}
	}
	if desc, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		if s := strings.TrimSpace(desc); s != "" {
			return truncate(s, maxSummaryLen)
		}
	}

	var para string
	doc.Find("p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if len(text) >= 40 {
			para = text
			return false
		}
		return true
	})
	if para != "" {
		return truncate(para, maxSummaryLen)
	}
	return truncate(title, maxSummaryLen)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back up to a rune boundary so the cut never splits a multibyte
	// character.
	end := max
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	cut := s[:end]
	if idx := strings.LastIndex(cut, " "); idx > max/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}
