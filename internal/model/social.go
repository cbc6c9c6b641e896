package model

import (
	"net/url"
	"strings"
)

// SocialLink is a (platform, URL) pair identifying a business's presence
// on a known social platform.
type SocialLink struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// socialDomains maps social-platform host suffixes to platform tokens.
// x.com is the rebranded twitter.com and maps to the same token.
var socialDomains = map[string]string{
	"facebook.com":  "facebook",
	"fb.com":        "facebook",
	"instagram.com": "instagram",
	"linkedin.com":  "linkedin",
	"twitter.com":   "twitter",
	"x.com":         "twitter",
	"youtube.com":   "youtube",
	"youtu.be":      "youtube",
	"tiktok.com":    "tiktok",
}

// PlatformForHost returns the platform token for a host, matching the
// registered domain and any subdomain of it. Returns ("", false) for
// hosts outside the known-platform set.
func PlatformForHost(host string) (string, bool) {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for domain, platform := range socialDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return platform, true
		}
	}
	return "", false
}

// PlatformForURL returns the platform token for an absolute URL, or ""
// when the URL's host is not a known platform.
func PlatformForURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	platform, ok := PlatformForHost(u.Hostname())
	if !ok {
		return ""
	}
	return platform
}

// FormatSocialLinks serializes links to the comma-separated
// "platform:url" wire format used by the social_links column. URLs
// containing a literal comma break the format; that is a documented
// limitation, not handled here.
func FormatSocialLinks(links []SocialLink) string {
	if len(links) == 0 {
		return ""
	}
	tokens := make([]string, 0, len(links))
	for _, l := range links {
		tokens = append(tokens, l.Platform+":"+l.URL)
	}
	return strings.Join(tokens, ",")
}

// ParseSocialLinks parses the wire format back into the ordered pair
// list that produced it. Rows written before the column existed read as
// an empty list. Tokens without a platform separator are skipped.
func ParseSocialLinks(s string) []SocialLink {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var links []SocialLink
	for _, token := range strings.Split(s, ",") {
		parts := strings.SplitN(token, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		links = append(links, SocialLink{Platform: parts[0], URL: parts[1]})
	}
	return links
}
