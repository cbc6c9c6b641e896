package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatformForHost(t *testing.T) {
	tests := []struct {
		host     string
		platform string
		known    bool
	}{
		{"facebook.com", "facebook", true},
		{"www.facebook.com", "facebook", true},
		{"m.facebook.com", "facebook", true},
		{"fb.com", "facebook", true},
		{"x.com", "twitter", true},
		{"twitter.com", "twitter", true},
		{"youtu.be", "youtube", true},
		{"TikTok.com", "tiktok", true},
		{"notfacebook.com", "", false},
		{"facebook.com.evil.example", "", false},
		{"example.com", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			platform, ok := PlatformForHost(tt.host)
			assert.Equal(t, tt.known, ok)
			assert.Equal(t, tt.platform, platform)
		})
	}
}

func TestPlatformForURL(t *testing.T) {
	assert.Equal(t, "instagram", PlatformForURL("https://instagram.com/acme"))
	assert.Equal(t, "facebook", PlatformForURL("https://www.facebook.com/acme?ref=site"))
	assert.Equal(t, "", PlatformForURL("https://example.com/facebook"))
	assert.Equal(t, "", PlatformForURL("/relative/path"))
	assert.Equal(t, "", PlatformForURL("://not-a-url"))
}

func TestSocialLinksRoundTrip(t *testing.T) {
	links := []SocialLink{
		{Platform: "facebook", URL: "https://facebook.com/acme"},
		{Platform: "instagram", URL: "https://instagram.com/acme"},
		{Platform: "youtube", URL: "https://youtube.com/@acme"},
	}

	wire := FormatSocialLinks(links)
	assert.Equal(t, "facebook:https://facebook.com/acme,instagram:https://instagram.com/acme,youtube:https://youtube.com/@acme", wire)
	assert.Equal(t, links, ParseSocialLinks(wire))
}

func TestFormatSocialLinks_Empty(t *testing.T) {
	assert.Equal(t, "", FormatSocialLinks(nil))
	assert.Equal(t, "", FormatSocialLinks([]SocialLink{}))
}

func TestParseSocialLinks_Malformed(t *testing.T) {
	// Pre-migration rows read as empty.
	assert.Nil(t, ParseSocialLinks(""))
	assert.Nil(t, ParseSocialLinks("   "))

	// Tokens without a platform separator are skipped.
	links := ParseSocialLinks("facebook:https://facebook.com/a,garbage,:nourl,noplatform:")
	assert.Equal(t, []SocialLink{{Platform: "facebook", URL: "https://facebook.com/a"}}, links)
}

func TestBusinessDomain(t *testing.T) {
	tests := []struct {
		website string
		want    string
	}{
		{"https://www.acmediner.com", "acmediner.com"},
		{"acmediner.com", "acmediner.com"},
		{"http://ACMEDINER.COM/menu", "acmediner.com"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		b := Business{Website: tt.website}
		assert.Equal(t, tt.want, b.Domain())
	}
}

func TestValidPageType(t *testing.T) {
	for _, pt := range AllPageTypes() {
		assert.True(t, ValidPageType(pt))
	}
	assert.False(t, ValidPageType(PageType("")))
	assert.False(t, ValidPageType(PageType("Landing")))
}
