// Package detector classifies inbound user agents: social preview crawlers
// that should receive Open Graph markup, and mobile versus desktop visitors.
package detector

import "strings"

// UnknownUserAgent is substituted when the request carries no User-Agent.
const UnknownUserAgent = "Unknown"

// Platform tags embedded in click tokens and broadcast events.
const (
	PlatformMobile = "MOB"
	PlatformWeb    = "WEB"
)

// DefaultCrawlerSignatures lists the preview fetchers recognized out of the box.
var DefaultCrawlerSignatures = []string{
	"facebookexternalhit",
	"Facebot",
	"Twitterbot",
	"LinkedInBot",
	"WhatsApp",
	"TelegramBot",
	"Slackbot",
	"Discordbot",
	"Pinterest",
	"Googlebot",
	"bingbot",
	"Applebot",
}

// Crawler matches user agents against a fixed signature set.
type Crawler struct {
	signatures []string
}

// NewCrawler builds a classifier from the default signatures plus extra.
// Signatures are matched case-insensitively as substrings.
func NewCrawler(extra ...string) *Crawler {
	sigs := make([]string, 0, len(DefaultCrawlerSignatures)+len(extra))
	seen := make(map[string]struct{}, cap(sigs))
	for _, s := range append(append([]string(nil), DefaultCrawlerSignatures...), extra...) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		sigs = append(sigs, s)
	}
	return &Crawler{signatures: sigs}
}

// NewCrawlerWithSignatures builds a classifier from exactly sigs.
func NewCrawlerWithSignatures(sigs []string) *Crawler {
	out := make([]string, 0, len(sigs))
	for _, s := range sigs {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return &Crawler{signatures: out}
}

// IsCrawler reports whether userAgent matches any signature.
func (c *Crawler) IsCrawler(userAgent string) bool {
	if c == nil || len(c.signatures) == 0 {
		return false
	}
	ua := strings.ToLower(userAgent)
	for _, sig := range c.signatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}

// Signatures returns a copy of the lowercased signature set.
func (c *Crawler) Signatures() []string {
	return append([]string(nil), c.signatures...)
}

// Platform derives the 3-character platform tag from a user agent.
func Platform(userAgent string) string {
	if strings.Contains(strings.ToLower(userAgent), "mobile") {
		return PlatformMobile
	}
	return PlatformWeb
}

// NormalizeUserAgent substitutes UnknownUserAgent for an empty header.
func NormalizeUserAgent(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return UnknownUserAgent
	}
	return userAgent
}
