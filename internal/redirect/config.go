package redirect

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultSafeURL        = "https://www.youtube.com/watch?v=rQ9YQJ3JpWw"
	DefaultStealthPath    = "/_meetups/r.php"
	DefaultVideoPath      = "/_video/landing"
	DefaultVideoCountdown = 3
	// MaxUserAgentLength caps the user agent stored with a click.
	MaxUserAgentLength = 500
	// UnknownNetwork stands in for links without an advertising network.
	UnknownNetwork = "UNKNOWN"
)

// DefaultBlockedCountries is the geo gate used when none is configured.
var DefaultBlockedCountries = []string{"ID"}

// DefaultVideoAssets are the two interstitial clips.
var DefaultVideoAssets = []string{"/videos/video1.mp4", "/videos/video2.mp4"}

// Config holds the policy knobs of the redirect chain.
type Config struct {
	// BlockedCountries are ISO codes redirected to SafeURL. An empty, non-nil
	// slice disables the gate.
	BlockedCountries []string
	SafeURL          string
	StealthPath      string
	VideoPath        string
	VideoAssets      []string
	// StealthDelay holds the stealth page before it navigates. Zero navigates
	// immediately.
	StealthDelay time.Duration
	// VideoCountdown is in whole seconds.
	VideoCountdown int
}

func (c Config) withDefaults() Config {
	if c.BlockedCountries == nil {
		c.BlockedCountries = DefaultBlockedCountries
	}
	if c.SafeURL == "" {
		c.SafeURL = DefaultSafeURL
	}
	if c.StealthPath == "" {
		c.StealthPath = DefaultStealthPath
	}
	if c.VideoPath == "" {
		c.VideoPath = DefaultVideoPath
	}
	if len(c.VideoAssets) == 0 {
		c.VideoAssets = DefaultVideoAssets
	}
	if c.StealthDelay < 0 {
		c.StealthDelay = 0
	}
	if c.VideoCountdown <= 0 {
		c.VideoCountdown = DefaultVideoCountdown
	}
	return c
}

func (c Config) validate() error {
	u, err := url.Parse(c.SafeURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("safe url %q must be an absolute http(s) URL", c.SafeURL)
	}
	for name, p := range map[string]string{"stealth": c.StealthPath, "video": c.VideoPath} {
		if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
			return fmt.Errorf("%s path %q must be rooted", name, p)
		}
	}
	if c.StealthPath == c.VideoPath {
		return fmt.Errorf("stealth and video paths must differ")
	}
	return nil
}

func (c Config) blockedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.BlockedCountries))
	for _, code := range c.BlockedCountries {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			set[code] = struct{}{}
		}
	}
	return set
}
