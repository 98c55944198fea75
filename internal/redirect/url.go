package redirect

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/click-redirector/internal/codec"
)

// ClickIDPlaceholder is replaced with the click token in link targets.
const ClickIDPlaceholder = "{click_id}"

// ComposeFinalURL embeds token into target. Targets carrying the placeholder
// have every occurrence replaced; others get a click_id query parameter
// appended ahead of any fragment.
func ComposeFinalURL(target, token string) string {
	escaped := url.QueryEscape(token)
	if strings.Contains(target, ClickIDPlaceholder) {
		return strings.ReplaceAll(target, ClickIDPlaceholder, escaped)
	}
	base, fragment, hasFragment := strings.Cut(target, "#")
	switch {
	case strings.HasSuffix(base, "?"), strings.HasSuffix(base, "&"):
	case strings.Contains(base, "?"):
		base += "&"
	default:
		base += "?"
	}
	base += "click_id=" + escaped
	if hasFragment {
		base += "#" + fragment
	}
	return base
}

// VideoHopURL wraps dest in the video interstitial.
func VideoHopURL(videoPath, dest string) string {
	return videoPath + "?dest=" + codec.EncodeDestination(dest)
}

// StealthParams are the display parameters carried on the stealth hop.
type StealthParams struct {
	TrackerID string
	Country   string
	MaskedIP  string
	Network   string
}

// StealthURL wraps dest in the referrer-stripping hop. Parameters keep a
// fixed order.
func StealthURL(stealthPath string, p StealthParams, dest string) string {
	var b strings.Builder
	b.WriteString(stealthPath)
	b.WriteString("?click_id=")
	b.WriteString(url.QueryEscape(p.TrackerID))
	b.WriteString("&country_code=")
	b.WriteString(url.QueryEscape(strings.ToLower(p.Country)))
	b.WriteString("&user_agent=web")
	b.WriteString("&ip_address=")
	b.WriteString(url.QueryEscape(p.MaskedIP))
	b.WriteString("&user_lp=")
	b.WriteString(url.QueryEscape(strings.ToLower(p.Network)))
	b.WriteString("&dest=")
	b.WriteString(codec.EncodeDestination(dest))
	return b.String()
}
