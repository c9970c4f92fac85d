package normalize

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Ticketing platforms recognized from a URL host. Anything else is Unknown.
const (
	PlatformEventbrite       = "Eventbrite"
	PlatformTicketTailor     = "TicketTailor"
	PlatformForbiddenTickets = "ForbiddenTickets"
	PlatformPlura            = "Plura"
	PlatformDice             = "DICE"
	PlatformWithFriends      = "WithFriends"
	PlatformLuma             = "Luma"
	PlatformPartiful         = "Partiful"
	PlatformMeetup           = "Meetup"
	PlatformResidentAdvisor  = "ResidentAdvisor"
	PlatformUnknown          = "Unknown"
)

// ClassifyPlatform tags a URL with the ticketing platform its host implies.
func ClassifyPlatform(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return PlatformUnknown
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.Contains(host, "eventbrite"):
		return PlatformEventbrite
	case strings.Contains(host, "tickettailor"), strings.Contains(host, "buytickets.at"):
		return PlatformTicketTailor
	case strings.Contains(host, "forbiddentickets"):
		return PlatformForbiddenTickets
	case strings.Contains(host, "plura"), strings.Contains(host, "joinbloom.community"):
		return PlatformPlura
	case strings.Contains(host, "dice.fm"):
		return PlatformDice
	case strings.Contains(host, "withfriends"):
		return PlatformWithFriends
	case strings.Contains(host, "lu.ma"):
		return PlatformLuma
	case strings.Contains(host, "partiful"):
		return PlatformPartiful
	case strings.Contains(host, "meetup"):
		return PlatformMeetup
	case strings.Contains(host, "ra.co"):
		return PlatformResidentAdvisor
	default:
		return PlatformUnknown
	}
}

var (
	longDigitsRe    = regexp.MustCompile(`\d{5,}`)
	nonWordRe       = regexp.MustCompile(`\W+`)
	organizerPathRe = regexp.MustCompile(`/o/.*-(\d+)$`)
)

// DeriveOriginalID builds a stable external identifier for an event page URL.
// Numeric platform ids win; otherwise the host+path is slugged.
func DeriveOriginalID(rawURL, platform string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := splitPath(u.Path)
	last := ""
	if len(parts) > 0 {
		last = parts[len(parts)-1]
	}
	if num := longDigitsRe.FindString(last); num != "" {
		return strings.ToLower(platform) + "-" + num
	}
	slug := nonWordRe.ReplaceAllString(u.Hostname(), "-") + "-" + strings.Join(parts, "-")
	if len(slug) > 64 {
		slug = slug[:64]
	}
	return strings.ToLower(slug)
}

// DeriveOrganizerOriginalID extracts an organizer id from profile URLs of the
// form /o/<name>-<digits>. Empty when the URL does not carry one.
func DeriveOrganizerOriginalID(orgURL, platform string) string {
	if orgURL == "" {
		return ""
	}
	u, err := url.Parse(orgURL)
	if err != nil {
		return ""
	}
	if m := organizerPathRe.FindStringSubmatch(u.Path); m != nil {
		return strings.ToLower(platform) + "-" + m[1]
	}
	return ""
}

func splitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// trackingParams are stripped when canonicalizing a URL for storage.
var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"mc_cid", "mc_eid", "fbclid", "gclid",
}

// CanonicalizeURL removes tracking query parameters and a trailing slash,
// keeping the rest of the URL intact. Used for stored/source URLs.
func CanonicalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for _, p := range trackingParams {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}

// CanonicalURLKey reduces a URL to its dedup key: scheme and host lowercased,
// query string and fragment dropped, trailing slash trimmed. Unparseable
// input is returned as-is so it still dedups against itself.
func CanonicalURLKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}

// IsHTTPURL reports whether raw is an absolute http(s) URL.
func IsHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ResolveSourceHost names the source of a URL by its hostname without the
// www prefix; "unknown" when the URL cannot be parsed.
func ResolveSourceHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ToISO parses a loosely formatted timestamp and renders it as RFC3339 UTC.
// Empty string when the value cannot be parsed.
func ToISO(val string) string {
	val = strings.TrimSpace(val)
	if val == "" {
		return ""
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, val); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return ""
}

// IsStartFuture reports whether startISO is at or after nowISO. Unparseable
// start times are kept rather than dropped.
func IsStartFuture(startISO, nowISO string) bool {
	start, err := time.Parse(time.RFC3339, startISO)
	if err != nil {
		return true
	}
	now, err := time.Parse(time.RFC3339, nowISO)
	if err != nil {
		return true
	}
	return !start.Before(now)
}
