package utils

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// noiseSelectors lists nodes that never carry event content and only burn
// prompt budget.
const noiseSelectors = "script, style, noscript, iframe, svg, link[rel='stylesheet'], img[src^='data:image/']"

var (
	spaceRunRe   = regexp.MustCompile(`[ \t]{2,}`)
	newlineRunRe = regexp.MustCompile(`\n{3,}`)
)

// CleanHTML strips scripts, styles and other non-content noise from a raw
// page and returns the body markup with normalized whitespace. The surviving
// tags are kept so the model can still see document structure.
func CleanHTML(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return normalizeWhitespace(rawHTML)
	}

	doc.Find(noiseSelectors).Remove()

	body := doc.Find("body").First()
	if body.Length() == 0 {
		html, err := doc.Html()
		if err != nil {
			return normalizeWhitespace(rawHTML)
		}
		return normalizeWhitespace(html)
	}

	html, err := body.Html()
	if err != nil {
		return normalizeWhitespace(rawHTML)
	}
	return normalizeWhitespace(html)
}

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = newlineRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// TruncateRunes bounds s to at most n runes. Prompt budgets are counted in
// characters, not bytes, so multi-byte pages truncate consistently.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// SafeParseJSONObject recovers a JSON object or array from model output that
// may be wrapped in prose or a markdown fence. Returns nil when nothing
// parseable is found; callers treat that as an empty result, not an error.
func SafeParseJSONObject(txt string) map[string]any {
	if obj := tryParseObject(txt); obj != nil {
		return obj
	}

	if fence := fenceRe.FindStringSubmatch(txt); fence != nil {
		if obj := tryParseObject(fence[1]); obj != nil {
			return obj
		}
	}

	start := firstIndexAny(txt, "{", "[")
	end := lastIndexAny(txt, "}", "]")
	if start >= 0 && end > start {
		if obj := tryParseObject(txt[start : end+1]); obj != nil {
			return obj
		}
	}
	return nil
}

var fenceRe = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)\\s*```")

func tryParseObject(s string) map[string]any {
	var out map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &out); err != nil {
		return nil
	}
	return out
}

func firstIndexAny(s string, subs ...string) int {
	best := -1
	for _, sub := range subs {
		if i := strings.Index(s, sub); i >= 0 && (best == -1 || i < best) {
			best = i
		}
	}
	return best
}

func lastIndexAny(s string, subs ...string) int {
	best := -1
	for _, sub := range subs {
		if i := strings.LastIndex(s, sub); i > best {
			best = i
		}
	}
	return best
}
