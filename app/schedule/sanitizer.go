package schedule

import (
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultTitle is used when a source supplies no usable title.
	DefaultTitle = "Untitled event"

	maxTitleLen = 200
)

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	styleBlockRe  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	tagRe         = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// Only entities that cannot re-introduce markup are decoded. &lt; and &gt;
// stay encoded so stripped tags cannot reappear.
var safeEntities = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&quot;", `"`,
	"&#x27;", "'",
	"&#39;", "'",
)

// SanitizeTitle strips markup from an untrusted event title and bounds its
// length. The result is safe to store and to render as plain text; it is NOT
// HTML-escaped (see SanitizeTitleForEmail).
func SanitizeTitle(raw string) string {
	s := scriptBlockRe.ReplaceAllString(raw, "")
	s = styleBlockRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, "")
	s = safeEntities.Replace(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = norm.NFC.String(s)

	if runes := []rune(s); len(runes) > maxTitleLen {
		s = string(runes[:maxTitleLen]) + "…"
	}

	if s == "" {
		return DefaultTitle
	}
	return s
}

// SanitizeTitleForEmail additionally HTML-escapes the sanitized title so it
// can be interpolated into email templates.
func SanitizeTitleForEmail(raw string) string {
	return html.EscapeString(SanitizeTitle(raw))
}
