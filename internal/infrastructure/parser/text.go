package parser

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var wsExpr = regexp.MustCompile(`\s+`)

var feedDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func normalizeWS(s string) string {
	return wsExpr.ReplaceAllString(strings.TrimSpace(s), " ")
}

// stripTags renders an HTML fragment to plain text.
func stripTags(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return normalizeWS(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return normalizeWS(fragment)
	}
	doc.Find("script, style").Remove()
	return normalizeWS(doc.Text())
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// parseFeedDate tries the date layouts seen in RSS/Atom/HTML sources; the
// zero time means "unknown" and must not be replaced with now.
func parseFeedDate(value string) time.Time {
	value = normalizeWS(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range feedDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func limitItems[T any](items []T, max int) []T {
	if max > 0 && len(items) > max {
		return items[:max]
	}
	return items
}
