package parser

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"TariffIntel/internal/domain"
	"TariffIntel/internal/scanner"
)

const (
	snippetBefore = 120
	snippetAfter  = 260
	pageSummary   = 900
)

var errNoMarkers = &domain.ParseError{Detail: "no markers matched"}

// HTMLPageScanner monitors a single policy page and emits one item per
// page revision, summarized by snippets around marker phrases.
type HTMLPageScanner struct {
	fetcher *Fetcher
}

// NewHTMLPageScanner wires a fetcher.
func NewHTMLPageScanner(fetcher *Fetcher) *HTMLPageScanner {
	if fetcher == nil {
		fetcher = NewFetcher(FetcherOptions{})
	}
	return &HTMLPageScanner{fetcher: fetcher}
}

// Name identifies the strategy inside the registry.
func (s *HTMLPageScanner) Name() string {
	return "html_page"
}

// Scan fetches the page and builds its revision item.
func (s *HTMLPageScanner) Scan(ctx context.Context, req scanner.Request) domain.SourceResult {
	result := domain.NewSourceResult(req.Source, req.URL)

	body, err := s.fetcher.Get(ctx, req.URL, nil)
	if err != nil {
		result.AddError(req.Key, err)
		return result
	}

	item, err := pageRevision(req, body)
	if item != nil {
		result.Items = append(result.Items, *item)
	}
	if err != nil {
		result.AddError(req.Key, err)
	}
	return result
}

func pageRevision(req scanner.Request, body []byte) (*domain.FeedItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &domain.ParseError{Detail: "parse document", Err: err}
	}

	modified := strings.TrimSpace(doc.Find(`meta[name="dcterms.modified"]`).First().AttrOr("content", ""))
	title := firstNonEmpty(req.Title, normalizeWS(doc.Find("title").First().Text()), req.URL)

	doc.Find("script, style, noscript").Remove()
	text := normalizeWS(doc.Find("body").Text())
	if text == "" {
		text = normalizeWS(doc.Text())
	}

	var softErr error
	snippets := markerSnippets(text, req.Markers)
	summary := truncateRunes(normalizeWS(strings.Join(snippets, " | ")), pageSummary)
	if summary == "" {
		summary = firstNonEmpty(req.FallbackSummary, title)
		if len(req.Markers) > 0 {
			softErr = errNoMarkers
		}
	}

	item := &domain.FeedItem{
		ID:          domain.NewItemID(req.Key, req.URL+"#"+modified),
		Source:      req.Key,
		Title:       title,
		Summary:     summary,
		URL:         req.URL,
		PublishedAt: domain.TimePtr(parseFeedDate(modified)),
	}
	return item, softErr
}

// markerSnippets returns, for every marker found in text, the surrounding
// context window (case-insensitive match, rune-safe bounds).
func markerSnippets(text string, markers []string) []string {
	var snippets []string
	for _, marker := range markers {
		marker = strings.TrimSpace(marker)
		if marker == "" {
			continue
		}
		expr, err := regexp.Compile("(?i)" + regexp.QuoteMeta(marker))
		if err != nil {
			continue
		}
		loc := expr.FindStringIndex(text)
		if loc == nil {
			continue
		}
		start := runeBoundary(text, loc[0]-snippetBefore)
		end := runeBoundary(text, loc[0]+snippetAfter)
		snippets = append(snippets, text[start:end])
	}
	return snippets
}

func runeBoundary(s string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
