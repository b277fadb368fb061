package parser

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"TariffIntel/internal/domain"
	"TariffIntel/internal/scanner"
)

const defaultHeadlineSelector = "li a[href], h2 a[href], h3 a[href]"

// archiveYearExpr finds the year segment of archive links such as
// /News/SpokesmansRemarks/art/2025/art_1.html.
var archiveYearExpr = regexp.MustCompile(`/art/(\d{4})/`)

// errNoHeadlines is the soft error raised when a page layout change leaves
// the selector without matches.
var errNoHeadlines = &domain.ParseError{Detail: "no headlines matched"}

// HTMLLinksScanner extracts headline anchors from a static HTML page.
type HTMLLinksScanner struct {
	fetcher *Fetcher
}

// NewHTMLLinksScanner wires a fetcher.
func NewHTMLLinksScanner(fetcher *Fetcher) *HTMLLinksScanner {
	if fetcher == nil {
		fetcher = NewFetcher(FetcherOptions{})
	}
	return &HTMLLinksScanner{fetcher: fetcher}
}

// Name identifies the strategy inside the registry.
func (s *HTMLLinksScanner) Name() string {
	return "html_links"
}

// Scan fetches req.URL and collects anchors matching req.Selector in page
// order. Publication dates are unknown and stay empty.
func (s *HTMLLinksScanner) Scan(ctx context.Context, req scanner.Request) domain.SourceResult {
	result := domain.NewSourceResult(req.Source, req.URL)

	body, err := s.fetcher.Get(ctx, req.URL, nil)
	if err != nil {
		result.AddError(req.Key, err)
		return result
	}

	items, err := extractHeadlines(req, body)
	if err != nil {
		result.AddError(req.Key, err)
	}
	result.Items = append(result.Items, limitItems(items, req.MaxItems)...)
	return result
}

func extractHeadlines(req scanner.Request, body []byte) ([]domain.FeedItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &domain.ParseError{Detail: "parse document", Err: err}
	}

	base, err := url.Parse(req.URL)
	if err != nil {
		return nil, &domain.ParseError{Detail: fmt.Sprintf("invalid page url %s", req.URL), Err: err}
	}

	selector := firstNonEmpty(req.Selector, defaultHeadlineSelector)
	summary := normalizeWS(req.FallbackSummary)

	var (
		items []domain.FeedItem
		seen  = map[string]struct{}{}
	)
	doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		link := base.ResolveReference(ref).String()
		if _, dup := seen[link]; dup {
			return
		}

		title := normalizeWS(a.AttrOr("title", ""))
		if title == "" {
			title = normalizeWS(a.Text())
		}
		if title == "" {
			return
		}
		seen[link] = struct{}{}

		items = append(items, domain.FeedItem{
			ID:      domain.NewItemID(req.Key, link),
			Source:  req.Key,
			Title:   title,
			Summary: summary,
			URL:     link,
			// Year only; not precise enough for published_at.
			RawCategory: domain.StringPtr(archiveYear(link)),
		})
	})

	if len(items) == 0 {
		return nil, errNoHeadlines
	}
	return items, nil
}

func archiveYear(link string) string {
	if m := archiveYearExpr.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return ""
}
