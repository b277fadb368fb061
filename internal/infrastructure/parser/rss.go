package parser

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html/charset"

	"TariffIntel/internal/domain"
	"TariffIntel/internal/scanner"
)

const descriptionLimit = 700

// RSSScanner reads RSS 2.0 channels.
type RSSScanner struct {
	fetcher *Fetcher
}

// NewRSSScanner wires a fetcher.
func NewRSSScanner(fetcher *Fetcher) *RSSScanner {
	if fetcher == nil {
		fetcher = NewFetcher(FetcherOptions{})
	}
	return &RSSScanner{fetcher: fetcher}
}

// Name identifies the strategy inside the registry.
func (s *RSSScanner) Name() string {
	return "rss"
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	PubDate     string   `xml:"pubDate"`
	GUID        string   `xml:"guid"`
	Description string   `xml:"description"`
	Categories  []string `xml:"category"`
}

// Scan downloads and parses the channel at req.URL.
func (s *RSSScanner) Scan(ctx context.Context, req scanner.Request) domain.SourceResult {
	result := domain.NewSourceResult(req.Source, req.URL)

	body, err := s.fetcher.Get(ctx, req.URL, nil)
	if err != nil {
		result.AddError(req.Key, err)
		return result
	}

	items, err := parseRSS(req.Key, body)
	if err != nil {
		result.AddError(req.Key, err)
	}
	domain.SortNewestFirst(items)
	result.Items = append(result.Items, limitItems(items, req.MaxItems)...)
	return result
}

// parseRSS collects channel items in document order. A syntax error keeps
// the items completed before it and is returned alongside them.
func parseRSS(source string, body []byte) ([]domain.FeedItem, error) {
	var (
		entries    []rssItem
		sawChannel bool
	)
	err := streamXML(body, func(dec *xml.Decoder, start xml.StartElement) error {
		switch {
		case start.Name.Local == "channel":
			sawChannel = true
		case start.Name.Local == "item" && sawChannel:
			var entry rssItem
			if err := dec.DecodeElement(&entry, &start); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})

	items := make([]domain.FeedItem, 0, len(entries))
	for _, entry := range entries {
		title := normalizeWS(entry.Title)
		link := normalizeWS(entry.Link)
		native := firstNonEmpty(entry.GUID, link, title)
		if native == "" {
			continue
		}

		categories := make([]string, 0, len(entry.Categories))
		for _, c := range entry.Categories {
			if c = normalizeWS(c); c != "" {
				categories = append(categories, c)
			}
		}

		items = append(items, domain.FeedItem{
			ID:          domain.NewItemID(source, native),
			Source:      source,
			Title:       title,
			Summary:     truncateRunes(stripTags(entry.Description), descriptionLimit),
			URL:         link,
			PublishedAt: domain.TimePtr(parseFeedDate(entry.PubDate)),
			RawCategory: domain.StringPtr(strings.Join(categories, ", ")),
		})
	}
	if err != nil {
		return items, &domain.ParseError{Detail: "decode rss", Err: err}
	}
	return items, nil
}

// streamXML hands every start element of body to visit, which may consume
// it with DecodeElement. Parsing stops at the first error.
func streamXML(body []byte, visit func(dec *xml.Decoder, start xml.StartElement) error) error {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if start, ok := tok.(xml.StartElement); ok {
			if err := visit(dec, start); err != nil {
				return err
			}
		}
	}
}
