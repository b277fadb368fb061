package parser

import (
	"context"
	"encoding/xml"

	"TariffIntel/internal/domain"
	"TariffIntel/internal/scanner"
)

// AtomScanner reads Atom 1.0 feeds.
type AtomScanner struct {
	fetcher *Fetcher
}

// NewAtomScanner wires a fetcher.
func NewAtomScanner(fetcher *Fetcher) *AtomScanner {
	if fetcher == nil {
		fetcher = NewFetcher(FetcherOptions{})
	}
	return &AtomScanner{fetcher: fetcher}
}

// Name identifies the strategy inside the registry.
func (s *AtomScanner) Name() string {
	return "atom"
}

const atomNamespace = "http://www.w3.org/2005/Atom"

type atomEntry struct {
	ID        string     `xml:"http://www.w3.org/2005/Atom id"`
	Title     string     `xml:"http://www.w3.org/2005/Atom title"`
	Updated   string     `xml:"http://www.w3.org/2005/Atom updated"`
	Published string     `xml:"http://www.w3.org/2005/Atom published"`
	Summary   string     `xml:"http://www.w3.org/2005/Atom summary"`
	Content   string     `xml:"http://www.w3.org/2005/Atom content"`
	Links     []atomLink `xml:"http://www.w3.org/2005/Atom link"`
	Category  []struct {
		Term string `xml:"term,attr"`
	} `xml:"http://www.w3.org/2005/Atom category"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// Scan downloads and parses the feed at req.URL.
func (s *AtomScanner) Scan(ctx context.Context, req scanner.Request) domain.SourceResult {
	result := domain.NewSourceResult(req.Source, req.URL)

	body, err := s.fetcher.Get(ctx, req.URL, nil)
	if err != nil {
		result.AddError(req.Key, err)
		return result
	}

	items, err := parseAtom(req.Key, body)
	if err != nil {
		result.AddError(req.Key, err)
	}
	domain.SortNewestFirst(items)
	result.Items = append(result.Items, limitItems(items, req.MaxItems)...)
	return result
}

// parseAtom collects Atom entries; entries outside the Atom namespace are
// ignored. Entries completed before a syntax error are still returned.
func parseAtom(source string, body []byte) ([]domain.FeedItem, error) {
	var entries []atomEntry
	err := streamXML(body, func(dec *xml.Decoder, start xml.StartElement) error {
		if start.Name.Space != atomNamespace || start.Name.Local != "entry" {
			return nil
		}
		var entry atomEntry
		if err := dec.DecodeElement(&entry, &start); err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	})

	items := make([]domain.FeedItem, 0, len(entries))
	for _, entry := range entries {
		title := stripTags(entry.Title)
		link := entry.link()
		native := firstNonEmpty(entry.ID, link, title)
		if native == "" {
			continue
		}

		var category string
		if len(entry.Category) > 0 {
			category = entry.Category[0].Term
		}

		items = append(items, domain.FeedItem{
			ID:          domain.NewItemID(source, native),
			Source:      source,
			Title:       title,
			Summary:     truncateRunes(stripTags(firstNonEmpty(entry.Summary, entry.Content)), descriptionLimit),
			URL:         link,
			PublishedAt: domain.TimePtr(parseFeedDate(firstNonEmpty(entry.Updated, entry.Published))),
			RawCategory: domain.StringPtr(category),
		})
	}
	if err != nil {
		return items, &domain.ParseError{Detail: "decode atom", Err: err}
	}
	return items, nil
}

func (e atomEntry) link() string {
	var fallback string
	for _, l := range e.Links {
		href := normalizeWS(l.Href)
		if href == "" {
			continue
		}
		if l.Rel == "" || l.Rel == "alternate" {
			return href
		}
		if fallback == "" {
			fallback = href
		}
	}
	return fallback
}
