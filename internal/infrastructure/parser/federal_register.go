package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"TariffIntel/internal/domain"
	"TariffIntel/internal/scanner"
)

const federalRegisterPageSize = 100

// FederalRegisterScanner queries the Federal Register documents API once
// per search term and merges the hits by document number.
type FederalRegisterScanner struct {
	fetcher  *Fetcher
	pageSize int
}

// NewFederalRegisterScanner wires a fetcher; pageSize defaults to 100.
func NewFederalRegisterScanner(fetcher *Fetcher) *FederalRegisterScanner {
	if fetcher == nil {
		fetcher = NewFetcher(FetcherOptions{})
	}
	return &FederalRegisterScanner{fetcher: fetcher, pageSize: federalRegisterPageSize}
}

// Name identifies the strategy inside the registry.
func (s *FederalRegisterScanner) Name() string {
	return "federal_register"
}

type federalRegisterResponse struct {
	Results []federalRegisterDocument `json:"results"`
}

type federalRegisterDocument struct {
	DocumentNumber  string `json:"document_number"`
	Title           string `json:"title"`
	Abstract        string `json:"abstract"`
	Type            string `json:"type"`
	HTMLURL         string `json:"html_url"`
	PublicationDate string `json:"publication_date"`
}

// Scan runs every term query; a failing term is recorded and the others
// still contribute items.
func (s *FederalRegisterScanner) Scan(ctx context.Context, req scanner.Request) domain.SourceResult {
	result := domain.NewSourceResult(req.Source, req.URL)

	terms := req.Terms
	if len(terms) == 0 {
		terms = []string{""}
	}

	var (
		docs []federalRegisterDocument
		seen = map[string]struct{}{}
	)
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			result.AddError(req.Key, fmt.Errorf("term=%s: %w", term, err))
			break
		}

		body, err := s.fetcher.Get(ctx, req.URL, s.buildQuery(term, req.DateGTE))
		if err != nil {
			result.AddError(req.Key, fmt.Errorf("term=%s: %w", term, err))
			continue
		}

		var payload federalRegisterResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			result.AddError(req.Key, &domain.ParseError{Detail: "term=" + term, Err: err})
			continue
		}

		for _, doc := range payload.Results {
			key := firstNonEmpty(doc.DocumentNumber, doc.HTMLURL)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			docs = append(docs, doc)
		}
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].PublicationDate != docs[j].PublicationDate {
			return docs[i].PublicationDate > docs[j].PublicationDate
		}
		return docs[i].DocumentNumber > docs[j].DocumentNumber
	})
	docs = limitItems(docs, req.MaxItems)

	for _, doc := range docs {
		result.Items = append(result.Items, federalRegisterItem(req.Key, doc))
	}
	return result
}

func (s *FederalRegisterScanner) buildQuery(term, dateGTE string) url.Values {
	query := url.Values{}
	query.Set("per_page", strconv.Itoa(s.pageSize))
	query.Set("order", "newest")
	if dateGTE != "" {
		query.Set("conditions[publication_date][gte]", dateGTE)
	}
	if term != "" {
		query.Set("conditions[term]", term)
	}
	return query
}

func federalRegisterItem(source string, doc federalRegisterDocument) domain.FeedItem {
	return domain.FeedItem{
		ID:          domain.NewItemID(source, firstNonEmpty(doc.DocumentNumber, doc.HTMLURL)),
		Source:      source,
		Title:       normalizeWS(doc.Title),
		Summary:     normalizeWS(doc.Abstract),
		URL:         doc.HTMLURL,
		PublishedAt: domain.TimePtr(parseFeedDate(doc.PublicationDate)),
		RawCategory: domain.StringPtr(doc.Type),
	}
}
