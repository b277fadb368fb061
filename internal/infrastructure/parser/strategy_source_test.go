package parser

import (
	"context"
	"testing"

	"TariffIntel/internal/config"
	"TariffIntel/internal/domain"
	"TariffIntel/internal/scanner"
)

type panicScanner struct{}

func (panicScanner) Name() string { return "panic" }

func (panicScanner) Scan(context.Context, scanner.Request) domain.SourceResult {
	panic("boom")
}

type recordingScanner struct {
	requests chan scanner.Request
}

func (recordingScanner) Name() string { return "recording" }

func (r recordingScanner) Scan(_ context.Context, req scanner.Request) domain.SourceResult {
	r.requests <- req
	return domain.NewSourceResult(req.Source, req.URL)
}

func TestStrategySourceAdapters(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry()
	RegisterDefaults(reg, testFetcher())

	src := NewStrategySource(reg, config.Default().Sites, nil)
	adapters, err := src.Adapters()
	if err != nil {
		t.Fatalf("Adapters error: %v", err)
	}
	if len(adapters) != 6 {
		t.Fatalf("expected 6 adapters, got %d", len(adapters))
	}
	if adapters[0].Key() != "federal_register" || adapters[0].Group() != "" {
		t.Fatalf("unexpected first adapter: %s/%s", adapters[0].Group(), adapters[0].Key())
	}
	if adapters[5].Key() != "canada_finance" || adapters[5].Group() != "retaliation" {
		t.Fatalf("unexpected last adapter: %s/%s", adapters[5].Group(), adapters[5].Key())
	}
	if !adapters[5].Relevance().Prefiltered {
		t.Fatal("canada page should bypass filtering")
	}
}

func TestStrategySourceRejectsBadConfig(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry()
	RegisterDefaults(reg, testFetcher())

	cases := map[string][]config.SiteConfig{
		"unknown scanner": {{Key: "a", Scanner: "gopher"}},
		"missing key":     {{Scanner: "rss"}},
		"duplicate":       {{Key: "a", Scanner: "rss"}, {Key: "a", Scanner: "atom"}},
	}
	for name, sites := range cases {
		if _, err := NewStrategySource(reg, sites, nil).Adapters(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	if _, err := NewStrategySource(nil, nil, nil).Adapters(); err == nil {
		t.Fatal("expected error without registry")
	}
}

func TestBoundAdapterRecoversPanics(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry()
	reg.Register(panicScanner{})

	adapters, err := NewStrategySource(reg, []config.SiteConfig{{Key: "p", Scanner: "panic", Source: "P", URL: "https://p"}}, nil).Adapters()
	if err != nil {
		t.Fatalf("Adapters error: %v", err)
	}

	res := adapters[0].Fetch(context.Background())
	if res.Items == nil || len(res.Items) != 0 {
		t.Fatalf("expected empty non-nil items: %#v", res.Items)
	}
	if len(res.Errors) != 1 || res.Errors[0].Stage != domain.StageParse {
		t.Fatalf("expected one parse error, got %+v", res.Errors)
	}
	if res.Source != "P" || res.SourceURL != "https://p" {
		t.Fatalf("source metadata lost: %+v", res)
	}
}

func TestBoundAdapterLeavesCapToRelevancePolicy(t *testing.T) {
	t.Parallel()

	rec := recordingScanner{requests: make(chan scanner.Request, 1)}
	reg := scanner.NewRegistry()
	reg.Register(rec)

	sites := []config.SiteConfig{{Key: "cbp_csms", Scanner: "recording", Source: "CSMS", URL: "https://csms", MaxItems: 40}}
	adapters, err := NewStrategySource(reg, sites, nil).Adapters()
	if err != nil {
		t.Fatalf("Adapters error: %v", err)
	}

	if got := adapters[0].Relevance().MaxItems; got != 40 {
		t.Fatalf("expected policy cap 40, got %d", got)
	}
	adapters[0].Fetch(context.Background())
	if req := <-rec.requests; req.MaxItems != 0 {
		t.Fatalf("scanner should fetch uncapped, got MaxItems=%d", req.MaxItems)
	}
}
