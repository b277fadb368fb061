package parser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"TariffIntel/internal/config"
	"TariffIntel/internal/domain"
	"TariffIntel/internal/ports"
	"TariffIntel/internal/scanner"
)

// StrategySource implements ports.AdapterSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sites    []config.SiteConfig
	logger   *slog.Logger
}

var _ ports.AdapterSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sites:    sites,
		logger:   log,
	}
}

// RegisterDefaults adds every built-in scanner to reg, sharing one fetcher.
func RegisterDefaults(reg *scanner.Registry, fetcher *Fetcher) {
	reg.Register(NewFederalRegisterScanner(fetcher))
	reg.Register(NewRSSScanner(fetcher))
	reg.Register(NewAtomScanner(fetcher))
	reg.Register(NewHTMLLinksScanner(fetcher))
	reg.Register(NewHTMLPageScanner(fetcher))
}

// Adapters binds each configured site to its scanner, in config order.
func (s *StrategySource) Adapters() ([]ports.Adapter, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	s.debug("resolve adapters", "sites", len(s.sites))

	seen := map[string]struct{}{}
	adapters := make([]ports.Adapter, 0, len(s.sites))
	for _, site := range s.sites {
		if site.Key == "" {
			return nil, fmt.Errorf("site with url %s has no key", site.URL)
		}
		path := site.Group + "/" + site.Key
		if _, dup := seen[path]; dup {
			return nil, fmt.Errorf("site %s is configured twice", path)
		}
		seen[path] = struct{}{}

		strategy, err := s.registry.Resolve(site.Scanner)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Key, err)
		}

		adapters = append(adapters, &boundAdapter{
			site:    site,
			scanner: strategy,
			logger:  s.logger,
		})
	}
	return adapters, nil
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

// boundAdapter is one configured site executed through its scanner.
type boundAdapter struct {
	site    config.SiteConfig
	scanner scanner.Scanner
	logger  *slog.Logger
}

var _ ports.Adapter = (*boundAdapter)(nil)

func (b *boundAdapter) Key() string       { return b.site.Key }
func (b *boundAdapter) Group() string     { return b.site.Group }
func (b *boundAdapter) Source() string    { return b.site.Source }
func (b *boundAdapter) SourceURL() string { return b.site.URL }

func (b *boundAdapter) Relevance() domain.RelevancePolicy {
	return domain.RelevancePolicy{
		Prefiltered:        b.site.Prefiltered,
		FallbackUnfiltered: b.site.FallbackUnfiltered,
		ExtraKeywords:      b.site.ExtraKeywords,
		MaxItems:           b.site.MaxItems,
	}
}

// Fetch runs the scanner and converts a panic into a parse error record so
// that nothing escapes the adapter boundary.
func (b *boundAdapter) Fetch(ctx context.Context) (result domain.SourceResult) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = domain.NewSourceResult(b.site.Source, b.site.URL)
			result.AddError(b.site.Key, &domain.ParseError{Detail: fmt.Sprintf("scanner panic: %v", r)})
		}
		if result.Items == nil {
			result.Items = []domain.FeedItem{}
		}
		if result.Errors == nil {
			result.Errors = []domain.ErrorRecord{}
		}
		if b.logger != nil {
			b.logger.Debug("site scanned",
				"site", b.site.Key,
				"scanner", b.scanner.Name(),
				"items", len(result.Items),
				"errors", len(result.Errors),
				"elapsed", time.Since(started))
		}
	}()

	return b.scanner.Scan(ctx, toScannerRequest(b.site))
}

// toScannerRequest leaves MaxItems unset; the relevance policy caps after
// filtering.
func toScannerRequest(site config.SiteConfig) scanner.Request {
	return scanner.Request{
		Key:             site.Key,
		Source:          site.Source,
		URL:             site.URL,
		Terms:           site.Terms,
		DateGTE:         site.DateGTE,
		Selector:        site.Selector,
		Markers:         site.Markers,
		Title:           site.Title,
		FallbackSummary: site.FallbackSummary,
		Options:         site.Options,
	}
}
