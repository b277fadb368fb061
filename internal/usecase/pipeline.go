package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"TariffIntel/internal/dedup"
	"TariffIntel/internal/domain"
	"TariffIntel/internal/logging"
	"TariffIntel/internal/ports"
	"TariffIntel/internal/relevance"
)

const (
	defaultConcurrency = 4
	aboutDescription   = "Automated live intelligence pull from official government and legal sources."
	digestItemLimit    = 20
)

// PipelineDeps wires all driven adapters into the aggregation pipeline.
type PipelineDeps struct {
	Source      ports.AdapterSource
	Filter      *relevance.Filter
	Seen        ports.SeenStore
	Notifier    ports.Notifier
	Logger      *slog.Logger
	Retention   int
	Concurrency int
	RunTimeout  time.Duration
	Clock       func() time.Time
}

// Pipeline implements the feed aggregation run.
type Pipeline struct {
	source      ports.AdapterSource
	filter      *relevance.Filter
	seen        ports.SeenStore
	notifier    ports.Notifier
	logger      *slog.Logger
	retention   int
	concurrency int
	runTimeout  time.Duration
	clock       func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		source:      deps.Source,
		filter:      deps.Filter,
		seen:        deps.Seen,
		notifier:    deps.Notifier,
		logger:      deps.Logger,
		retention:   deps.Retention,
		concurrency: deps.Concurrency,
		runTimeout:  deps.RunTimeout,
		clock:       deps.Clock,
	}
	if p.logger == nil {
		p.logger = logging.Discard()
	}
	if p.filter == nil {
		p.filter = relevance.NewFilter(nil)
	}
	if p.concurrency <= 0 {
		p.concurrency = defaultConcurrency
	}
	if p.clock == nil {
		p.clock = time.Now
	}
	return p
}

// Run executes every adapter once and assembles the aggregate document.
// Source failures become error records; an error is returned only when
// the adapter registry itself cannot be resolved.
func (p *Pipeline) Run(ctx context.Context, previous *domain.AggregateDocument) (*domain.AggregateDocument, error) {
	if p.source == nil {
		return nil, fmt.Errorf("pipeline: no adapter source configured")
	}

	began := time.Now()
	started := p.clock().UTC().Truncate(time.Second)
	log := p.logger.With("run_id", uuid.NewString())

	adapters, err := p.source.Adapters()
	if err != nil {
		return nil, fmt.Errorf("resolve adapters: %w", err)
	}
	log.Info("run started", "adapters", len(adapters))

	results := p.fetchAll(ctx, adapters)

	doc := &domain.AggregateDocument{
		GeneratedAt: started,
		About: domain.About{
			Description: aboutDescription,
			Keywords:    p.filter.Keywords(),
			Sources:     make([]string, 0, len(adapters)),
		},
	}

	var digest []digestEntry
	for i, adapter := range adapters {
		result := results[i]
		result.Source = adapter.Source()
		result.SourceURL = adapter.SourceURL()

		fetched := len(result.Items)
		result.Items = p.filter.Apply(result.Items, adapter.Relevance())
		relevant := len(result.Items)

		result.Items = dedup.Merge(result.Items, previousItems(previous, adapter), p.retention)

		fresh := p.markSeen(ctx, log, adapter, result.Items, started)
		for _, item := range fresh {
			digest = append(digest, digestEntry{source: adapter.Source(), item: item})
		}

		log.Info("source aggregated",
			"source", feedPath(adapter),
			"fetched", fetched,
			"relevant", relevant,
			"kept", len(result.Items),
			"fresh", len(fresh),
			"errors", len(result.Errors))

		doc.About.Sources = append(doc.About.Sources, adapter.Source())
		doc.Feeds.Put(adapter.Group(), adapter.Key(), &result)
	}

	p.notify(ctx, log, digest)

	log.Info("run finished", "sources", len(adapters), "fresh", len(digest), "elapsed", time.Since(began))
	return doc, nil
}

// fetchAll runs adapters concurrently and returns their results by
// registry index. Adapters still running when the run deadline expires
// resolve to a timeout record.
func (p *Pipeline) fetchAll(ctx context.Context, adapters []ports.Adapter) []domain.SourceResult {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.runTimeout)
	}
	defer cancel()

	results := make([]domain.SourceResult, len(adapters))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, adapter := range adapters {
		i, adapter := i, adapter
		g.Go(func() error {
			results[i] = fetchWithDeadline(runCtx, adapter)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func fetchWithDeadline(ctx context.Context, adapter ports.Adapter) domain.SourceResult {
	if err := ctx.Err(); err != nil {
		return timedOut(adapter, err)
	}

	done := make(chan domain.SourceResult, 1)
	go func() {
		done <- adapter.Fetch(ctx)
	}()

	select {
	case result := <-done:
		return result
	case <-ctx.Done():
		return timedOut(adapter, ctx.Err())
	}
}

func timedOut(adapter ports.Adapter, err error) domain.SourceResult {
	result := domain.NewSourceResult(adapter.Source(), adapter.SourceURL())
	result.AddError(adapter.Key(), &domain.TimeoutError{Err: err})
	return result
}

// markSeen returns the items the seen-store has never observed and
// records all of them as seen at the run time. Store failures only log.
func (p *Pipeline) markSeen(ctx context.Context, log *slog.Logger, adapter ports.Adapter, items []domain.FeedItem, at time.Time) []domain.FeedItem {
	if p.seen == nil || len(items) == 0 {
		return nil
	}

	key := feedPath(adapter)
	ids := dedup.IDs(items)

	lastSeen, err := p.seen.LastSeen(ctx, key, ids)
	if err != nil {
		log.Warn("seen-store lookup failed", "source", key, "error", err)
		return nil
	}
	fresh := dedup.Fresh(items, lastSeen)

	if err := p.seen.Touch(ctx, key, ids, at); err != nil {
		log.Warn("seen-store update failed", "source", key, "error", err)
	}
	return fresh
}

func (p *Pipeline) notify(ctx context.Context, log *slog.Logger, digest []digestEntry) {
	if len(digest) == 0 {
		return
	}
	for _, entry := range digest {
		log.Debug("fresh item", "source", entry.source, "title", entry.item.Title, "url", entry.item.URL)
	}
	if p.notifier == nil {
		return
	}
	if err := p.notifier.PublishDigest(ctx, buildDigestMessage(digest)); err != nil {
		log.Warn("publish digest failed", "items", len(digest), "error", err)
	}
}

type digestEntry struct {
	source string
	item   domain.FeedItem
}

func buildDigestMessage(entries []digestEntry) string {
	if len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%d new tariff updates*\n\n", len(entries))
	for i, entry := range entries {
		if i == digestItemLimit {
			fmt.Fprintf(&b, "...and %d more\n", len(entries)-digestItemLimit)
			break
		}
		fmt.Fprintf(&b, "- %s\n%s\n", entry.item.Title, entry.source)
		if entry.item.HasDate() {
			fmt.Fprintf(&b, "%s\n", entry.item.PublishedAt.Format("2006-01-02"))
		}
		if entry.item.URL != "" {
			fmt.Fprintf(&b, "%s\n", entry.item.URL)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func previousItems(previous *domain.AggregateDocument, adapter ports.Adapter) []domain.FeedItem {
	if previous == nil {
		return nil
	}
	result := previous.Feeds.Lookup(adapter.Group(), adapter.Key())
	if result == nil {
		return nil
	}
	return result.Items
}

func feedPath(adapter ports.Adapter) string {
	if adapter.Group() == "" {
		return adapter.Key()
	}
	return adapter.Group() + "/" + adapter.Key()
}
