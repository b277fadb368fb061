package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"TariffIntel/internal/dedup"
	"TariffIntel/internal/domain"
	"TariffIntel/internal/ports"
	"TariffIntel/internal/relevance"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAdapter struct {
	key    string
	group  string
	policy domain.RelevancePolicy
	fetch  func(ctx context.Context) domain.SourceResult
}

func (f *fakeAdapter) Key() string                       { return f.key }
func (f *fakeAdapter) Group() string                     { return f.group }
func (f *fakeAdapter) Source() string                    { return "src:" + f.key }
func (f *fakeAdapter) SourceURL() string                 { return "https://example.test/" + f.key }
func (f *fakeAdapter) Relevance() domain.RelevancePolicy { return f.policy }
func (f *fakeAdapter) Fetch(ctx context.Context) domain.SourceResult {
	return f.fetch(ctx)
}

type fakeSource struct {
	adapters []ports.Adapter
	err      error
}

func (f fakeSource) Adapters() ([]ports.Adapter, error) { return f.adapters, f.err }

type memorySeen struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	failGet bool
}

func (m *memorySeen) LastSeen(_ context.Context, source string, ids []string) (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errors.New("db down")
	}
	out := map[string]time.Time{}
	for _, id := range ids {
		if at, ok := m.seen[source+"|"+id]; ok {
			out[id] = at
		}
	}
	return out, nil
}

func (m *memorySeen) Touch(_ context.Context, source string, ids []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = map[string]time.Time{}
	}
	for _, id := range ids {
		m.seen[source+"|"+id] = at
	}
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	digests []string
	err     error
}

func (r *recordingNotifier) PublishDigest(_ context.Context, digest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.digests = append(r.digests, digest)
	return r.err
}

func feedItem(source, native, title string, day int) domain.FeedItem {
	item := domain.FeedItem{
		ID:     domain.NewItemID(source, native),
		Source: source,
		Title:  title,
		URL:    "https://example.test/" + native,
	}
	if day > 0 {
		at := time.Date(2025, 5, day, 9, 0, 0, 0, time.UTC)
		item.PublishedAt = &at
	}
	return item
}

func staticAdapter(key, group string, delay time.Duration, items ...domain.FeedItem) *fakeAdapter {
	return &fakeAdapter{
		key:   key,
		group: group,
		fetch: func(ctx context.Context) domain.SourceResult {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
				}
			}
			res := domain.NewSourceResult("src:"+key, "https://example.test/"+key)
			res.Items = append(res.Items, items...)
			return res
		},
	}
}

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 8, 30, 15, 999, time.FixedZone("EDT", -4*3600))
}

func newTestPipeline(adapters []ports.Adapter, mutate func(*PipelineDeps)) *Pipeline {
	deps := PipelineDeps{
		Source:      fakeSource{adapters: adapters},
		Filter:      relevance.NewFilter([]string{"tariff"}),
		Retention:   dedup.DefaultRetention,
		Concurrency: 4,
		Clock:       fixedClock,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return NewPipeline(deps)
}

func keysOf(doc *domain.AggregateDocument) []string {
	var keys []string
	doc.Feeds.Walk(func(group, key string, _ *domain.SourceResult) {
		if group != "" {
			key = group + "/" + key
		}
		keys = append(keys, key)
	})
	return keys
}

func TestPipelineRunKeepsRegistryOrder(t *testing.T) {
	adapters := []ports.Adapter{
		staticAdapter("federal_register", "", 40*time.Millisecond, feedItem("fr", "1", "Tariff notice", 3)),
		staticAdapter("cbp_csms", "", 0, feedItem("csms", "1", "Tariff guidance", 2)),
		staticAdapter("eu_commission", "retaliation", 20*time.Millisecond),
		staticAdapter("uk_dbt", "retaliation", 0),
	}

	doc, err := newTestPipeline(adapters, nil).Run(context.Background(), nil)
	require.NoError(t, err)

	want := []string{"federal_register", "cbp_csms", "retaliation/eu_commission", "retaliation/uk_dbt"}
	if diff := cmp.Diff(want, keysOf(doc)); diff != "" {
		t.Fatalf("feed order (-want +got):\n%s", diff)
	}
	require.Len(t, doc.Feeds, 3)
	assert.Equal(t, "retaliation", doc.Feeds[2].Key)

	assert.Equal(t, time.Date(2025, 6, 1, 12, 30, 15, 0, time.UTC), doc.GeneratedAt)
	assert.Equal(t, []string{"tariff"}, doc.About.Keywords)
	assert.Equal(t, []string{"src:federal_register", "src:cbp_csms", "src:eu_commission", "src:uk_dbt"}, doc.About.Sources)

	fr := doc.Feeds.Lookup("", "federal_register")
	require.NotNil(t, fr)
	assert.Equal(t, "https://example.test/federal_register", fr.SourceURL)
	assert.Len(t, fr.Items, 1)
}

func TestPipelineFaultIsolation(t *testing.T) {
	broken := &fakeAdapter{
		key: "cbp_csms",
		fetch: func(context.Context) domain.SourceResult {
			res := domain.NewSourceResult("src:cbp_csms", "")
			res.AddError("cbp_csms", &domain.FetchError{Detail: "unexpected status 503"})
			return res
		},
	}
	panicky := &fakeAdapter{
		key:   "uk_dbt",
		group: "retaliation",
		fetch: func(context.Context) domain.SourceResult {
			return domain.SourceResult{Errors: []domain.ErrorRecord{{Source: "uk_dbt", Message: "boom", Stage: domain.StageParse}}}
		},
	}
	adapters := []ports.Adapter{
		staticAdapter("federal_register", "", 0, feedItem("fr", "1", "Tariff notice", 3)),
		broken,
		panicky,
	}

	doc, err := newTestPipeline(adapters, nil).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Len(t, doc.Feeds.Lookup("", "federal_register").Items, 1)

	csms := doc.Feeds.Lookup("", "cbp_csms")
	require.NotNil(t, csms)
	assert.Empty(t, csms.Items)
	require.Len(t, csms.Errors, 1)
	assert.Equal(t, domain.StageFetch, csms.Errors[0].Stage)
	assert.Equal(t, "src:cbp_csms", csms.Source)

	uk := doc.Feeds.Lookup("retaliation", "uk_dbt")
	require.NotNil(t, uk)
	assert.NotNil(t, uk.Items)
	assert.Len(t, uk.Errors, 1)
}

func TestPipelineRunDeadline(t *testing.T) {
	stuck := &fakeAdapter{
		key:   "china_mofcom",
		group: "retaliation",
		fetch: func(ctx context.Context) domain.SourceResult {
			<-ctx.Done()
			return domain.NewSourceResult("src:china_mofcom", "")
		},
	}
	adapters := []ports.Adapter{
		staticAdapter("federal_register", "", 0, feedItem("fr", "1", "Tariff notice", 3)),
		stuck,
	}

	previous := &domain.AggregateDocument{}
	carried := feedItem("mofcom", "old", "Spokesperson on tariff measures", 1)
	previous.Feeds.Put("retaliation", "china_mofcom", &domain.SourceResult{Items: []domain.FeedItem{carried}})

	pipeline := newTestPipeline(adapters, func(d *PipelineDeps) { d.RunTimeout = 50 * time.Millisecond })

	started := time.Now()
	doc, err := pipeline.Run(context.Background(), previous)
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 2*time.Second)

	assert.Len(t, doc.Feeds.Lookup("", "federal_register").Items, 1)

	mofcom := doc.Feeds.Lookup("retaliation", "china_mofcom")
	require.NotNil(t, mofcom)
	require.Len(t, mofcom.Errors, 1)
	assert.Equal(t, domain.StageTimeout, mofcom.Errors[0].Stage)
	assert.Equal(t, "china_mofcom", mofcom.Errors[0].Source)
	assert.Equal(t, []string{carried.ID}, dedup.IDs(mofcom.Items))
}

func TestPipelineCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc, err := newTestPipeline([]ports.Adapter{staticAdapter("cbp_csms", "", time.Second)}, nil).Run(ctx, nil)
	require.NoError(t, err)

	csms := doc.Feeds.Lookup("", "cbp_csms")
	require.Len(t, csms.Errors, 1)
	assert.Equal(t, domain.StageTimeout, csms.Errors[0].Stage)
}

func TestPipelineMergesWithPreviousRun(t *testing.T) {
	a := feedItem("fr", "A", "Tariff A", 1)
	b := feedItem("fr", "B", "Tariff B", 2)
	c := feedItem("fr", "C", "Tariff C", 3)

	previous := &domain.AggregateDocument{}
	previous.Feeds.Put("", "federal_register", &domain.SourceResult{Items: []domain.FeedItem{b, a}})

	doc, err := newTestPipeline([]ports.Adapter{staticAdapter("federal_register", "", 0, b, c)}, nil).
		Run(context.Background(), previous)
	require.NoError(t, err)

	got := dedup.IDs(doc.Feeds.Lookup("", "federal_register").Items)
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, got)
}

func TestPipelineIdempotentIDs(t *testing.T) {
	adapters := []ports.Adapter{
		staticAdapter("cbp_csms", "", 0,
			feedItem("csms", "1", "Tariff one", 4),
			feedItem("csms", "2", "Tariff two", 0),
			feedItem("csms", "1", "Tariff one", 4),
		),
	}
	pipeline := newTestPipeline(adapters, nil)

	first, err := pipeline.Run(context.Background(), nil)
	require.NoError(t, err)
	second, err := pipeline.Run(context.Background(), first)
	require.NoError(t, err)

	firstIDs := dedup.IDs(first.Feeds.Lookup("", "cbp_csms").Items)
	secondIDs := dedup.IDs(second.Feeds.Lookup("", "cbp_csms").Items)
	assert.Len(t, firstIDs, 2)
	assert.Equal(t, firstIDs, secondIDs)
}

func TestPipelineAppliesRelevancePolicy(t *testing.T) {
	mixed := []domain.FeedItem{
		feedItem("x", "1", "Tariff schedule", 2),
		feedItem("x", "2", "Fisheries update", 1),
	}
	eu := staticAdapter("eu_commission", "retaliation", 0, feedItem("eu", "1", "College agenda", 1))
	eu.policy = domain.RelevancePolicy{FallbackUnfiltered: true}
	canada := staticAdapter("canada_finance", "retaliation", 0, feedItem("ca", "1", "Policy page", 0))
	canada.policy = domain.RelevancePolicy{Prefiltered: true}

	adapters := []ports.Adapter{staticAdapter("cbp_csms", "", 0, mixed...), eu, canada}

	doc, err := newTestPipeline(adapters, nil).Run(context.Background(), nil)
	require.NoError(t, err)

	csms := doc.Feeds.Lookup("", "cbp_csms")
	require.Len(t, csms.Items, 1)
	assert.Equal(t, "Tariff schedule", csms.Items[0].Title)
	assert.Len(t, doc.Feeds.Lookup("retaliation", "eu_commission").Items, 1)
	assert.Len(t, doc.Feeds.Lookup("retaliation", "canada_finance").Items, 1)
}

func TestPipelineNotifiesFreshItemsOnce(t *testing.T) {
	seen := &memorySeen{}
	notifier := &recordingNotifier{}
	adapters := []ports.Adapter{
		staticAdapter("federal_register", "", 0, feedItem("fr", "1", "Tariff on steel", 3)),
		staticAdapter("uk_dbt", "retaliation", 0, feedItem("uk", "1", "UK tariff response", 2)),
	}
	pipeline := newTestPipeline(adapters, func(d *PipelineDeps) {
		d.Seen = seen
		d.Notifier = notifier
	})

	first, err := pipeline.Run(context.Background(), nil)
	require.NoError(t, err)
	_, err = pipeline.Run(context.Background(), first)
	require.NoError(t, err)

	require.Len(t, notifier.digests, 1)
	assert.Contains(t, notifier.digests[0], "*2 new tariff updates*")
	assert.Contains(t, notifier.digests[0], "Tariff on steel")
	assert.Contains(t, notifier.digests[0], "src:uk_dbt")

	keys := make([]string, 0, len(seen.seen))
	for k := range seen.seen {
		keys = append(keys, k[:strings.Index(k, "|")])
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"federal_register", "retaliation/uk_dbt"}, keys)
}

func TestPipelineSideEffectFailuresDoNotFailRun(t *testing.T) {
	adapters := []ports.Adapter{staticAdapter("cbp_csms", "", 0, feedItem("csms", "1", "Tariff", 1))}
	notifier := &recordingNotifier{err: errors.New("telegram unavailable")}

	doc, err := newTestPipeline(adapters, func(d *PipelineDeps) {
		d.Seen = &memorySeen{}
		d.Notifier = notifier
	}).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, doc.Feeds.Lookup("", "cbp_csms").Items, 1)
	assert.Len(t, notifier.digests, 1)

	doc, err = newTestPipeline(adapters, func(d *PipelineDeps) {
		d.Seen = &memorySeen{failGet: true}
		d.Notifier = notifier
	}).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, doc.Feeds.Lookup("", "cbp_csms").Items, 1)
	assert.Len(t, notifier.digests, 1)
}

func TestPipelineAdapterResolutionError(t *testing.T) {
	p := NewPipeline(PipelineDeps{Source: fakeSource{err: errors.New("site x: unknown scanner")}})
	_, err := p.Run(context.Background(), nil)
	assert.ErrorContains(t, err, "unknown scanner")

	_, err = NewPipeline(PipelineDeps{}).Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestBuildDigestMessageLimit(t *testing.T) {
	t.Parallel()

	var entries []digestEntry
	for i := 0; i < digestItemLimit+3; i++ {
		entries = append(entries, digestEntry{source: "s", item: domain.FeedItem{Title: "t"}})
	}
	msg := buildDigestMessage(entries)
	assert.Contains(t, msg, "...and 3 more")
	assert.Equal(t, "", buildDigestMessage(nil))
}
