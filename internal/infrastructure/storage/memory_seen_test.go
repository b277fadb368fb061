package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TariffIntel/internal/domain"
)

func TestMemorySeenStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemorySeenStore()
	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	require.NoError(t, store.Touch(ctx, "cbp_csms", []string{"a", "b"}, first))
	require.NoError(t, store.Touch(ctx, "cbp_csms", []string{"b"}, second))

	got, err := store.LastSeen(ctx, "cbp_csms", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]time.Time{"a": first, "b": second}, got)

	other, err := store.LastSeen(ctx, "federal_register", []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemorySeenStoreSeedFromDocument(t *testing.T) {
	t.Parallel()

	generated := time.Date(2025, 2, 2, 2, 0, 0, 0, time.UTC)
	doc := &domain.AggregateDocument{GeneratedAt: generated}
	doc.Feeds.Put("", "federal_register", &domain.SourceResult{Items: []domain.FeedItem{{ID: "fr-1"}}})
	doc.Feeds.Put("retaliation", "uk_dbt", &domain.SourceResult{Items: []domain.FeedItem{{ID: "uk-1"}}})

	store := NewMemorySeenStore()
	store.SeedFromDocument(doc)
	store.SeedFromDocument(nil)

	got, err := store.LastSeen(context.Background(), "retaliation/uk_dbt", []string{"uk-1", "fr-1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]time.Time{"uk-1": generated}, got)
}
