// Package dedup merges a run's items with the ones carried from earlier runs.
package dedup

import (
	"time"

	"TariffIntel/internal/domain"
)

// DefaultRetention bounds how many items one source carries forward.
const DefaultRetention = 200

// Merge combines newItems with previous. Items are identified by ID; the
// first occurrence wins, and an item already present in previous keeps its
// carried copy. The result is ordered newest first with undated items
// after the dated ones (new before carried), then cut to retention.
// A retention of zero or less keeps everything.
func Merge(newItems, previous []domain.FeedItem, retention int) []domain.FeedItem {
	carried := make(map[string]struct{}, len(previous))
	for _, item := range previous {
		carried[item.ID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(newItems)+len(previous))
	merged := make([]domain.FeedItem, 0, len(newItems)+len(previous))

	for _, item := range newItems {
		if _, ok := carried[item.ID]; ok {
			continue
		}
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		merged = append(merged, item)
	}
	for _, item := range previous {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		merged = append(merged, item)
	}

	domain.SortNewestFirst(merged)

	if retention > 0 && len(merged) > retention {
		merged = merged[:retention]
	}
	return merged
}

// IDs lists item identifiers in order.
func IDs(items []domain.FeedItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

// Fresh returns the items whose ID has no entry in seen.
func Fresh(items []domain.FeedItem, seen map[string]time.Time) []domain.FeedItem {
	var fresh []domain.FeedItem
	for _, item := range items {
		if _, ok := seen[item.ID]; !ok {
			fresh = append(fresh, item)
		}
	}
	return fresh
}
