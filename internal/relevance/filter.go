// Package relevance decides whether a feed item is about tariffs.
package relevance

import (
	"strings"

	"TariffIntel/internal/domain"
)

// IsRelevant reports whether any keyword occurs, case-insensitively, in
// the item's title, summary or category.
func IsRelevant(item domain.FeedItem, keywords []string) bool {
	haystack := strings.ToLower(item.Title + " " + item.Summary)
	if item.RawCategory != nil {
		haystack += " " + strings.ToLower(*item.RawCategory)
	}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(haystack, k) {
			return true
		}
	}
	return false
}

// Filter applies a global keyword list combined with per-source policy.
type Filter struct {
	keywords []string
}

// NewFilter normalizes and stores the keyword list.
func NewFilter(keywords []string) *Filter {
	return &Filter{keywords: Normalize(keywords)}
}

// Keywords returns the normalized keyword list.
func (f *Filter) Keywords() []string {
	return append([]string(nil), f.keywords...)
}

// Apply returns the relevant subset of items, capped at policy.MaxItems.
// Prefiltered sources skip the keyword match; FallbackUnfiltered keeps the
// raw list when nothing matches. Items are expected newest first, so the
// cap keeps the most recent relevant entries.
func (f *Filter) Apply(items []domain.FeedItem, policy domain.RelevancePolicy) []domain.FeedItem {
	return limit(f.match(items, policy), policy.MaxItems)
}

func (f *Filter) match(items []domain.FeedItem, policy domain.RelevancePolicy) []domain.FeedItem {
	if policy.Prefiltered || len(items) == 0 {
		return items
	}

	keywords := f.keywords
	if len(policy.ExtraKeywords) > 0 {
		keywords = append(append([]string(nil), f.keywords...), Normalize(policy.ExtraKeywords)...)
	}

	kept := make([]domain.FeedItem, 0, len(items))
	for _, item := range items {
		if IsRelevant(item, keywords) {
			kept = append(kept, item)
		}
	}

	if len(kept) == 0 && policy.FallbackUnfiltered {
		return items
	}
	return kept
}

func limit(items []domain.FeedItem, max int) []domain.FeedItem {
	if max > 0 && len(items) > max {
		return items[:max]
	}
	return items
}

// Normalize lower-cases and trims keywords, dropping blanks and repeats.
func Normalize(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
