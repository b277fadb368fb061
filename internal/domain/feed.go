package domain

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// itemNamespace scopes the name-based UUIDs used as FeedItem identifiers.
var itemNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("tariffintel/feed-item"))

// FeedItem is one normalized unit of tariff intelligence.
type FeedItem struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at"`
	RawCategory *string    `json:"raw_category"`
}

// NewItemID derives a stable identifier from the source key and the
// source-native key (document number, guid, link or title).
func NewItemID(source, native string) string {
	name := source + "\n" + strings.TrimSpace(native)
	return uuid.NewSHA1(itemNamespace, []byte(name)).String()
}

// HasDate reports whether the item carries a publication timestamp.
func (i FeedItem) HasDate() bool {
	return i.PublishedAt != nil && !i.PublishedAt.IsZero()
}

// StringPtr returns nil for blank strings.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// TimePtr returns nil for the zero time and normalizes to UTC otherwise.
func TimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// SourceResult is the outcome of one adapter run. Errors never imply
// that Items is empty: partial results are kept.
type SourceResult struct {
	Source    string        `json:"source"`
	SourceURL string        `json:"source_url"`
	Items     []FeedItem    `json:"items"`
	Errors    []ErrorRecord `json:"errors"`
}

// NewSourceResult returns an empty result with non-nil slices.
func NewSourceResult(source, sourceURL string) SourceResult {
	return SourceResult{
		Source:    source,
		SourceURL: sourceURL,
		Items:     []FeedItem{},
		Errors:    []ErrorRecord{},
	}
}

// AddError appends an error record built from err.
func (r *SourceResult) AddError(source string, err error) {
	if err == nil {
		return
	}
	r.Errors = append(r.Errors, RecordFromError(source, err))
}

// MarshalJSON keeps "items" and "errors" as arrays even when empty.
func (r SourceResult) MarshalJSON() ([]byte, error) {
	type alias SourceResult
	out := alias(r)
	if out.Items == nil {
		out.Items = []FeedItem{}
	}
	if out.Errors == nil {
		out.Errors = []ErrorRecord{}
	}
	return json.Marshal(out)
}

// RelevancePolicy tunes how the keyword filter treats one source.
type RelevancePolicy struct {
	// Prefiltered sources are inherently tariff-specific and skip filtering.
	Prefiltered bool
	// FallbackUnfiltered keeps the raw items when filtering would drop all of them.
	FallbackUnfiltered bool
	ExtraKeywords      []string
	// MaxItems caps the filtered list (newest first); zero keeps everything.
	MaxItems int
}

// SortNewestFirst orders dated items by descending published_at and keeps
// undated items after them in their original sequence.
func SortNewestFirst(items []FeedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch {
		case a.HasDate() && b.HasDate():
			return a.PublishedAt.After(*b.PublishedAt)
		case a.HasDate():
			return true
		default:
			return false
		}
	})
}
