package ports

import (
	"context"
	"time"

	"TariffIntel/internal/domain"
)

// Adapter fetches and normalizes one upstream feed. Fetch never fails:
// problems are reported inside the returned SourceResult.
type Adapter interface {
	Key() string
	Group() string
	Source() string
	SourceURL() string
	Relevance() domain.RelevancePolicy
	Fetch(ctx context.Context) domain.SourceResult
}

// AdapterSource resolves the configured adapters in registry order.
type AdapterSource interface {
	Adapters() ([]Adapter, error)
}

// SeenStore tracks when each (source, id) pair was last observed.
type SeenStore interface {
	LastSeen(ctx context.Context, source string, ids []string) (map[string]time.Time, error)
	Touch(ctx context.Context, source string, ids []string, at time.Time) error
}

// DocumentStore persists the aggregate artifact. Load returns nil, nil
// when no artifact exists yet.
type DocumentStore interface {
	Load(ctx context.Context) (*domain.AggregateDocument, error)
	Save(ctx context.Context, doc *domain.AggregateDocument) error
}

// Notifier streams digests of fresh items to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
