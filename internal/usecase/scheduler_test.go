package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TariffIntel/internal/domain"
	"TariffIntel/internal/ports"
)

type memoryStore struct {
	doc     *domain.AggregateDocument
	saves   int
	loadErr error
	saveErr error
}

func (m *memoryStore) Load(context.Context) (*domain.AggregateDocument, error) {
	return m.doc, m.loadErr
}

func (m *memoryStore) Save(_ context.Context, doc *domain.AggregateDocument) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.doc = doc
	m.saves++
	return nil
}

type immediateDriver struct {
	runs    int
	stopped bool
}

func (d *immediateDriver) Start(_ context.Context, job func(time.Time)) error {
	for i := 0; i < 2; i++ {
		d.runs++
		job(time.Now())
	}
	return nil
}

func (d *immediateDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestRefresherCarriesPreviousArtifact(t *testing.T) {
	a := feedItem("fr", "A", "Tariff A", 1)
	b := feedItem("fr", "B", "Tariff B", 2)

	store := &memoryStore{doc: &domain.AggregateDocument{}}
	store.doc.Feeds.Put("", "federal_register", &domain.SourceResult{Items: []domain.FeedItem{a}})

	refresher := NewRefresher(newTestPipeline([]ports.Adapter{staticAdapter("federal_register", "", 0, b)}, nil), store, nil)

	doc, err := refresher.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.saves)
	assert.Same(t, doc, store.doc)
	assert.Len(t, doc.Feeds.Lookup("", "federal_register").Items, 2)
}

func TestRefresherIgnoresUnreadablePrevious(t *testing.T) {
	store := &memoryStore{loadErr: errors.New("permission denied")}
	refresher := NewRefresher(newTestPipeline([]ports.Adapter{staticAdapter("cbp_csms", "", 0)}, nil), store, nil)

	_, err := refresher.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.saves)
}

func TestRefresherWriteFailure(t *testing.T) {
	store := &memoryStore{saveErr: errors.New("disk full")}
	refresher := NewRefresher(newTestPipeline([]ports.Adapter{staticAdapter("cbp_csms", "", 0)}, nil), store, nil)

	doc, err := refresher.Refresh(context.Background())
	require.ErrorContains(t, err, "write artifact")
	assert.NotNil(t, doc)
}

func TestSchedulerRunsRefresh(t *testing.T) {
	store := &memoryStore{}
	driver := &immediateDriver{}
	refresher := NewRefresher(newTestPipeline([]ports.Adapter{staticAdapter("cbp_csms", "", 0)}, nil), store, nil)

	s := NewScheduler(driver, refresher, nil)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, 2, driver.runs)
	assert.Equal(t, 2, store.saves)
	assert.True(t, driver.stopped)
}

func TestSchedulerWithoutDriver(t *testing.T) {
	s := NewScheduler(nil, nil, nil)
	assert.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.Stop(context.Background()))
}
