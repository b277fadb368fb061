package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"TariffIntel/internal/domain"
	"TariffIntel/internal/logging"
	"TariffIntel/internal/ports"
)

// Refresher runs one aggregation cycle against a persisted artifact.
type Refresher struct {
	pipeline *Pipeline
	store    ports.DocumentStore
	logger   *slog.Logger
}

// NewRefresher pairs the pipeline with the artifact store.
func NewRefresher(pipeline *Pipeline, store ports.DocumentStore, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Refresher{pipeline: pipeline, store: store, logger: logger}
}

// Refresh loads the previous artifact, runs the pipeline and writes the
// new document. Only a failed run or a failed write is an error.
func (r *Refresher) Refresh(ctx context.Context) (*domain.AggregateDocument, error) {
	var previous *domain.AggregateDocument
	if r.store != nil {
		doc, err := r.store.Load(ctx)
		if err != nil {
			r.logger.Warn("previous artifact unavailable, starting empty", "error", err)
		} else {
			previous = doc
		}
	}

	doc, err := r.pipeline.Run(ctx, previous)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	if r.store != nil {
		if err := r.store.Save(ctx, doc); err != nil {
			return doc, fmt.Errorf("write artifact: %w", err)
		}
		r.logger.Info("artifact written", "generated_at", doc.GeneratedAt.Format(time.RFC3339))
	}
	return doc, nil
}

// Scheduler wires the interval driver with the refresh use case.
type Scheduler struct {
	driver    ports.Scheduler
	refresher *Refresher
	logger    *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring refreshes.
func NewScheduler(driver ports.Scheduler, refresher *Refresher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{driver: driver, refresher: refresher, logger: logger}
}

// Start registers the refresh job with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.refresher == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if _, err := s.refresher.Refresh(ctx); err != nil {
			s.logger.Error("scheduled refresh failed", "trigger", trigger, "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
