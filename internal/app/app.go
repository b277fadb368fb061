package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"TariffIntel/internal/config"
	"TariffIntel/internal/domain"
	"TariffIntel/internal/duty"
	"TariffIntel/internal/infrastructure/httpapi"
	"TariffIntel/internal/infrastructure/parser"
	"TariffIntel/internal/infrastructure/scheduler"
	"TariffIntel/internal/infrastructure/storage"
	"TariffIntel/internal/infrastructure/telegram"
	"TariffIntel/internal/logging"
	"TariffIntel/internal/ports"
	"TariffIntel/internal/relevance"
	"TariffIntel/internal/scanner"
	"TariffIntel/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.FileDocumentStore
	refresher *usecase.Refresher

	db       *sql.DB
	memSeen  *storage.MemorySeenStore
	seedOnce sync.Once
}

// New builds the application. A configured database that cannot be
// reached degrades to the in-memory seen-store.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) *Application {
	if baseLogger == nil {
		baseLogger = logging.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	}

	fetcher := parser.NewFetcher(parser.FetcherOptions{
		Timeout:   cfg.Fetch.Timeout,
		Retries:   cfg.Fetch.Retries,
		UserAgent: cfg.Fetch.UserAgent,
	})

	registry := scanner.NewRegistry()
	parser.RegisterDefaults(registry, fetcher)
	source := parser.NewStrategySource(registry, cfg.Sites, baseLogger.With("component", "source"))

	a := &Application{
		cfg:    cfg,
		logger: baseLogger,
		store:  storage.NewFileDocumentStore(cfg.Output.Path, baseLogger.With("component", "storage")),
	}

	var notifier ports.Notifier
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID); tg.Configured() {
		notifier = tg
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:      source,
		Filter:      relevance.NewFilter(cfg.Relevance.Keywords),
		Seen:        a.seenStore(ctx),
		Notifier:    notifier,
		Logger:      baseLogger.With("component", "pipeline"),
		Retention:   cfg.Dedup.Retention,
		Concurrency: cfg.Fetch.Concurrency,
		RunTimeout:  cfg.Fetch.RunTimeout,
	})
	a.refresher = usecase.NewRefresher(pipeline, a.store, baseLogger.With("component", "refresher"))
	return a
}

func (a *Application) seenStore(ctx context.Context) ports.SeenStore {
	if dsn := a.cfg.Database.DSN; dsn != "" {
		db, err := storage.OpenPostgres(ctx, dsn)
		if err == nil {
			pg := storage.NewPostgresSeenStore(db)
			if err = pg.EnsureSchema(ctx); err == nil {
				a.db = db
				return pg
			}
			_ = db.Close()
		}
		a.logger.Warn("postgres seen-store unavailable, using memory", "error", err)
	}
	a.memSeen = storage.NewMemorySeenStore()
	return a.memSeen
}

// Run performs a single aggregation and writes the artifact.
func (a *Application) Run(ctx context.Context) (*domain.AggregateDocument, error) {
	a.seed(ctx)
	return a.refresher.Refresh(ctx)
}

// Schedule runs the aggregation every interval until ctx is cancelled.
func (a *Application) Schedule(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = a.cfg.Scheduler.Interval
	}
	if interval <= 0 {
		return fmt.Errorf("schedule: interval must be positive")
	}

	a.seed(ctx)

	driver := scheduler.NewIntervalScheduler(interval, a.cfg.Scheduler.Location())
	sched := usecase.NewScheduler(driver, a.refresher, a.logger.With("component", "scheduler"))

	a.logger.Info("scheduler started", "interval", interval)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return nil
}

// seed primes the in-memory seen-store from the last artifact so that
// carried items are not announced again after a restart.
func (a *Application) seed(ctx context.Context) {
	a.seedOnce.Do(func() {
		if a.memSeen == nil {
			return
		}
		previous, err := a.store.Load(ctx)
		if err != nil {
			a.logger.Warn("cannot seed seen-store from artifact", "error", err)
			return
		}
		a.memSeen.SeedFromDocument(previous)
	})
}

// Serve exposes the HTTP API until ctx is cancelled.
func (a *Application) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	api := httpapi.NewServer(a.store, duty.NewCalculator(), a.logger.With("component", "http"))
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Close releases the database pool, if any.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
