package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"TariffIntel/internal/ports"
)

const (
	seenTable     = "seen_items"
	touchBatchMax = 500
)

const seenSchema = `CREATE TABLE IF NOT EXISTS seen_items (
    source     TEXT        NOT NULL,
    item_id    TEXT        NOT NULL,
    first_seen TIMESTAMPTZ NOT NULL,
    last_seen  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (source, item_id)
)`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresSeenStore keeps (source, item_id) -> last_seen in Postgres.
type PostgresSeenStore struct {
	db *sql.DB
}

var _ ports.SeenStore = (*PostgresSeenStore)(nil)

// NewPostgresSeenStore wires a sql.DB implementation.
func NewPostgresSeenStore(db *sql.DB) *PostgresSeenStore {
	return &PostgresSeenStore{db: db}
}

// OpenPostgres opens a lib/pq connection pool and verifies it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the seen_items table when missing.
func (s *PostgresSeenStore) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, seenSchema); err != nil {
		return fmt.Errorf("create %s: %w", seenTable, err)
	}
	return nil
}

// LastSeen returns last_seen for the ids already stored under source.
func (s *PostgresSeenStore) LastSeen(ctx context.Context, source string, ids []string) (map[string]time.Time, error) {
	if s.db == nil || len(ids) == 0 {
		return map[string]time.Time{}, nil
	}

	query, args, err := lastSeenQuery(source, ids)
	if err != nil {
		return nil, fmt.Errorf("build last-seen query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query seen items: %w", err)
	}

	result := make(map[string]time.Time)
	for rows.Next() {
		var (
			id string
			at time.Time
		)
		if err := rows.Scan(&id, &at); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan seen item: %w", err)
		}
		result[id] = at.UTC()
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// Touch upserts every id with last_seen = at, keeping first_seen.
func (s *PostgresSeenStore) Touch(ctx context.Context, source string, ids []string, at time.Time) error {
	if s.db == nil || len(ids) == 0 {
		return nil
	}

	for start := 0; start < len(ids); start += touchBatchMax {
		end := start + touchBatchMax
		if end > len(ids) {
			end = len(ids)
		}

		query, args, err := touchQuery(source, ids[start:end], at)
		if err != nil {
			return fmt.Errorf("build touch query: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert seen items: %w", err)
		}
	}
	return nil
}

func lastSeenQuery(source string, ids []string) (string, []interface{}, error) {
	return psql.
		Select("item_id", "last_seen").
		From(seenTable).
		Where(sq.Eq{"source": source}).
		Where("item_id = ANY(?)", pq.StringArray(ids)).
		ToSql()
}

func touchQuery(source string, ids []string, at time.Time) (string, []interface{}, error) {
	at = at.UTC()
	insert := psql.
		Insert(seenTable).
		Columns("source", "item_id", "first_seen", "last_seen")
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		insert = insert.Values(source, id, at, at)
	}
	return insert.
		Suffix("ON CONFLICT (source, item_id) DO UPDATE SET last_seen = EXCLUDED.last_seen").
		ToSql()
}
