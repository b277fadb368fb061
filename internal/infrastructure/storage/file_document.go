package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"TariffIntel/internal/domain"
	"TariffIntel/internal/logging"
	"TariffIntel/internal/ports"
)

// FileDocumentStore keeps the aggregate artifact as a JSON file.
type FileDocumentStore struct {
	path   string
	logger *slog.Logger
}

var _ ports.DocumentStore = (*FileDocumentStore)(nil)

// NewFileDocumentStore stores the artifact at path.
func NewFileDocumentStore(path string, logger *slog.Logger) *FileDocumentStore {
	if logger == nil {
		logger = logging.Discard()
	}
	return &FileDocumentStore{path: path, logger: logger}
}

// Path returns the artifact location.
func (s *FileDocumentStore) Path() string { return s.path }

// Load reads the artifact. A missing or corrupt file yields nil, nil so
// the next run starts without carried items.
func (s *FileDocumentStore) Load(_ context.Context) (*domain.AggregateDocument, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	var doc domain.AggregateDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Warn("artifact is corrupt, ignoring it", "path", s.path, "error", err)
		return nil, nil
	}
	return &doc, nil
}

// Raw returns the artifact bytes as written, or os.ErrNotExist.
func (s *FileDocumentStore) Raw(_ context.Context) ([]byte, error) {
	return os.ReadFile(s.path)
}

// Save writes doc to a temp file in the target directory, syncs it and
// renames it over the artifact.
func (s *FileDocumentStore) Save(_ context.Context, doc *domain.AggregateDocument) error {
	if doc == nil {
		return errors.New("save artifact: nil document")
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	payload = append(payload, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp artifact: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace artifact: %w", err)
	}

	s.logger.Debug("artifact written", "path", s.path, "bytes", len(payload))
	return nil
}
