package filestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/phrazzld/proverd/internal/domain"
)

// RequestStore keeps the input payload of each task in dir as <task_id>.json.
type RequestStore struct {
	dir    string
	policy WritePolicy
	logger *slog.Logger
	write  writeFunc
}

// NewRequestStore creates a RequestStore rooted at dir.
func NewRequestStore(dir string, policy WritePolicy, logger *slog.Logger) *RequestStore {
	return &RequestStore{
		dir:    dir,
		policy: policy,
		logger: logger.With("component", "request_store"),
		write:  writeFileAtomic,
	}
}

// Path returns where the payload of taskID is stored.
func (s *RequestStore) Path(taskID string) string {
	return filepath.Join(s.dir, taskID+".json")
}

// WriteInput stores payload verbatim and returns its path.
func (s *RequestStore) WriteInput(ctx context.Context, taskID string, payload []byte) (string, error) {
	if _, err := domain.ParseID("task_id", taskID); err != nil {
		return "", err
	}
	path := s.Path(taskID)
	if err := writeWithRetry(ctx, s.policy, s.write, path, payload); err != nil {
		s.logger.Error("failed to write input payload", "task_id", taskID, "error", err)
		return "", fmt.Errorf("failed to write input payload: %w", err)
	}
	return path, nil
}

// RemoveInput deletes the payload of taskID. A missing file is not an error.
func (s *RequestStore) RemoveInput(taskID string) error {
	if _, err := domain.ParseID("task_id", taskID); err != nil {
		return nil
	}
	if err := os.Remove(s.Path(taskID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
