package filestore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/phrazzld/proverd/internal/domain"
	"github.com/phrazzld/proverd/internal/store"
	"golang.org/x/crypto/blake2b"
)

// MetadataFile is the name of the program metadata document inside the program directory.
const MetadataFile = "metadata.json"

// ProgramStore implements the store.ProgramStore interface. Binaries live in
// dir named by program ID; their metadata lives in one JSON document next to them.
type ProgramStore struct {
	dir    string
	policy WritePolicy
	logger *slog.Logger

	mu       sync.Mutex
	programs map[string]*domain.Program
	order    []string
	loaded   bool

	write writeFunc
}

var _ store.ProgramStore = (*ProgramStore)(nil)

// NewProgramStore creates a ProgramStore rooted at dir.
func NewProgramStore(dir string, policy WritePolicy, logger *slog.Logger) *ProgramStore {
	return &ProgramStore{
		dir:      dir,
		policy:   policy,
		logger:   logger.With("component", "program_store"),
		programs: make(map[string]*domain.Program),
		order:    make([]string, 0),
		write:    writeFileAtomic,
	}
}

// Path returns the location of the program binary.
func (s *ProgramStore) Path(id string) string {
	return filepath.Join(s.dir, id)
}

// Save stores the binary and records its metadata. The upload is streamed
// to a temp file first so slow clients never hold the store lock.
func (s *ProgramStore) Save(ctx context.Context, program *domain.Program, r io.Reader) error {
	if err := program.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	err := s.checkAbsentLocked(program.ID)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	hash, err := blake2b.New256(nil)
	if err != nil {
		return store.NewStoreError("program", "save", "failed to create hasher", err)
	}
	staged, err := stageFile(s.dir, program.ID, io.TeeReader(r, hash), 0o755)
	if err != nil {
		return store.NewStoreError("program", "save", "failed to store binary", err)
	}
	committed := false
	defer func() {
		if !committed {
			staged.discard()
		}
	}()
	if staged.size == 0 {
		return domain.ErrEmptyProgram
	}
	program.Checksum = hex.EncodeToString(hash.Sum(nil))

	s.mu.Lock()
	defer s.mu.Unlock()

	// another upload may have claimed the ID while this one was streaming
	if err := s.checkAbsentLocked(program.ID); err != nil {
		return err
	}
	path := s.Path(program.ID)
	if err := staged.commit(path); err != nil {
		_ = os.Remove(path)
		return store.NewStoreError("program", "save", "failed to store binary", err)
	}
	committed = true

	stored := *program
	s.programs[program.ID] = &stored
	s.order = append(s.order, program.ID)
	if err := s.persistLocked(ctx); err != nil {
		delete(s.programs, program.ID)
		s.order = s.order[:len(s.order)-1]
		_ = os.Remove(path)
		return store.NewStoreError("program", "save", "failed to persist metadata", err)
	}

	s.logger.Info("program stored",
		"program_id", program.ID,
		"prover", program.Prover,
		"size_bytes", staged.size)
	return nil
}

// Get returns the metadata of a program whose binary is present on disk.
func (s *ProgramStore) Get(ctx context.Context, id string) (*domain.Program, error) {
	if _, err := domain.ParseID("program_id", id); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrProgramNotFound, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	program, ok := s.programs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s not found in metadata", store.ErrProgramNotFound, id)
	}
	if _, err := os.Stat(s.Path(id)); err != nil {
		return nil, fmt.Errorf("%w: %s not found on disk", store.ErrProgramNotFound, id)
	}

	copied := *program
	return &copied, nil
}

// List returns the metadata of all programs in upload order.
func (s *ProgramStore) List(ctx context.Context) ([]*domain.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	programs := make([]*domain.Program, 0, len(s.order))
	for _, id := range s.order {
		copied := *s.programs[id]
		programs = append(programs, &copied)
	}
	return programs, nil
}

// checkAbsentLocked fails with ErrDuplicate when id is taken. The caller must hold s.mu.
func (s *ProgramStore) checkAbsentLocked(id string) error {
	if err := s.loadLocked(); err != nil {
		return err
	}
	if _, exists := s.programs[id]; exists {
		return fmt.Errorf("%w: program %s", store.ErrDuplicate, id)
	}
	return nil
}

// loadLocked reads the metadata document once. The caller must hold s.mu.
func (s *ProgramStore) loadLocked() error {
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(s.dir, MetadataFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return store.NewStoreError("program", "load", "failed to read metadata", err)
	}

	order, programs, err := decodeDocument[*domain.Program](data)
	if err != nil {
		return store.NewStoreError("program", "load", "failed to decode metadata", err)
	}
	for _, id := range order {
		if programs[id] == nil {
			return store.NewStoreError("program", "load", "null record for "+id, store.ErrInvalidEntity)
		}
		programs[id].ID = id
	}

	s.programs = programs
	s.order = order
	s.loaded = true
	return nil
}

func (s *ProgramStore) persistLocked(ctx context.Context) error {
	data, err := encodeDocument(s.order, s.programs)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	path := filepath.Join(s.dir, MetadataFile)
	if err := writeWithRetry(ctx, s.policy, s.write, path, data); err != nil {
		s.logger.Error("failed to write program metadata", "path", path, "error", err)
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	return nil
}
