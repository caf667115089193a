package service

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/proverd/internal/domain"
	"github.com/phrazzld/proverd/internal/store"
)

// ProgramService manages uploaded prover programs.
type ProgramService interface {
	// Upload stores a program binary under a new ID
	Upload(ctx context.Context, req domain.UploadProgramRequest, binary io.Reader) (*domain.Program, error)

	// List returns all programs in upload order
	List(ctx context.Context) ([]*domain.Program, error)

	// Resolve returns a program and the path of its binary
	Resolve(ctx context.Context, id string) (*domain.Program, string, error)
}

type programServiceImpl struct {
	programs store.ProgramStore
	provers  []string
	logger   *slog.Logger
	now      func() time.Time
}

var _ ProgramService = (*programServiceImpl)(nil)

// NewProgramService creates a ProgramService accepting uploads for the given
// prover kinds.
func NewProgramService(programs store.ProgramStore, provers []string, logger *slog.Logger) (ProgramService, error) {
	if programs == nil {
		return nil, &ServiceError{
			Service:   "program",
			Operation: "create_service",
			Message:   "programs cannot be nil",
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &programServiceImpl{
		programs: programs,
		provers:  slices.Clone(provers),
		logger:   logger.With("component", "program_service"),
		now:      time.Now,
	}, nil
}

func (s *programServiceImpl) Upload(
	ctx context.Context,
	req domain.UploadProgramRequest,
	binary io.Reader,
) (*domain.Program, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !slices.Contains(s.provers, req.Prover) {
		return nil, domain.NewValidationError("prover", "is not supported: "+req.Prover, domain.ErrUnsupportedProver)
	}

	program := &domain.Program{
		ID:         uuid.NewString(),
		Prover:     req.Prover,
		Name:       req.Name,
		Version:    req.Version,
		Desc:       req.Desc,
		UploadedAt: s.now().UTC(),
	}
	if err := s.programs.Save(ctx, program, binary); err != nil {
		return nil, wrapError("program", "upload", "failed to store program", err)
	}

	s.logger.Info("program uploaded",
		"program_id", program.ID,
		"prover", program.Prover,
		"name", program.Name)
	return program, nil
}

func (s *programServiceImpl) List(ctx context.Context) ([]*domain.Program, error) {
	programs, err := s.programs.List(ctx)
	if err != nil {
		return nil, wrapError("program", "list", "failed to list programs", err)
	}
	return programs, nil
}

func (s *programServiceImpl) Resolve(ctx context.Context, id string) (*domain.Program, string, error) {
	program, err := s.programs.Get(ctx, id)
	if err != nil {
		return nil, "", wrapError("program", "resolve", "failed to load program", err)
	}
	return program, s.programs.Path(id), nil
}
