package store

import (
	"context"
	"io"

	"github.com/phrazzld/proverd/internal/domain"
)

// ProgramStore defines the interface for uploaded program binaries and their metadata.
type ProgramStore interface {
	// Save stores the binary read from r as an executable and records its metadata.
	// The program's Checksum is filled in from the stored bytes.
	Save(ctx context.Context, program *domain.Program, r io.Reader) error

	// Get returns the metadata of a program.
	// Returns ErrProgramNotFound if either the metadata or the binary is missing.
	Get(ctx context.Context, id string) (*domain.Program, error)

	// Path returns the location of the program binary.
	Path(id string) string

	// List returns the metadata of all programs in upload order.
	List(ctx context.Context) ([]*domain.Program, error)
}
