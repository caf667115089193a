package domain

import (
	"fmt"
	"time"
)

// Program describes an uploaded prover program binary.
type Program struct {
	ID         string    `json:"id"`
	Prover     string    `json:"prover"`
	Name       string    `json:"name"`
	Version    string    `json:"version"`
	Desc       string    `json:"desc"`
	Checksum   string    `json:"checksum"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Validate checks if the Program has valid data.
func (p *Program) Validate() error {
	if _, err := ParseID("id", p.ID); err != nil {
		return err
	}
	if p.Prover == "" {
		return fmt.Errorf("%w: prover is required", ErrValidation)
	}
	return nil
}
