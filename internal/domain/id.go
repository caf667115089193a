package domain

import "github.com/google/uuid"

// ParseID checks that id is a UUID in canonical lowercase form. Task and
// program IDs double as file names, so nothing else is accepted.
func ParseID(field, id string) (uuid.UUID, error) {
	if id == "" {
		return uuid.Nil, NewValidationError(field, "is required", ErrInvalidID)
	}
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return uuid.Nil, NewValidationError(field, "must be a UUID", ErrInvalidID)
	}
	return parsed, nil
}
