package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	t.Parallel()

	id := uuid.NewString()
	parsed, err := ParseID("task_id", id)
	require.NoError(t, err)
	assert.Equal(t, id, parsed.String())

	tests := []struct {
		name string
		id   string
	}{
		{"empty", ""},
		{"path traversal", "../" + id},
		{"nested path", "a/b"},
		{"metadata file", "metadata.json"},
		{"uppercase", strings.ToUpper(id)},
		{"braces", "{" + id + "}"},
		{"urn", "urn:uuid:" + id},
		{"no dashes", strings.ReplaceAll(id, "-", "")},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseID("task_id", tt.id)
			assert.ErrorIs(t, err, ErrInvalidID)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, uuid.Nil, got)
			assert.Contains(t, err.Error(), "task_id")
		})
	}
}
