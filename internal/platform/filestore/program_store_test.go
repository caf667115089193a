package filestore

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/proverd/internal/domain"
	"github.com/phrazzld/proverd/internal/platform/logger"
	"github.com/phrazzld/proverd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

const (
	programA = "0b6f1c8e-6a3e-4c57-9d2b-4f1e2a7c9d01"
	programB = "5d2e8f40-1b7c-4e9a-8c3d-2a6b9e0f1c02"
	programC = "9a4c7e21-3d5f-4b8e-a1c6-7e2d0b3f4a03"
)

func newTestProgramStore(t *testing.T) (*ProgramStore, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "programs")
	return NewProgramStore(dir, fastPolicy(), logger.DiscardLogger()), dir
}

func testProgram(id string) *domain.Program {
	return &domain.Program{
		ID:         id,
		Prover:     "succinct",
		Name:       "fibonacci",
		Version:    "1.0.0",
		Desc:       "fib(n)",
		UploadedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestProgramStore_SaveGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, dir := newTestProgramStore(t)

	binary := []byte("\x7fELF fake binary")
	program := testProgram(programA)
	require.NoError(t, s.Save(ctx, program, bytes.NewReader(binary)))

	sum := blake2b.Sum256(binary)
	assert.Equal(t, hex.EncodeToString(sum[:]), program.Checksum)

	got, err := s.Get(ctx, programA)
	require.NoError(t, err)
	assert.Equal(t, program.Checksum, got.Checksum)
	assert.Equal(t, "fibonacci", got.Name)

	data, err := os.ReadFile(s.Path(programA))
	require.NoError(t, err)
	assert.Equal(t, binary, data)

	info, err := os.Stat(s.Path(programA))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	_, err = os.Stat(filepath.Join(dir, MetadataFile))
	assert.NoError(t, err)
}

func TestProgramStore_Duplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestProgramStore(t)

	require.NoError(t, s.Save(ctx, testProgram(programA), strings.NewReader("one")))
	err := s.Save(ctx, testProgram(programA), strings.NewReader("two"))
	assert.ErrorIs(t, err, store.ErrDuplicate)

	data, err := os.ReadFile(s.Path(programA))
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
}

func TestProgramStore_EmptyBinary(t *testing.T) {
	t.Parallel()
	s, _ := newTestProgramStore(t)

	err := s.Save(context.Background(), testProgram(programA), strings.NewReader(""))
	assert.ErrorIs(t, err, domain.ErrEmptyProgram)

	_, err = os.Stat(s.Path(programA))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = s.Get(context.Background(), programA)
	assert.ErrorIs(t, err, store.ErrProgramNotFound)
}

func TestProgramStore_RejectsNonUUIDs(t *testing.T) {
	t.Parallel()
	s, dir := newTestProgramStore(t)

	for _, id := range []string{"", ".", "..", "../escape", "a/b", `a\b`, MetadataFile, "p1", strings.ToUpper(programA)} {
		t.Run(id, func(t *testing.T) {
			err := s.Save(context.Background(), testProgram(id), strings.NewReader("bin"))
			assert.ErrorIs(t, err, store.ErrInvalidEntity)
			assert.ErrorIs(t, err, domain.ErrInvalidID)

			_, err = s.Get(context.Background(), id)
			assert.ErrorIs(t, err, store.ErrProgramNotFound)
		})
	}

	entries, err := os.ReadDir(dir)
	if !errors.Is(err, os.ErrNotExist) {
		require.NoError(t, err)
		assert.Empty(t, entries, "nothing is written for rejected IDs")
	}
}

func TestProgramStore_MissingBinary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestProgramStore(t)

	require.NoError(t, s.Save(ctx, testProgram(programA), strings.NewReader("bin")))
	require.NoError(t, os.Remove(s.Path(programA)))

	_, err := s.Get(ctx, programA)
	assert.ErrorIs(t, err, store.ErrProgramNotFound)
	assert.True(t, store.IsNotFoundError(err))
}

func TestProgramStore_ListAndReload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, dir := newTestProgramStore(t)

	for _, id := range []string{programB, programA, programC} {
		require.NoError(t, s.Save(ctx, testProgram(id), strings.NewReader("bin-"+id)))
	}

	reloaded := NewProgramStore(dir, fastPolicy(), logger.DiscardLogger())
	programs, err := reloaded.List(ctx)
	require.NoError(t, err)
	require.Len(t, programs, 3)
	assert.Equal(t, programB, programs[0].ID)
	assert.Equal(t, programA, programs[1].ID)
	assert.Equal(t, programC, programs[2].ID)
	assert.True(t, programs[0].UploadedAt.Equal(testProgram(programB).UploadedAt))
}

func TestProgramStore_PersistenceFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestProgramStore(t)

	s.write = func(path string, data []byte, perm os.FileMode) error {
		return errors.New("disk full")
	}

	err := s.Save(ctx, testProgram(programA), strings.NewReader("bin"))
	assert.ErrorIs(t, err, store.ErrPersistence)

	_, err = os.Stat(s.Path(programA))
	assert.True(t, errors.Is(err, os.ErrNotExist), "binary is removed when metadata cannot be written")

	programs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, programs)
}

func TestProgramStore_SlowUploadDoesNotBlockReaders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, dir := newTestProgramStore(t)
	require.NoError(t, s.Save(ctx, testProgram(programA), strings.NewReader("bin")))

	pr, pw := io.Pipe()
	saved := make(chan error, 1)
	go func() {
		saved <- s.Save(ctx, testProgram(programB), pr)
	}()
	_, err := pw.Write([]byte("first chunk"))
	require.NoError(t, err)

	// the upload is mid-stream; readers must still get through
	read := make(chan struct{})
	go func() {
		defer close(read)
		_, getErr := s.Get(ctx, programA)
		assert.NoError(t, getErr)
		programs, listErr := s.List(ctx)
		assert.NoError(t, listErr)
		assert.Len(t, programs, 1)
	}()
	select {
	case <-read:
	case <-time.After(2 * time.Second):
		t.Fatal("Get and List blocked behind an in-flight upload")
	}

	_, err = s.Get(ctx, programB)
	assert.ErrorIs(t, err, store.ErrProgramNotFound, "not visible until committed")

	_, err = pw.Write([]byte(" second chunk"))
	require.NoError(t, err)
	require.NoError(t, pw.Close())
	require.NoError(t, <-saved)

	data, err := os.ReadFile(s.Path(programB))
	require.NoError(t, err)
	assert.Equal(t, "first chunk second chunk", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp.", "staged upload is renamed into place")
	}
}

func TestProgramStore_ConcurrentUploadsOfSameID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newTestProgramStore(t)

	pr, pw := io.Pipe()
	slow := make(chan error, 1)
	go func() {
		slow <- s.Save(ctx, testProgram(programA), pr)
	}()
	_, err := pw.Write([]byte("slow"))
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, testProgram(programA), strings.NewReader("fast")))
	require.NoError(t, pw.Close())
	assert.ErrorIs(t, <-slow, store.ErrDuplicate)

	data, err := os.ReadFile(s.Path(programA))
	require.NoError(t, err)
	assert.Equal(t, "fast", string(data))
}

func TestProgramStore_AbortedUploadLeavesNothingBehind(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, dir := newTestProgramStore(t)

	pr, pw := io.Pipe()
	go func() {
		_, _ = pw.Write([]byte("half"))
		_ = pw.CloseWithError(errors.New("client went away"))
	}()
	err := s.Save(ctx, testProgram(programA), pr)
	var storeErr *store.StoreError
	assert.ErrorAs(t, err, &storeErr)
	assert.ErrorContains(t, err, "client went away")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
