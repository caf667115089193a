package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-retry"
)

// WritePolicy controls how often a failed snapshot write is retried.
type WritePolicy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts uint64
	// Backoff is the base delay of the exponential backoff between tries.
	Backoff time.Duration
}

// DefaultWritePolicy returns a WritePolicy with reasonable defaults.
func DefaultWritePolicy() WritePolicy {
	return WritePolicy{
		Attempts: 3,
		Backoff:  50 * time.Millisecond,
	}
}

type writeFunc func(path string, data []byte, perm os.FileMode) error

// writeWithRetry writes data through write, retrying according to the policy.
func writeWithRetry(ctx context.Context, policy WritePolicy, write writeFunc, path string, data []byte) error {
	attempts := policy.Attempts
	if attempts == 0 {
		attempts = 1
	}
	backoff := policy.Backoff
	if backoff <= 0 {
		backoff = DefaultWritePolicy().Backoff
	}

	b := retry.WithMaxRetries(attempts-1, retry.NewExponential(backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := write(path, data, 0o644); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// writeFileAtomic replaces path with data so readers only ever observe the
// old or the new content.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

// stagedFile is a synced temp file waiting to be renamed into place.
type stagedFile struct {
	name string
	size int64
}

// stageFile streams r into a temp file in dir with the given mode. The
// caller either commits it or discards it.
func stageFile(dir, prefix string, r io.Reader, perm os.FileMode) (*stagedFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(dir, prefix+".tmp.*")
	if err != nil {
		return nil, err
	}
	staged := &stagedFile{name: tmp.Name()}
	ok := false
	defer func() {
		_ = tmp.Close()
		if !ok {
			staged.discard()
		}
	}()

	staged.size, err = io.Copy(tmp, r)
	if err != nil {
		return nil, fmt.Errorf("failed to copy data: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	ok = true
	return staged, nil
}

// commit renames the staged file to path.
func (f *stagedFile) commit(path string) error {
	if err := os.Rename(f.name, path); err != nil {
		return err
	}
	return syncDir(filepath.Dir(path))
}

func (f *stagedFile) discard() {
	_ = os.Remove(f.name)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
