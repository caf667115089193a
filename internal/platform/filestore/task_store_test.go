package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/proverd/internal/domain"
	"github.com/phrazzld/proverd/internal/platform/logger"
	"github.com/phrazzld/proverd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() WritePolicy {
	return WritePolicy{Attempts: 2, Backoff: time.Millisecond}
}

func newTestTaskStore(t *testing.T) *TaskStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "task_store.json")
	s := NewTaskStore(path, fastPolicy(), logger.DiscardLogger())
	require.NoError(t, s.Load(context.Background()))
	return s
}

func newQueuedTask(t *testing.T, id string) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(id, "program-1", "/data/programs/program-1",
		"/data/request_data/"+id+".json", "succinct", "", map[string]string{"RUST_LOG": "info"})
	require.NoError(t, err)
	return task
}

func TestTaskStore_CreateGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestTaskStore(t)

	task := newQueuedTask(t, "t1")
	require.NoError(t, s.Create(ctx, task))

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, task.ProgramPath, got.ProgramPath)
	assert.Equal(t, domain.TaskStatusQueued, got.Status)

	// the store holds its own copy
	got.Env["RUST_LOG"] = "trace"
	again, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "info", again.Env["RUST_LOG"])

	err = s.Create(ctx, newQueuedTask(t, "t1"))
	assert.ErrorIs(t, err, store.ErrTaskExists)
	assert.True(t, store.IsDuplicateError(err))

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestTaskStore_CreateInvalid(t *testing.T) {
	t.Parallel()
	s := newTestTaskStore(t)

	err := s.Create(context.Background(), &domain.Task{ID: "x", Status: "bogus"})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestTaskStore_Update(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestTaskStore(t)
	require.NoError(t, s.Create(ctx, newQueuedTask(t, "t1")))

	updated, err := s.Update(ctx, "t1", func(task *domain.Task) error {
		if err := task.TransitionTo(domain.TaskStatusRunning); err != nil {
			return err
		}
		task.PID = 1234
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusRunning, updated.Status)
	assert.Equal(t, 1234, updated.PID)

	t.Run("mutator error aborts", func(t *testing.T) {
		_, err := s.Update(ctx, "t1", func(task *domain.Task) error {
			task.PID = 1
			return task.TransitionTo(domain.TaskStatusPaused)
		})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		got, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, 1234, got.PID)
	})

	t.Run("immutable fields", func(t *testing.T) {
		_, err := s.Update(ctx, "t1", func(task *domain.Task) error {
			task.InputPath = "/elsewhere"
			return nil
		})
		assert.ErrorIs(t, err, store.ErrInvalidEntity)

		_, err = s.Update(ctx, "t1", func(task *domain.Task) error {
			task.Env["NEW"] = "1"
			return nil
		})
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})

	t.Run("missing task", func(t *testing.T) {
		_, err := s.Update(ctx, "missing", func(task *domain.Task) error { return nil })
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}

func TestTaskStore_DeleteList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestTaskStore(t)

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Create(ctx, newQueuedTask(t, id)))
	}
	_, err := s.Update(ctx, "c", func(task *domain.Task) error {
		return task.TransitionTo(domain.TaskStatusPaused)
	})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "b"))
	assert.ErrorIs(t, s.Delete(ctx, "b"), store.ErrTaskNotFound)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, taskIDs(all))

	queued, err := s.List(ctx, domain.TaskStatusQueued)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d"}, taskIDs(queued))

	paused, err := s.List(ctx, domain.TaskStatusPaused)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, taskIDs(paused))
}

func TestTaskStore_PersistAndReload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "task_store.json")
	s := NewTaskStore(path, fastPolicy(), logger.DiscardLogger())
	require.NoError(t, s.Load(ctx))

	for _, id := range []string{"z", "a", "m"} {
		require.NoError(t, s.Create(ctx, newQueuedTask(t, id)))
	}
	_, err := s.Update(ctx, "a", func(task *domain.Task) error {
		if err := task.TransitionTo(domain.TaskStatusRunning); err != nil {
			return err
		}
		return task.Finish("ok", `{"proof":"0x00"}`, 2*time.Second, nil)
	})
	require.NoError(t, err)

	reloaded := NewTaskStore(path, fastPolicy(), logger.DiscardLogger())
	require.NoError(t, reloaded.Load(ctx))

	all, err := reloaded.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m"}, taskIDs(all), "insertion order survives a reload")

	done, err := reloaded.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusDone, done.Status)
	assert.Equal(t, `{"proof":"0x00"}`, done.ProofFixture)
	assert.Equal(t, "2.000000", done.Elapsed)
	require.NotNil(t, done.Result)
	assert.Equal(t, "ok", *done.Result)

	// no temp files are left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "task_store.json", entries[0].Name())
}

func TestTaskStore_LoadUsesKeyAsID(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "task_store.json")
	doc := `{
  "first": {"status": "running", "program_path": "/p", "input_file": "/i", "prover": "succinct", "result": null, "pid": 77},
  "second": {"status": "done", "program_path": "/p", "input_file": "/i", "prover": "succinct", "env": {"A": "1"}}
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s := NewTaskStore(path, fastPolicy(), logger.DiscardLogger())
	require.NoError(t, s.Load(context.Background()))

	all, err := s.List(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, taskIDs(all))
	assert.Equal(t, domain.TaskStatusRunning, all[0].Status)
	assert.Equal(t, 77, all[0].PID)
	assert.NotNil(t, all[0].Env)
	assert.Equal(t, "1", all[1].Env["A"])
}

func TestTaskStore_LoadCorrupt(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "task_store.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a": {"status": `), 0o644))

	s := NewTaskStore(path, fastPolicy(), logger.DiscardLogger())
	err := s.Load(context.Background())

	var storeErr *store.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "load", storeErr.Operation)
}

func TestTaskStore_PersistenceFailureRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestTaskStore(t)
	require.NoError(t, s.Create(ctx, newQueuedTask(t, "t1")))

	var attempts int
	s.write = func(path string, data []byte, perm os.FileMode) error {
		attempts++
		return errors.New("disk full")
	}

	_, err := s.Update(ctx, "t1", func(task *domain.Task) error {
		return task.TransitionTo(domain.TaskStatusRunning)
	})
	assert.ErrorIs(t, err, store.ErrPersistence)
	assert.Equal(t, 2, attempts, "write is retried per policy")

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusQueued, got.Status, "failed write must not be committed")

	err = s.Create(ctx, newQueuedTask(t, "t2"))
	assert.ErrorIs(t, err, store.ErrPersistence)
	_, err = s.Get(ctx, "t2")
	assert.ErrorIs(t, err, store.ErrTaskNotFound)

	err = s.Delete(ctx, "t1")
	assert.ErrorIs(t, err, store.ErrPersistence)
	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, taskIDs(all))
}

func TestTaskStore_RetryRecovers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestTaskStore(t)

	var failures int
	s.write = func(path string, data []byte, perm os.FileMode) error {
		if failures == 0 {
			failures++
			return errors.New("transient")
		}
		return writeFileAtomic(path, data, perm)
	}

	require.NoError(t, s.Create(ctx, newQueuedTask(t, "t1")))

	reloaded := NewTaskStore(s.Path(), fastPolicy(), logger.DiscardLogger())
	require.NoError(t, reloaded.Load(ctx))
	_, err := reloaded.Get(ctx, "t1")
	assert.NoError(t, err)
}

func TestTaskStore_ConcurrentUpdates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestTaskStore(t)

	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, s.Create(ctx, newQueuedTask(t, fmt.Sprintf("t%02d", i))))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.Update(ctx, id, func(task *domain.Task) error {
				if err := task.TransitionTo(domain.TaskStatusRunning); err != nil {
					return err
				}
				return task.Finish("out-"+id, "", time.Millisecond, nil)
			})
			assert.NoError(t, err)
		}(fmt.Sprintf("t%02d", i))
	}
	wg.Wait()

	reloaded := NewTaskStore(s.Path(), fastPolicy(), logger.DiscardLogger())
	require.NoError(t, reloaded.Load(ctx))
	done, err := reloaded.List(ctx, domain.TaskStatusDone)
	require.NoError(t, err)
	require.Len(t, done, n)
	for _, task := range done {
		assert.Equal(t, "out-"+task.ID, *task.Result)
	}
}

func taskIDs(tasks []*domain.Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	return ids
}
