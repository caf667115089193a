package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/proverd/internal/config"
	"github.com/phrazzld/proverd/internal/domain"
	"github.com/phrazzld/proverd/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProver writes a proof fixture into --output-dir and echoes its input.
const fakeProver = `#!/bin/sh
out=""
input=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output-dir) out="$2"; shift ;;
    --input) input="$2"; shift ;;
  esac
  shift
done
printf '{"proof":"ok"}' > "$out/proof_fixture.json"
printf 'proved %s' "$(cat "$input")"
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "fake-prover")
	require.NoError(t, os.WriteFile(bin, []byte(fakeProver), 0o755))

	return &config.Config{
		Server: config.ServerConfig{
			Port:            8080,
			LogLevel:        "debug",
			ShutdownTimeout: 2 * time.Second,
			MaxUploadBytes:  1 << 20,
		},
		Storage: config.StorageConfig{
			DataDir:       filepath.Join(dir, "data"),
			WriteAttempts: 2,
			WriteBackoff:  time.Millisecond,
		},
		Runner:   config.RunnerConfig{MaxConcurrency: 2, MaxQueueSize: 4},
		Callback: config.CallbackConfig{Timeout: time.Second},
		Provers: map[string]config.ProverConfig{
			"succinct": {Bin: bin, Args: []string{"--prove"}},
		},
	}
}

// startApp serves a new application on a loopback port until the test ends.
func startApp(t *testing.T, cfg *config.Config) string {
	t.Helper()
	app, err := newApplication(cfg, logger.DiscardLogger())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("server did not shut down")
		}
	})
	return "http://" + ln.Addr().String()
}

func uploadProgram(t *testing.T, base string) string {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "fib"))
	part, err := mw.CreateFormFile("file", "fib.elf")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x7fELF fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(base+"/uploadProgram", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var uploaded struct {
		ProgramID string `json:"program_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	require.NotEmpty(t, uploaded.ProgramID)
	return uploaded.ProgramID
}

func submitTask(t *testing.T, base string, form url.Values) (int, map[string]string) {
	t.Helper()
	resp, err := http.PostForm(base+"/submitTask", form)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func getTask(t *testing.T, base, id string) *domain.Task {
	t.Helper()
	resp, err := http.Get(base + "/getResult?task_id=" + url.QueryEscape(id))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var task domain.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&task))
	return &task
}

// taskStatus is getTask for polling loops, which must not stop the test from another goroutine.
func taskStatus(base, id string) domain.TaskStatus {
	resp, err := http.Get(base + "/getResult?task_id=" + url.QueryEscape(id))
	if err != nil {
		return ""
	}
	defer func() { _ = resp.Body.Close() }()
	var task domain.Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return ""
	}
	return task.Status
}

func TestApplicationEndToEnd(t *testing.T) {
	callbacks := make(chan []byte, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		callbacks <- data
	}))
	defer hook.Close()

	cfg := testConfig(t)
	base := startApp(t, cfg)

	programID := uploadProgram(t, base)

	status, body := submitTask(t, base, url.Values{
		"program_id":       {programID},
		"attestation_data": {`{"n":10}`},
		"callback":         {hook.URL},
		"env":              {`{"RUST_LOG":"info"}`},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "queued", body["status"])
	taskID := body["task_id"]

	require.Eventually(t, func() bool {
		return taskStatus(base, taskID) == domain.TaskStatusDone
	}, 10*time.Second, 20*time.Millisecond)
	task := getTask(t, base, taskID)

	require.NotNil(t, task.Result)
	assert.Equal(t, `proved {"n":10}`, *task.Result)
	assert.Equal(t, `{"proof":"ok"}`, task.ProofFixture)
	assert.Equal(t, map[string]string{"RUST_LOG": "info"}, task.Env)
	assert.NotEmpty(t, task.Elapsed)

	select {
	case data := <-callbacks:
		var payload struct {
			TaskID string      `json:"task_id"`
			Data   domain.Task `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &payload))
		assert.Equal(t, taskID, payload.TaskID)
		assert.Equal(t, domain.TaskStatusDone, payload.Data.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("callback was not delivered")
	}

	assert.Eventually(t, func() bool {
		resp, err := http.Get(base + "/metrics")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		metrics, err := io.ReadAll(resp.Body)
		return err == nil &&
			strings.Contains(string(metrics), `proverd_tasks_finished_total{prover="succinct",status="done"} 1`)
	}, 5*time.Second, 20*time.Millisecond)

	req, err := http.NewRequest(http.MethodDelete, base+"/deleteTask?task_id="+taskID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/getResult?task_id=" + taskID)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestApplicationRejectsUnknownProgram(t *testing.T) {
	base := startApp(t, testConfig(t))

	status, body := submitTask(t, base, url.Values{"program_id": {uuid.NewString()}})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "program_not_found", body["error"])

	status, body = submitTask(t, base, url.Values{"program_id": {"../" + taskStoreFile}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid program_id: must be a UUID", body["error"])
}

func TestApplicationRecoversQueuedTasks(t *testing.T) {
	cfg := testConfig(t)
	dataDir := cfg.Storage.DataDir
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, requestDataDir), 0o755))

	taskID := uuid.NewString()
	programID := uuid.NewString()
	input := filepath.Join(dataDir, requestDataDir, taskID+".json")
	require.NoError(t, os.WriteFile(input, []byte("42"), 0o644))
	program := filepath.Join(dataDir, programDir, programID)
	require.NoError(t, os.MkdirAll(filepath.Dir(program), 0o755))
	require.NoError(t, os.WriteFile(program, []byte("ELF"), 0o755))

	// A task left running by a previous process
	doc := `{"` + taskID + `":{"id":"` + taskID + `","status":"running","program_id":"` + programID + `",` +
		`"program_path":"` + program + `","input_file":"` + input + `","prover":"succinct",` +
		`"env":{},"pid":99999,"result":null,"proof_fixture":"{}","submitted_at":"2026-01-01T00:00:00Z"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, taskStoreFile), []byte(doc), 0o644))

	base := startApp(t, cfg)

	require.Eventually(t, func() bool {
		return taskStatus(base, taskID) == domain.TaskStatusDone
	}, 10*time.Second, 20*time.Millisecond)

	task := getTask(t, base, taskID)
	require.NotNil(t, task.Result)
	assert.True(t, strings.HasPrefix(*task.Result, "proved 42"))
	assert.Zero(t, task.PID)
}

func TestNewApplicationRegistersMetrics(t *testing.T) {
	app, err := newApplication(testConfig(t), logger.DiscardLogger())
	require.NoError(t, err)
	defer app.cleanup()

	families, err := app.registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["proverd_queue_depth"])
	assert.True(t, names["go_goroutines"])
}
