package task

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/phrazzld/proverd/internal/events"
)

// CallbackPayload is the body posted to a task's callback URL.
type CallbackPayload struct {
	TaskID string          `json:"task_id"`
	Data   json.RawMessage `json:"data"`
}

// CallbackDispatcher posts completed tasks to their callback URLs.
// Deliveries are fire-and-forget: each runs on its own goroutine, failures
// are logged and never retried.
type CallbackDispatcher struct {
	client *http.Client
	logger *slog.Logger
	wg     sync.WaitGroup
}

var _ events.EventHandler = (*CallbackDispatcher)(nil)

// NewCallbackDispatcher creates a dispatcher whose requests give up after timeout.
func NewCallbackDispatcher(timeout time.Duration, logger *slog.Logger) *CallbackDispatcher {
	return &CallbackDispatcher{
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "callback_dispatcher"),
	}
}

// HandleEvent starts a delivery for completed tasks that carry a callback URL.
// It returns without waiting for the delivery.
func (d *CallbackDispatcher) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	if event.Type != events.TypeTaskCompleted {
		return nil
	}

	var target struct {
		Callback string `json:"callback"`
	}
	if err := event.UnmarshalPayload(&target); err != nil {
		return fmt.Errorf("failed to decode task snapshot: %w", err)
	}
	if target.Callback == "" {
		return nil
	}

	body, err := json.Marshal(CallbackPayload{TaskID: event.TaskID, Data: event.Payload})
	if err != nil {
		return fmt.Errorf("failed to encode callback payload: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(target.Callback, event.TaskID, body)
	}()
	return nil
}

// Wait blocks until every started delivery has finished.
func (d *CallbackDispatcher) Wait() {
	d.wg.Wait()
}

func (d *CallbackDispatcher) deliver(url, taskID string, body []byte) {
	logger := d.logger.With("task_id", taskID)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		logger.Warn("failed to build callback request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		logger.Warn("callback delivery failed", "error", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		logger.Warn("callback rejected", "status_code", resp.StatusCode)
		return
	}
	logger.Info("callback delivered", "status_code", resp.StatusCode)
}
