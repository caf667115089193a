package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/phrazzld/proverd/internal/api/shared"
	"github.com/phrazzld/proverd/internal/domain"
	"github.com/phrazzld/proverd/internal/service"
)

// maxFormMemory is how much of a multipart form is held in memory before
// file parts spill to disk.
const maxFormMemory = 32 << 20

// TaskHandler handles task submission and lifecycle requests
type TaskHandler struct {
	tasks        service.TaskService
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewTaskHandler creates a new TaskHandler. maxBodyBytes bounds the
// submission form, including the input payload.
func NewTaskHandler(tasks service.TaskService, maxBodyBytes int64, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		tasks:        tasks,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.With("component", "task_handler"),
	}
}

// SubmitTask handles POST /submitTask requests
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	if err := parseForm(r); err != nil {
		respondFormError(w, r, err)
		return
	}
	defer cleanupForm(r, h.logger)

	form := SubmitTaskForm{
		ProgramID:       r.FormValue("program_id"),
		AttestationData: r.FormValue("attestation_data"),
		Callback:        r.FormValue("callback"),
		Env:             r.FormValue("env"),
	}
	if err := shared.ValidateRequest(&form); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	env, err := domain.ParseEnv(form.Env)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, ErrCodeInvalidEnv, err)
		return
	}

	task, err := h.tasks.Submit(r.Context(), domain.SubmitRequest{
		ProgramID:    form.ProgramID,
		InputPayload: []byte(form.AttestationData),
		Callback:     form.Callback,
		Env:          env,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, SubmitTaskResponse{
		TaskID: task.ID,
		Status: task.Status,
	})
}

// GetResult handles GET /getResult?task_id= requests
func (h *TaskHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("task_id")
	if !requireTaskID(w, r, id) {
		return
	}

	task, err := h.tasks.GetStatus(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// ListTasks handles GET /listTasks requests with an optional status filter
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	status := domain.TaskStatus(r.URL.Query().Get("status"))

	tasks, err := h.tasks.ListTasks(r.Context(), status)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newTaskListResponse(tasks))
}

// DeleteTask handles DELETE /deleteTask requests. The task ID is read from
// the query string or from a JSON body.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.tasks.DeleteTask(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, DeleteTaskResponse{Deleted: id})
}

// PauseTask handles POST /pauseTask requests. Only queued tasks can be paused.
func (h *TaskHandler) PauseTask(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.tasks.PauseTask(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, PauseTaskResponse{Paused: id})
}

// taskIDFromRequest reads task_id from the query, falling back to a JSON body.
// It writes a 400 response and returns false when the ID is missing or malformed.
func taskIDFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("task_id")
	if id == "" {
		var body TaskIDRequest
		if err := shared.DecodeOptionalJSON(r, &body); err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, err)
			return "", false
		}
		id = body.TaskID
	}
	if !requireTaskID(w, r, id) {
		return "", false
	}
	return id, true
}

// requireTaskID writes a 400 response and returns false unless id is a task UUID.
func requireTaskID(w http.ResponseWriter, r *http.Request, id string) bool {
	if _, err := domain.ParseID("task_id", id); err != nil {
		tag := "uuid"
		if id == "" {
			tag = "required"
		}
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid task_id: "+getValidationTagMessage(tag))
		return false
	}
	return true
}

// parseForm accepts both multipart and urlencoded bodies.
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(maxFormMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return nil
	}
	return err
}

func cleanupForm(r *http.Request, logger *slog.Logger) {
	if r.MultipartForm == nil {
		return
	}
	if err := r.MultipartForm.RemoveAll(); err != nil {
		logger.Warn("failed to remove multipart temp files", "error", err)
	}
}

func respondFormError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		shared.RespondWithErrorAndLog(w, r, http.StatusRequestEntityTooLarge, "request_too_large", err)
		return
	}
	shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, err)
}

func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
