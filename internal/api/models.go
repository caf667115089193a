package api

import (
	"time"

	"github.com/phrazzld/proverd/internal/domain"
)

// SubmitTaskForm is the multipart or urlencoded form of POST /submitTask.
type SubmitTaskForm struct {
	ProgramID string `json:"program_id" validate:"required,uuid"`
	// AttestationData is the input payload handed to the prover.
	AttestationData string `json:"attestation_data"`
	Callback        string `json:"callback"         validate:"omitempty,http_url"`
	// Env is a JSON object of environment overrides, e.g. {"RUST_LOG":"info"}.
	Env string `json:"env"`
}

// SubmitTaskResponse is returned when a task is admitted.
type SubmitTaskResponse struct {
	TaskID string            `json:"task_id"`
	Status domain.TaskStatus `json:"status"`
}

// TaskIDRequest is the optional JSON body of DELETE /deleteTask.
type TaskIDRequest struct {
	TaskID string `json:"task_id"`
}

// DeleteTaskResponse confirms a deletion.
type DeleteTaskResponse struct {
	Deleted string `json:"deleted"`
}

// PauseTaskResponse confirms a pause.
type PauseTaskResponse struct {
	Paused string `json:"paused"`
}

// TaskListResponse maps task IDs to their records.
type TaskListResponse map[string]*domain.Task

// UploadProgramForm is the metadata part of POST /uploadProgram.
type UploadProgramForm struct {
	Prover  string `json:"prover"  validate:"required,max=32"`
	Name    string `json:"name"    validate:"max=256"`
	Version string `json:"version" validate:"max=64"`
	Desc    string `json:"desc"    validate:"max=4096"`
}

// UploadProgramResponse is returned after a program is stored.
type UploadProgramResponse struct {
	ProgramID  string    `json:"program_id"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ProgramListResponse maps program IDs to their metadata.
type ProgramListResponse map[string]*domain.Program

func newTaskListResponse(tasks []*domain.Task) TaskListResponse {
	resp := make(TaskListResponse, len(tasks))
	for _, t := range tasks {
		resp[t.ID] = t
	}
	return resp
}

func newProgramListResponse(programs []*domain.Program) ProgramListResponse {
	resp := make(ProgramListResponse, len(programs))
	for _, p := range programs {
		resp[p.ID] = p
	}
	return resp
}
