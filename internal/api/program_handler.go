package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/proverd/internal/api/shared"
	"github.com/phrazzld/proverd/internal/domain"
	"github.com/phrazzld/proverd/internal/service"
)

// DefaultProver is used when an upload does not name one.
const DefaultProver = "succinct"

// ProgramHandler handles program upload and listing requests
type ProgramHandler struct {
	programs       service.ProgramService
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewProgramHandler creates a new ProgramHandler
func NewProgramHandler(programs service.ProgramService, maxUploadBytes int64, logger *slog.Logger) *ProgramHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgramHandler{
		programs:       programs,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With("component", "program_handler"),
	}
}

// UploadProgram handles multipart POST /uploadProgram requests.
// The binary is read from the "file" part.
func (h *ProgramHandler) UploadProgram(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		respondFormError(w, r, err)
		return
	}
	defer cleanupForm(r, h.logger)

	file, _, err := r.FormFile("file")
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "invalid file: required field", err)
		return
	}
	defer func() { _ = file.Close() }()

	form := UploadProgramForm{
		Prover:  r.FormValue("prover"),
		Name:    r.FormValue("name"),
		Version: r.FormValue("version"),
		Desc:    r.FormValue("desc"),
	}
	if form.Prover == "" {
		form.Prover = DefaultProver
	}
	if err := shared.ValidateRequest(&form); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	program, err := h.programs.Upload(r.Context(), domain.UploadProgramRequest{
		Prover:  form.Prover,
		Name:    form.Name,
		Version: form.Version,
		Desc:    form.Desc,
	}, file)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, UploadProgramResponse{
		ProgramID:  program.ID,
		UploadedAt: program.UploadedAt,
	})
}

// ListPrograms handles GET /listPrograms requests
func (h *ProgramHandler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := h.programs.List(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newProgramListResponse(programs))
}
