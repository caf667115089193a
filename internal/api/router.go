package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	apiMiddleware "github.com/phrazzld/proverd/internal/api/middleware"
	"github.com/phrazzld/proverd/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds what the router needs to build its handlers.
type RouterConfig struct {
	Tasks    service.TaskService
	Programs service.ProgramService
	// Gatherer backs GET /metrics. Nil leaves the route unregistered.
	Gatherer prometheus.Gatherer
	// MaxUploadBytes bounds program uploads and task submissions.
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(logger))

	taskHandler := NewTaskHandler(cfg.Tasks, cfg.MaxUploadBytes, logger)
	programHandler := NewProgramHandler(cfg.Programs, cfg.MaxUploadBytes, logger)

	// Paths are flat for compatibility with existing clients
	r.Post("/uploadProgram", programHandler.UploadProgram)
	r.Get("/listPrograms", programHandler.ListPrograms)

	r.Post("/submitTask", taskHandler.SubmitTask)
	r.Get("/getResult", taskHandler.GetResult)
	r.Get("/listTasks", taskHandler.ListTasks)
	r.Delete("/deleteTask", taskHandler.DeleteTask)
	r.Post("/pauseTask", taskHandler.PauseTask)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("Failed to write health check response", "error", err)
		}
	})

	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
