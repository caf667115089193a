package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/phrazzld/proverd/internal/api"
	"github.com/phrazzld/proverd/internal/config"
	"github.com/phrazzld/proverd/internal/events"
	"github.com/phrazzld/proverd/internal/platform/filestore"
	"github.com/phrazzld/proverd/internal/service"
	"github.com/phrazzld/proverd/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// Layout of the data directory
const (
	taskStoreFile  = "task_store.json"
	programDir     = "programs"
	requestDataDir = "request_data"
	proofOutputDir = "proof_output"
)

const defaultShutdownTimeout = 10 * time.Second

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Stores
	taskStore    *filestore.TaskStore
	programStore *filestore.ProgramStore
	requestStore *filestore.RequestStore

	// Observability and notifications
	registry     *prometheus.Registry
	metrics      *task.Metrics
	dispatcher   *task.CallbackDispatcher
	eventEmitter *events.InMemoryEventEmitter

	// Task handling
	taskRunner *task.TaskRunner

	// Service interfaces
	taskService    service.TaskService
	programService service.ProgramService

	router http.Handler
}

// newApplication creates a new application instance with all dependencies initialized.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	policy := filestore.WritePolicy{
		Attempts: cfg.Storage.WriteAttempts,
		Backoff:  cfg.Storage.WriteBackoff,
	}
	dataDir := cfg.Storage.DataDir
	app.taskStore = filestore.NewTaskStore(filepath.Join(dataDir, taskStoreFile), policy, logger)
	app.programStore = filestore.NewProgramStore(filepath.Join(dataDir, programDir), policy, logger)
	app.requestStore = filestore.NewRequestStore(filepath.Join(dataDir, requestDataDir), policy, logger)

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	var err error
	app.metrics, err = task.NewMetrics(app.registry, app.queueDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	app.dispatcher = task.NewCallbackDispatcher(cfg.Callback.Timeout, logger)
	app.eventEmitter = events.NewInMemoryEventEmitter(logger)
	app.eventEmitter.RegisterHandler(app.dispatcher)
	app.eventEmitter.RegisterHandler(app.metrics)

	provers := task.NewProverRegistry(cfg.Provers)
	app.taskRunner = task.NewTaskRunner(
		app.taskStore,
		task.ExecProver{},
		provers,
		task.TaskRunnerConfig{
			WorkerCount: cfg.Runner.MaxConcurrency,
			QueueSize:   cfg.Runner.MaxQueueSize,
			OutputDir:   filepath.Join(dataDir, proofOutputDir),
		},
		logger,
		task.WithEmitter(app.eventEmitter),
		task.WithMetrics(app.metrics),
	)

	app.programService, err = service.NewProgramService(app.programStore, provers.Kinds(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create program service: %w", err)
	}

	app.taskService, err = service.NewTaskService(
		app.taskRunner,
		app.taskStore,
		app.requestStore,
		app.programService,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	app.router = api.NewRouter(api.RouterConfig{
		Tasks:          app.taskService,
		Programs:       app.programService,
		Gatherer:       app.registry,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Logger:         logger,
	})

	logger.Info("Application initialized successfully", "provers", provers.Kinds())
	return app, nil
}

func (app *application) queueDepth() int {
	if app.taskRunner == nil {
		return 0
	}
	return app.taskRunner.Queue().Len()
}

// Run listens on the configured port and serves until ctx is cancelled.
func (app *application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", app.config.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", app.config.Server.Port, err)
	}
	return app.serve(ctx, ln)
}

// serve recovers unfinished tasks, starts the workers, and serves HTTP on ln
// until ctx is cancelled or the server fails. Resources are released before
// it returns.
func (app *application) serve(ctx context.Context, ln net.Listener) error {
	if err := app.taskRunner.Start(ctx); err != nil {
		_ = ln.Close()
		app.cleanup()
		return fmt.Errorf("failed to start task runner: %w", err)
	}

	server := &http.Server{
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.logger.Info("Starting server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("Shutting down server...")

		timeout := app.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	err := g.Wait()
	app.cleanup()
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	app.logger.Info("Server shutdown completed")
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}
	// Callbacks already in flight get their own timeout to finish
	if app.dispatcher != nil {
		app.dispatcher.Wait()
	}
	app.logger.Info("Application shutdown completed")
}
