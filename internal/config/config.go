package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	Runner   RunnerConfig   `mapstructure:"runner" validate:"required"`
	Callback CallbackConfig `mapstructure:"callback" validate:"required"`
	// Provers maps a prover kind (e.g. "succinct") to the executable that serves it.
	Provers map[string]ProverConfig `mapstructure:"provers" validate:"required,min=1,dive"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
	// MaxUploadBytes bounds the size of a multipart program upload.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" validate:"gt=0"`
}

// StorageConfig contains the locations of the durable documents and files.
type StorageConfig struct {
	// DataDir is the root for programs, request payloads, proof output and the task document.
	DataDir string `mapstructure:"data_dir" validate:"required"`
	// WriteAttempts is how many times a snapshot write is tried before it is reported as failed.
	WriteAttempts uint64 `mapstructure:"write_attempts" validate:"gte=1,lte=10"`
	// WriteBackoff is the base delay of the exponential backoff between write attempts.
	WriteBackoff time.Duration `mapstructure:"write_backoff" validate:"gt=0"`
}

// RunnerConfig contains admission and worker pool settings.
type RunnerConfig struct {
	// MaxConcurrency is the number of workers executing tasks at the same time.
	MaxConcurrency int `mapstructure:"max_concurrency" validate:"gte=1,lte=64"`
	// MaxQueueSize is the admission ceiling of the work queue.
	MaxQueueSize int `mapstructure:"max_queue_size" validate:"gte=1"`
}

// CallbackConfig contains settings for result notifications.
type CallbackConfig struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// ProverConfig describes how a prover kind is invoked.
type ProverConfig struct {
	// Bin is the path of the prover executable.
	Bin string `mapstructure:"bin" validate:"required"`
	// Args are passed before the --elf/--input/--output-dir arguments.
	Args []string `mapstructure:"args"`
	// Timeout bounds a single execution. Zero disables it.
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}
