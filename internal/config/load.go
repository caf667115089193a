package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "PROVERD"

// legacyEnvs are the variable names understood by the original deployment scripts.
var legacyEnvs = []struct {
	key    string
	envVar string
}{
	{"runner.max_concurrency", "MAX_CONCURRENCY"},
	{"runner.max_queue_size", "MAX_QUEUE_SIZE"},
	{"provers.succinct.bin", "SUCCINCT_PROVER_BIN"},
	{"provers.brevis.bin", "BREVIS_PROVER_BIN"},
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(EnvPrefix + "_CONFIG_FILE"))
}

// LoadFile is Load with an explicit YAML config file. An empty path only
// looks for config.yaml in the working directory.
func LoadFile(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvs := []struct {
		key    string
		envVar string
	}{
		{"server.port", EnvPrefix + "_SERVER_PORT"},
		{"server.log_level", EnvPrefix + "_SERVER_LOG_LEVEL"},
		{"storage.data_dir", EnvPrefix + "_STORAGE_DATA_DIR"},
		{"runner.max_concurrency", EnvPrefix + "_RUNNER_MAX_CONCURRENCY"},
		{"runner.max_queue_size", EnvPrefix + "_RUNNER_MAX_QUEUE_SIZE"},
		{"callback.timeout", EnvPrefix + "_CALLBACK_TIMEOUT"},
	}
	for _, env := range bindEnvs {
		if err := v.BindEnv(env.key, env.envVar); err != nil {
			return nil, fmt.Errorf("error binding environment variable %s: %w", env.envVar, err)
		}
	}

	// Legacy names only apply when set, so they never shadow file values with empty strings.
	for _, env := range legacyEnvs {
		if value, ok := os.LookupEnv(env.envVar); ok && value != "" {
			v.Set(env.key, value)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	dropUnconfiguredProvers(&cfg)

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_upload_bytes", 256<<20)
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.write_attempts", 3)
	v.SetDefault("storage.write_backoff", "50ms")
	v.SetDefault("runner.max_concurrency", 1)
	v.SetDefault("runner.max_queue_size", 10)
	v.SetDefault("callback.timeout", "10s")
	v.SetDefault("provers.succinct.args", []string{"--prove"})
}

// dropUnconfiguredProvers removes prover entries that only carry defaults
// and no executable, so an unused kind does not fail validation.
func dropUnconfiguredProvers(cfg *Config) {
	for kind, p := range cfg.Provers {
		if strings.TrimSpace(p.Bin) == "" {
			delete(cfg.Provers, kind)
		}
	}
}
