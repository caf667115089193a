// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to the settings of the server, the task runner, the task store, and
// the prover executables while keeping configuration details separate from
// scheduling logic.
package config
