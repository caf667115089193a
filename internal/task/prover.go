package task

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/phrazzld/proverd/internal/config"
	"github.com/phrazzld/proverd/internal/domain"
)

// ProofFixtureFile is the artifact a prover may leave in its output directory.
const ProofFixtureFile = "proof_fixture.json"

// ErrExecution marks a failed prover run. Its message is recorded as the task result.
var ErrExecution = errors.New("prover execution failed")

// Invocation describes one prover run.
type Invocation struct {
	Binary      string
	Args        []string
	Env         map[string]string
	ProgramPath string
	InputPath   string
	OutputDir   string
	// Timeout bounds the run when positive.
	Timeout time.Duration
}

// Outcome is what a finished prover run produced.
type Outcome struct {
	// Output is stdout, or stderr when stdout is empty.
	Output string
	// ProofFixture is the content of the fixture file, empty if none was written.
	ProofFixture string
}

// Prover runs an external proving process. onStart, when non-nil, receives
// the process ID once the process has been launched.
type Prover interface {
	Run(ctx context.Context, inv Invocation, onStart func(pid int)) (Outcome, error)
}

// ProverSpec is the executable configured for a prover kind.
type ProverSpec struct {
	Binary  string
	Args    []string
	Timeout time.Duration
}

// ProverRegistry maps prover kinds to their executables.
type ProverRegistry map[string]ProverSpec

// NewProverRegistry builds a registry from configuration. Entries without a
// binary are skipped.
func NewProverRegistry(provers map[string]config.ProverConfig) ProverRegistry {
	registry := make(ProverRegistry, len(provers))
	for kind, pc := range provers {
		if pc.Bin == "" {
			continue
		}
		registry[kind] = ProverSpec{
			Binary:  pc.Bin,
			Args:    slices.Clone(pc.Args),
			Timeout: pc.Timeout,
		}
	}
	return registry
}

// Lookup returns the executable for kind.
func (r ProverRegistry) Lookup(kind string) (ProverSpec, error) {
	spec, ok := r[kind]
	if !ok {
		return ProverSpec{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedProver, kind)
	}
	return spec, nil
}

// Kinds returns the configured prover kinds in sorted order.
func (r ProverRegistry) Kinds() []string {
	kinds := make([]string, 0, len(r))
	for kind := range r {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// ExecProver runs provers as child processes.
type ExecProver struct{}

var _ Prover = ExecProver{}

// Run executes BIN [args] --elf <program> --input <input> --output-dir <dir>
// with the overrides merged onto the service environment. The process is
// killed when ctx is done.
func (ExecProver) Run(ctx context.Context, inv Invocation, onStart func(pid int)) (Outcome, error) {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	if err := os.MkdirAll(inv.OutputDir, 0o755); err != nil {
		return Outcome{}, fmt.Errorf("%w: failed to create output directory: %v", ErrExecution, err)
	}

	args := append(slices.Clone(inv.Args),
		"--elf", inv.ProgramPath,
		"--input", inv.InputPath,
		"--output-dir", inv.OutputDir)
	cmd := exec.CommandContext(ctx, inv.Binary, args...)
	cmd.Env = MergeEnv(os.Environ(), inv.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("%w: failed to start %s: %v", ErrExecution, inv.Binary, err)
	}
	if onStart != nil {
		onStart(cmd.Process.Pid)
	}

	waitErr := cmd.Wait()
	output := stdout.String()
	if output == "" {
		output = stderr.String()
	}

	// A failed prover may still have left a partial fixture behind.
	fixture, readErr := readProofFixture(inv.OutputDir)
	if waitErr != nil {
		if readErr != nil {
			fixture = domain.EmptyProofFixture
		}
		outcome := Outcome{Output: output, ProofFixture: fixture}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return outcome, fmt.Errorf("%w: timed out after %s", ErrExecution, inv.Timeout)
		}
		detail := strings.TrimSpace(output)
		if detail == "" {
			return outcome, fmt.Errorf("%w: %v", ErrExecution, waitErr)
		}
		return outcome, fmt.Errorf("%w: %v: %s", ErrExecution, waitErr, detail)
	}

	if readErr != nil {
		return Outcome{Output: output}, fmt.Errorf("%w: failed to read proof fixture: %v", ErrExecution, readErr)
	}
	return Outcome{Output: output, ProofFixture: fixture}, nil
}

func readProofFixture(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, ProofFixtureFile))
	if errors.Is(err, os.ErrNotExist) {
		return domain.EmptyProofFixture, nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MergeEnv returns base with every override applied. Overridden variables
// keep their position; new ones are appended in sorted order.
func MergeEnv(base []string, overrides map[string]string) []string {
	merged := make([]string, 0, len(base)+len(overrides))
	applied := make(map[string]bool, len(overrides))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if value, ok := overrides[name]; ok {
			if applied[name] {
				continue
			}
			merged = append(merged, name+"="+value)
			applied[name] = true
			continue
		}
		merged = append(merged, kv)
	}

	extra := make([]string, 0, len(overrides))
	for name := range overrides {
		if !applied[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		merged = append(merged, name+"="+overrides[name])
	}
	return merged
}
