// Package domain contains the core entities of the proof service: proving
// tasks, uploaded programs, and the submission request that creates a task.
// It is independent of storage, transport, and the prover processes.
package domain
