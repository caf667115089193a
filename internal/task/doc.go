// Package task admits proving tasks, queues them, and executes them with a
// fixed pool of workers that each drive one external prover process.
//
// The TaskRunner owns the lifecycle: it admits submissions against the queue
// ceiling, recovers unfinished work from the task store at startup, and writes
// exactly one terminal status per execution. Completed tasks are announced as
// events so the callback dispatcher and metrics never block a worker.
package task
