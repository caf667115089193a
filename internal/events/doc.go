// Package events provides types and interfaces for task lifecycle events.
//
// The task runner emits an event after every terminal status change. Handlers
// such as the callback dispatcher and the metrics recorder subscribe through an
// EventEmitter, so the runner never depends on them directly.
//
// The primary components are:
// - TaskEvent: a lifecycle change of one task with a JSON snapshot of the record
// - EventHandler: Interface for components that can handle events
// - EventEmitter: Interface for components that can emit events
package events
