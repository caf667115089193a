// Package service contains the boundary operations of the proving service.
// It orchestrates program storage, input payloads, and the task runner to
// fulfill submissions and queries coming from the HTTP layer.
//
// Services receive their dependencies through constructor injection as small
// interfaces, so tests can substitute mocks for the runner and the stores.
package service
