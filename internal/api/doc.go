// Package api exposes the task and program services over HTTP. Routes keep
// the flat paths and response shapes that existing clients use; errors are
// mapped to status codes and short error codes in errors.go.
package api
