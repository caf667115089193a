// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying storage mechanism from the
// task runner and services, so scheduling rules stay independent of how
// task and program records reach durable storage.
package store
