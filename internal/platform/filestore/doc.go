// Package filestore provides file-backed implementations of the storage
// interfaces defined in the internal/store package. Each store keeps its
// records in memory and rewrites one JSON document on every mutation,
// replacing it atomically (temp file, fsync, rename, directory fsync) so a
// crash never leaves a truncated document behind.
package filestore
