// Package store holds the application's state: the authoritative job record
// store for the current batch, the preview registry backing image previews,
// and the SettingsStore interface with its in-memory implementation.
//
// The job record store is the only shared mutable state in the pipeline.
// Every mutation is a whole-record replace keyed by job id, applied under a
// single lock, so concurrent runners never observe a partially updated job.
//
// Durable settings backends live in internal/platform/postgres and
// internal/platform/redis.
package store
