// Package events provides the observable side of the job pipeline.
//
// The job store and the batch service publish events whenever a job changes
// state or a full-batch run starts and finishes. Presentation components (the
// SSE stream, progress displays, tests) subscribe through EventHandler
// without the publishers knowing who listens.
//
// The primary components are:
// - Event: a typed notification with a JSON payload
// - EventHandler: interface for components that consume events
// - EventEmitter: interface for components that publish events
package events
