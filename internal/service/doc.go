// Package service contains the application use cases of the batch job
// processor: submitting images, editing and removing jobs, dispatching single
// jobs or the whole eligible set, exporting results and managing settings.
//
// The HTTP API and the batch CLI are thin layers over BatchService; neither
// touches the job store, the runner or the worker pool directly.
package service
