// Package logger provides structured logging functionality for the application
// using Go's standard library log/slog package.
//
// Loggers travel in request contexts (WithLogger / FromContext) and every
// record logged with a context carrying a trace id gets a trace_id attribute.
package logger
