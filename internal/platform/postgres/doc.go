// Package postgres provides the PostgreSQL backend for the settings store,
// together with the embedded goose migrations that create its schema.
package postgres
