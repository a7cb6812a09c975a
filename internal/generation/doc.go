// Package generation defines the boundary between the job pipeline and the
// external AI service that produces stock metadata (title, description,
// keywords) for an image. The pipeline depends only on the Generator
// interface and the error taxonomy declared here; the Gemini adapter lives in
// internal/platform/gemini.
package generation
