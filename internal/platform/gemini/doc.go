// Package gemini provides an implementation of the generation.Generator interface
// that uses Google's Gemini API to describe stock images.
//
// The generator sends the image inline together with a rendered SEO prompt and
// asks the model for a JSON object matching a fixed response schema (title,
// description, keywords). Transient API failures are retried with exponential
// backoff and jitter; safety blocks and malformed responses are returned
// immediately as generation.ErrContentBlocked and generation.ErrInvalidResponse.
//
// A generator built without an API key is still usable: every call fails with
// generation.ErrMissingCredential, so the failure is recorded per job instead
// of preventing the server from starting.
package gemini
