package generation

import (
	"context"

	"github.com/phrazzld/stockmeta/internal/domain"
)

// Request carries everything a generator needs to describe one image.
type Request struct {
	// Image is the raw image payload.
	Image []byte

	// MIMEType is the image content type, e.g. "image/jpeg".
	MIMEType string

	// Context is the user's free-text hint; the model should prioritise it.
	Context string

	// Exclusions is the raw comma-separated list of keywords the model must
	// not use.
	Exclusions string

	// Model names the model to use.
	Model string
}

// Generator produces stock metadata for an image. Implementations must be
// safe for concurrent use; latency and failure are unbounded and callers
// treat every error the same way.
type Generator interface {
	GenerateMetadata(ctx context.Context, req Request) (*domain.Metadata, error)
}

// GeneratorFunc adapts an ordinary function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (*domain.Metadata, error)

// GenerateMetadata calls f(ctx, req).
func (f GeneratorFunc) GenerateMetadata(ctx context.Context, req Request) (*domain.Metadata, error) {
	return f(ctx, req)
}
