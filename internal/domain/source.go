package domain

import (
	"fmt"
	"strings"
)

// SourceRef is the image payload a job was created from. It never changes
// after the job is created.
type SourceRef struct {
	// Filename is the name the image was uploaded with; it is the row key
	// of the export.
	Filename string

	// MIMEType is the declared content type, e.g. "image/jpeg".
	MIMEType string

	// Data holds the raw image bytes.
	Data []byte

	// PreviewToken identifies the transient preview resource for the image.
	// Empty when no preview was registered.
	PreviewToken string
}

// Validate checks that the image has a name, bytes and an image content type.
func (s SourceRef) Validate() error {
	if strings.TrimSpace(s.Filename) == "" {
		return fmt.Errorf("%w: filename is required", ErrValidation)
	}
	if len(s.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrEmptyContent, s.Filename)
	}
	if !strings.HasPrefix(strings.ToLower(s.MIMEType), "image/") {
		return fmt.Errorf("%w: %q", ErrUnsupportedMediaType, s.MIMEType)
	}
	return nil
}
