package store

import (
	"sync"

	"github.com/google/uuid"
)

// Preview is the transient representation of an uploaded image that the
// presentation layer renders while the job exists.
type Preview struct {
	MIMEType string
	Data     []byte
}

// PreviewRegistry hands out opaque tokens for previews and forgets them on
// release. A released token never resolves again.
type PreviewRegistry struct {
	mu    sync.RWMutex
	items map[string]Preview
}

// NewPreviewRegistry creates an empty registry.
func NewPreviewRegistry() *PreviewRegistry {
	return &PreviewRegistry{items: make(map[string]Preview)}
}

// Register stores a preview and returns its token.
func (r *PreviewRegistry) Register(mimeType string, data []byte) string {
	token := uuid.NewString()

	r.mu.Lock()
	r.items[token] = Preview{MIMEType: mimeType, Data: data}
	r.mu.Unlock()

	return token
}

// Open returns the preview for a token.
func (r *PreviewRegistry) Open(token string) (Preview, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[token]
	if !ok {
		return Preview{}, ErrPreviewNotFound
	}
	return p, nil
}

// Release drops the preview behind token. It reports whether anything was
// released.
func (r *PreviewRegistry) Release(token string) bool {
	if token == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[token]; !ok {
		return false
	}
	delete(r.items, token)
	return true
}

// Len returns the number of live previews.
func (r *PreviewRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
