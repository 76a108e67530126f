package store

import "context"

// Document is one named JSON document read from the versioned store.
// Version is the opaque token the store issued for this exact content; it
// must accompany the next conditional write of the same document.
type Document struct {
	Content []byte
	Version string
}

// Client is the document store boundary. Reads return the current content
// plus its version token; writes replace the whole document and only succeed
// when the supplied version still matches the stored one. No retries happen
// at this layer; conflict and transport failures propagate to the caller.
type Client interface {
	Read(ctx context.Context, name string) (*Document, error)
	Write(ctx context.Context, name string, content []byte, version, message string) error
}
