// Package store implements the versioned document store boundary. Each
// logical table is one whole JSON document identified by an opaque version
// token; reads return content plus token, writes are conditional on the
// token still being current (compare-and-swap, no server-side locking).
//
// The production implementation keeps documents as files in a GitHub
// repository and uses the contents API blob sha as the version token. The
// Client interface exists so the activation engine can be tested against an
// in-memory store.
//
// Policy decisions such as retrying conflicts or tolerating partial
// dual-document writes belong to callers. This package reports failures distinctly
// (ErrNotFound, ErrVersionConflict, wrapped transport errors) and never
// retries.
package store
