// Package app wires the application together: configuration, logging,
// observability, the document store client, the activation engine and the
// HTTP router, plus server lifecycle with graceful shutdown.
//
// Requests are handled independently and concurrently; the application
// holds no in-process lock around the registries. Consistency between
// concurrent mutations is delegated entirely to the store's
// conditional-write protocol.
package app
