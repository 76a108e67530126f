// Package registry defines the in-memory model of the two store documents:
// the key registry (issued license keys, banned device identifiers, derived
// counters) and the user registry (activation records, banned usernames).
//
// Instances are request-scoped snapshots decoded from the document store and
// are never cached or shared between requests. Concurrency safety comes
// entirely from the store's conditional-write protocol, not from this
// package.
//
// Note the two distinct stats formulas: SyncActiveKeys (first-use
// verification) counts activation records, RecountStats (legacy enrollment)
// counts active keys. They disagree on purpose; external consumers depend on
// each field's historical semantics.
package registry
