// Package services implements the business logic layer: the activation
// engine that evaluates verification and legacy-enrollment requests against
// the registry snapshots, and the health service backing liveness probes.
//
// Services follow these architectural principles:
//
//	1. Interface-driven design for testability
//	2. Context propagation for cancellation and tracing
//	3. Dependency injection for loose coupling
//	4. No shared mutable state between requests
//
// The engine performs no retries: a conditional-write conflict from the
// store surfaces as a server error and the caller retries the whole
// request. Two concurrent first-use enrollments for the same key therefore
// resolve to exactly one winner, decided by the store's compare-and-swap.
package services
