// Package blackboard provides the shared, namespaced state store that the
// Troika agents communicate through. Each run owns exactly one board holding
// at most one current document per namespace (plan, retrieval, reasoning).
// Writes fully replace the prior document in a namespace, reads return an
// explicit not-found sentinel for absent namespaces, and resets clear one or
// all namespaces back to absent.
//
// Two implementations are provided:
//
//   - Memory: a process-local board with no external I/O. This is the default
//     for single runs and batch evaluation; every run constructs its own
//     instance, so no locking discipline beyond the board's own mutex is
//     needed.
//
//   - Client: a Redis-backed board, namespaced by run ID so that many runs
//     can safely coexist on a single Redis server. Every write publishes an
//     event, which is what `troika watch` tails.
//
// Document shapes are fixed per namespace and represented as typed records
// (Plan, RetrievalResult, ReasoningResult) with Validate methods. Shape
// validation happens at the step-executor boundary, not inside the board:
// Write accepts any JSON document unconditionally.
package blackboard
