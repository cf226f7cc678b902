// Package engine drives the per-order reconciliation lifecycle: a pure
// decision step over the mapping state, an apply step that talks to the
// ERP backend, and a dispatcher that wraps both with idempotency, entity
// locking, retry scheduling, and dead-lettering.
package engine
