// Package core contains canonical order reconciliation contracts, entities,
// and orchestration logic. Lower-level adapters must depend on this package;
// core must not depend on source-specific or transport-specific adapters.
package core
