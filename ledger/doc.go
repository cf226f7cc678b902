// Package ledger provides idempotency reservation implementations. A key
// is reserved under a lease, then completed with a cached result or failed
// with a retry-at timestamp; expired leases are reclaimable.
package ledger
