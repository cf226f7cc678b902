// Package gate serializes reconciliation work per entity key. It promises
// nothing across entities and nothing about source order; the state machine
// tolerates out-of-order arrival.
package gate
