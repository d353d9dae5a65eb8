// Package redis keeps chat wallets and per-session locks in Redis so several
// replicas can share conversation state.
package redis
