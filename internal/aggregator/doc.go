// Package aggregator talks to the swap and bridge aggregator: quotes, hash
// locked order placement and cross-chain message submission.
package aggregator
