// Package web3 defines the chain access surface used by the wallet: balance
// reads, signed transfers and head snapshots across EVM networks. Concrete
// clients live in the ethereum subpackage and are grouped per chain id by the
// provider subpackage.
package web3
