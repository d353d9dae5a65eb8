// Package mysql persists chat wallets in MySQL. It owns the embedded schema
// migrations and maps duplicate-key inserts onto wallet conflicts.
package mysql
