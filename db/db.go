// Package db defines the key-value database interface used by the proxy for
// durable request persistence. Implementations live in subpackages
// (pebbledb for the on-disk store, inmemory for tests).
package db

import "errors"

var (
	// ErrKeyNotFound is returned by Get when the key is not present.
	ErrKeyNotFound = errors.New("key not found")
	// ErrTxnTooBig is returned when a write transaction exceeds the backend
	// limits and must be split by the caller.
	ErrTxnTooBig = errors.New("write transaction too big")
	// ErrConflict is returned on Commit when the transaction read keys that
	// were modified concurrently.
	ErrConflict = errors.New("transaction conflict")
)

// Options are the common database creation options.
type Options struct {
	Path string
}

// Reader is the read-only side of a database or transaction.
type Reader interface {
	// Get retrieves the value for the given key, or ErrKeyNotFound.
	Get(key []byte) ([]byte, error)
	// Iterate calls callback with all key-value pairs whose key starts with
	// prefix, in lexicographic key order, until callback returns false.
	// The callback arguments must not be retained after it returns.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
}

// WriteTx is a mutable batch of operations applied atomically on Commit.
// It is not safe for concurrent use.
type WriteTx interface {
	Reader

	Set(key, value []byte) error
	Delete(key []byte) error
	// Apply merges the writes of another transaction into this one.
	Apply(WriteTx) error
	Commit() error
	// Discard releases the transaction. Calling it after Commit is a no-op,
	// so it is safe to defer unconditionally.
	Discard()
}

// Database is a persistent key-value store.
type Database interface {
	Reader

	WriteTx() WriteTx
	Close() error
	Compact() error
}
