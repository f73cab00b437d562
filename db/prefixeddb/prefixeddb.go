// Package prefixeddb wraps a db.Database restricting all operations to keys
// under a fixed prefix, so independent subsystems can share one store.
package prefixeddb

import (
	"github.com/vortexdex/dexproxy/db"
)

// PrefixedDatabase scopes a db.Database under a key prefix.
type PrefixedDatabase struct {
	db     db.Database
	prefix []byte
}

var _ db.Database = (*PrefixedDatabase)(nil)

// NewPrefixedDatabase returns a view of d where every key is implicitly
// prefixed.
func NewPrefixedDatabase(d db.Database, prefix []byte) *PrefixedDatabase {
	return &PrefixedDatabase{db: d, prefix: prefix}
}

func (d *PrefixedDatabase) Get(key []byte) ([]byte, error) {
	return d.db.Get(prefixKey(d.prefix, key))
}

func (d *PrefixedDatabase) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return d.db.Iterate(prefixKey(d.prefix, prefix), callback)
}

func (d *PrefixedDatabase) WriteTx() db.WriteTx {
	return &WriteTx{tx: d.db.WriteTx(), prefix: d.prefix}
}

// Close is a no-op: the underlying database is shared and owned elsewhere.
func (d *PrefixedDatabase) Close() error { return nil }

func (d *PrefixedDatabase) Compact() error { return d.db.Compact() }

// NewPrefixedReader returns a read-only view of d under prefix.
func NewPrefixedReader(d db.Database, prefix []byte) db.Reader {
	return &PrefixedDatabase{db: d, prefix: prefix}
}

// WriteTx implements db.WriteTx prepending the prefix to every key.
type WriteTx struct {
	tx     db.WriteTx
	prefix []byte
}

var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	return tx.tx.Get(prefixKey(tx.prefix, key))
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return tx.tx.Iterate(prefixKey(tx.prefix, prefix), callback)
}

func (tx *WriteTx) Set(key, value []byte) error {
	return tx.tx.Set(prefixKey(tx.prefix, key), value)
}

func (tx *WriteTx) Delete(key []byte) error {
	return tx.tx.Delete(prefixKey(tx.prefix, key))
}

func (tx *WriteTx) Apply(other db.WriteTx) error {
	if otherPrefixed, ok := other.(*WriteTx); ok {
		other = otherPrefixed.tx
	}
	return tx.tx.Apply(other)
}

func (tx *WriteTx) Commit() error { return tx.tx.Commit() }

func (tx *WriteTx) Discard() { tx.tx.Discard() }

func prefixKey(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	return append(out, key...)
}
