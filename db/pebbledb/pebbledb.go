// Package pebbledb implements db.Database on top of cockroachdb/pebble.
package pebbledb

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/vortexdex/dexproxy/db"
)

// PebbleDB implements db.Database.
type PebbleDB struct {
	pdb *pebble.DB
}

// check that PebbleDB implements the db.Database interface
var _ db.Database = (*PebbleDB)(nil)

// New opens (or creates) a pebble database at opts.Path.
func New(opts db.Options) (*PebbleDB, error) {
	pdb, err := pebble.Open(opts.Path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", opts.Path, err)
	}
	return &PebbleDB{pdb: pdb}, nil
}

func (d *PebbleDB) Get(key []byte) ([]byte, error) {
	value, closer, err := d.pdb.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	} else if err != nil {
		return nil, err
	}
	out := bytes.Clone(value)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *PebbleDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	iter, err := d.pdb.NewIter(prefixIterOptions(prefix))
	if err != nil {
		return err
	}
	defer func() { _ = iter.Close() }()
	for iter.First(); iter.Valid(); iter.Next() {
		if !callback(iter.Key()[len(prefix):], iter.Value()) {
			break
		}
	}
	return nil
}

// WriteTx returns a pebble indexed batch. Note that pebble batches are not
// transactions: reads observe the live database plus the batch writes, and
// no conflict detection is performed.
func (d *PebbleDB) WriteTx() db.WriteTx {
	return &WriteTx{batch: d.pdb.NewIndexedBatch()}
}

func (d *PebbleDB) Close() error {
	return d.pdb.Close()
}

func (d *PebbleDB) Compact() error {
	iter, err := d.pdb.NewIter(nil)
	if err != nil {
		return err
	}
	var first, last []byte
	if iter.First() {
		first = bytes.Clone(iter.Key())
	}
	if iter.Last() {
		last = bytes.Clone(iter.Key())
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if first == nil || last == nil || bytes.Equal(first, last) {
		return nil
	}
	return d.pdb.Compact(first, last, true)
}

// keyUpperBound returns the smallest key strictly greater than every key with
// the given prefix, or nil if the prefix is all 0xff.
func keyUpperBound(b []byte) []byte {
	end := bytes.Clone(b)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // no upper bound
}

func prefixIterOptions(prefix []byte) *pebble.IterOptions {
	if len(prefix) == 0 {
		return nil
	}
	return &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	}
}

// WriteTx implements db.WriteTx over a pebble indexed batch.
type WriteTx struct {
	batch *pebble.Batch
	done  bool
}

var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	value, closer, err := tx.batch.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	} else if err != nil {
		return nil, err
	}
	out := bytes.Clone(value)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	iter, err := tx.batch.NewIter(prefixIterOptions(prefix))
	if err != nil {
		return err
	}
	defer func() { _ = iter.Close() }()
	for iter.First(); iter.Valid(); iter.Next() {
		if !callback(iter.Key()[len(prefix):], iter.Value()) {
			break
		}
	}
	return nil
}

func (tx *WriteTx) Set(key, value []byte) error {
	return tx.batch.Set(key, value, nil)
}

func (tx *WriteTx) Delete(key []byte) error {
	return tx.batch.Delete(key, nil)
}

func (tx *WriteTx) Apply(other db.WriteTx) error {
	otherPebble, ok := other.(*WriteTx)
	if !ok {
		return fmt.Errorf("can only apply another pebbledb.WriteTx")
	}
	return tx.batch.Apply(otherPebble.batch, nil)
}

func (tx *WriteTx) Commit() error {
	tx.done = true
	return tx.batch.Commit(pebble.Sync)
}

func (tx *WriteTx) Discard() {
	if tx.done {
		return
	}
	// Close returns an error if the batch was already committed; nothing
	// useful can be done with it here.
	_ = tx.batch.Close()
}
