// Package inmemory implements an ephemeral db.Database used by tests.
package inmemory

import (
	"bytes"
	"sort"
	"sync"

	"github.com/vortexdex/dexproxy/db"
)

// InMemoryDB implements an ephemeral in-memory db.Database.
type InMemoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// Ensure that InMemoryDB implements the db.Database interface.
var _ db.Database = (*InMemoryDB)(nil)

// New returns a new in-memory database. Options are ignored.
func New(_ db.Options) (*InMemoryDB, error) {
	return &InMemoryDB{data: make(map[string][]byte)}, nil
}

func (d *InMemoryDB) Close() error { return nil }

func (d *InMemoryDB) Compact() error { return nil }

func (d *InMemoryDB) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	value, ok := d.data[string(key)]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(value), nil
}

func (d *InMemoryDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	d.mu.RLock()
	snapshot := make(map[string][]byte, len(d.data))
	for k, v := range d.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			snapshot[k] = bytes.Clone(v)
		}
	}
	d.mu.RUnlock()

	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !callback([]byte(k)[len(prefix):], snapshot[k]) {
			break
		}
	}
	return nil
}

func (d *InMemoryDB) WriteTx() db.WriteTx {
	return &WriteTx{db: d, writes: make(map[string]*[]byte)}
}

// WriteTx implements db.WriteTx buffering writes until Commit. A nil value
// in the writes map marks a deletion.
type WriteTx struct {
	db     *InMemoryDB
	writes map[string]*[]byte
	done   bool
}

var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	if value, ok := tx.writes[string(key)]; ok {
		if value == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(*value), nil
	}
	return tx.db.Get(key)
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	merged := make(map[string][]byte)
	tx.db.mu.RLock()
	for k, v := range tx.db.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			merged[k] = bytes.Clone(v)
		}
	}
	tx.db.mu.RUnlock()
	for k, v := range tx.writes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = bytes.Clone(*v)
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !callback([]byte(k)[len(prefix):], merged[k]) {
			break
		}
	}
	return nil
}

func (tx *WriteTx) Set(key, value []byte) error {
	v := bytes.Clone(value)
	tx.writes[string(key)] = &v
	return nil
}

func (tx *WriteTx) Delete(key []byte) error {
	tx.writes[string(key)] = nil
	return nil
}

func (tx *WriteTx) Apply(other db.WriteTx) error {
	otherMem, ok := other.(*WriteTx)
	if !ok {
		return nil
	}
	for k, v := range otherMem.writes {
		tx.writes[k] = v
	}
	return nil
}

func (tx *WriteTx) Commit() error {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for k, v := range tx.writes {
		if v == nil {
			delete(tx.db.data, k)
		} else {
			tx.db.data[k] = bytes.Clone(*v)
		}
	}
	tx.done = true
	return nil
}

func (tx *WriteTx) Discard() {
	tx.writes = nil
}
