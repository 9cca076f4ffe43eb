package candb

import (
	"errors"
	"sync"
)

var errMemorydbClosed = errors.New("candb: memorydb closed")

// memoryDatabase is the volatile candb.Database backend: a plain
// in-process map guarded by a mutex. Selected by the Nexus whenever its
// configured cache size is negative.
type memoryDatabase struct {
	lock   sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryDatabase returns a volatile, process-local Database.
func NewMemoryDatabase() Database {
	return &memoryDatabase{data: make(map[string][]byte)}
}

func (db *memoryDatabase) Put(key, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()
	if db.closed {
		return errMemorydbClosed
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	db.data[string(key)] = cp
	return nil
}

func (db *memoryDatabase) Get(key []byte) ([]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()
	if db.closed {
		return nil, errMemorydbClosed
	}
	v, ok := db.data[string(key)]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (db *memoryDatabase) Has(key []byte) (bool, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()
	if db.closed {
		return false, errMemorydbClosed
	}
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *memoryDatabase) Delete(key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()
	if db.closed {
		return errMemorydbClosed
	}
	delete(db.data, string(key))
	return nil
}

func (db *memoryDatabase) Close() {
	db.lock.Lock()
	defer db.lock.Unlock()
	db.closed = true
}

func (db *memoryDatabase) NewBatch() Batch {
	return &memoryBatch{db: db}
}

type keyValue struct {
	key      []byte
	value    []byte
	isDelete bool
}

type memoryBatch struct {
	db   *memoryDatabase
	ops  []keyValue
	size int
}

func (b *memoryBatch) Put(key, value []byte) error {
	cpk, cpv := append([]byte(nil), key...), append([]byte(nil), value...)
	b.ops = append(b.ops, keyValue{key: cpk, value: cpv})
	b.size += len(key) + len(value)
	return nil
}

func (b *memoryBatch) Delete(key []byte) error {
	cpk := append([]byte(nil), key...)
	b.ops = append(b.ops, keyValue{key: cpk, isDelete: true})
	b.size += len(key)
	return nil
}

func (b *memoryBatch) ValueSize() int { return b.size }

func (b *memoryBatch) Write() error {
	for _, op := range b.ops {
		if op.isDelete {
			if err := b.db.Delete(op.key); err != nil {
				return err
			}
			continue
		}
		if err := b.db.Put(op.key, op.value); err != nil {
			return err
		}
	}
	return nil
}

func (b *memoryBatch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}
