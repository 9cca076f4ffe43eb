package candb

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// levelDatabase is the durable candb.Database backend. Selected by the
// Nexus when its configured cache size is non-negative and a data
// directory is set.
type levelDatabase struct {
	fn string
	db *leveldb.DB
}

// NewLevelDatabase opens (or creates) a goleveldb store at file, sizing its
// block cache and write buffer from cache (MiB) and handles (open file
// descriptors), mirroring the donor's NewLDBDatabase constructor shape.
func NewLevelDatabase(file string, cache int, handles int) (Database, error) {
	if cache < 16 {
		cache = 16
	}
	if handles < 16 {
		handles = 16
	}
	db, err := leveldb.OpenFile(file, &opt.Options{
		OpenFilesCacheCapacity: handles,
		BlockCacheCapacity:     cache / 2 * opt.MiB,
		WriteBuffer:            cache / 4 * opt.MiB,
	})
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(file, nil)
	}
	if err != nil {
		return nil, err
	}
	return &levelDatabase{fn: file, db: db}, nil
}

func (db *levelDatabase) Put(key []byte, value []byte) error {
	return db.db.Put(key, value, nil)
}

func (db *levelDatabase) Get(key []byte) ([]byte, error) {
	v, err := db.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	return v, err
}

func (db *levelDatabase) Has(key []byte) (bool, error) {
	return db.db.Has(key, nil)
}

func (db *levelDatabase) Delete(key []byte) error {
	return db.db.Delete(key, nil)
}

func (db *levelDatabase) Close() {
	db.db.Close()
}

func (db *levelDatabase) NewBatch() Batch {
	return &levelBatch{db: db.db, b: new(leveldb.Batch)}
}

type levelBatch struct {
	db *leveldb.DB
	b  *leveldb.Batch
	size int
}

func (b *levelBatch) Put(key, value []byte) error {
	b.b.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

func (b *levelBatch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size += len(key)
	return nil
}

func (b *levelBatch) ValueSize() int { return b.size }

func (b *levelBatch) Write() error { return b.db.Write(b.b, nil) }

func (b *levelBatch) Reset() { b.b.Reset() }
