package storage

import (
	"errors"
	"fmt"

	"github.com/colorfulnotion/zytherion/log"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// PersistenceStore is the key-value collaborator behind the block store.
type PersistenceStore struct {
	db    *leveldb.DB
	path  string
	write *opt.WriteOptions
}

type StoreOption func(*PersistenceStore)

// WithSync fsyncs every write before it returns.
func WithSync() StoreOption {
	return func(ps *PersistenceStore) { ps.write = &opt.WriteOptions{Sync: true} }
}

// NewPersistenceStore opens the LevelDB directory at path, creating it if
// needed. An empty path keeps everything in memory.
func NewPersistenceStore(path string, opts ...StoreOption) (*PersistenceStore, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, &opt.Options{ErrorIfMissing: false})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %q: %w", path, err)
	}
	ps := &PersistenceStore{db: db, path: path}
	for _, o := range opts {
		o(ps)
	}
	log.Debug(log.StorageMonitoring, "store opened", "path", path, "sync", ps.write != nil)
	return ps, nil
}

func NewMemoryPersistenceStore() (*PersistenceStore, error) {
	return NewPersistenceStore("")
}

// Path is "" for in-memory stores.
func (ps *PersistenceStore) Path() string {
	return ps.path
}

// Get returns found == false, and no error, for a missing key.
func (ps *PersistenceStore) Get(key []byte) (value []byte, found bool, err error) {
	value, err = ps.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %x: %w", key, err)
	}
	return value, true, nil
}

func (ps *PersistenceStore) Has(key []byte) (bool, error) {
	return ps.db.Has(key, nil)
}

func (ps *PersistenceStore) Put(key, value []byte) error {
	return ps.db.Put(key, value, ps.write)
}

func (ps *PersistenceStore) Delete(key []byte) error {
	return ps.db.Delete(key, ps.write)
}

// Batch collects writes that Write applies atomically.
type Batch struct {
	b leveldb.Batch
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) Put(key, value []byte) {
	b.b.Put(key, value)
}

func (b *Batch) Delete(key []byte) {
	b.b.Delete(key)
}

func (b *Batch) Len() int {
	return b.b.Len()
}

func (ps *PersistenceStore) Write(b *Batch) error {
	return ps.db.Write(&b.b, ps.write)
}

// Iterate calls fn for every key under prefix in key order. fn must copy
// key and value to keep them. A non-nil error from fn stops the scan and
// is returned.
func (ps *PersistenceStore) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	iter := ps.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterate %x: %w", prefix, err)
	}
	return nil
}

func (ps *PersistenceStore) Close() error {
	return ps.db.Close()
}
