package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrKeyExists   = errors.New("key already exists")
)

// Store is a thin namespaced wrapper around a badger database.
type Store struct {
	db *badger.DB
}

func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dataDir, "badger"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &Store{db: db}, nil
}

// NewInMemoryStore opens a badger instance that never touches disk.
func NewInMemoryStore() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(namespace, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		v, err := get(txn, namespace+key)
		value = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Insert writes value only if key is absent.
func (s *Store) Insert(namespace, key string, value []byte) error {
	fullKey := namespace + key
	return s.update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(fullKey))
		if err == nil {
			return fmt.Errorf("%w: %s", ErrKeyExists, key)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set([]byte(fullKey), value)
	})
}

// Update applies fn to the current value of key and stores the result in
// the same transaction. The key must exist. fn may run more than once when
// the transaction conflicts with another writer.
func (s *Store) Update(namespace, key string, fn func(old []byte) ([]byte, error)) error {
	fullKey := namespace + key
	return s.update(func(txn *badger.Txn) error {
		old, err := get(txn, fullKey)
		if err != nil {
			return err
		}
		value, err := fn(old)
		if err != nil {
			return err
		}
		return txn.Set([]byte(fullKey), value)
	})
}

func (s *Store) Delete(namespace, key string) error {
	fullKey := namespace + key
	return s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(fullKey)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
			}
			return err
		}
		return txn.Delete([]byte(fullKey))
	})
}

// Scan calls fn with every value stored under prefix.
func (s *Store) Scan(namespace, prefix string, fn func(key string, value []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		fullPrefix := []byte(namespace + prefix)
		for it.Seek(fullPrefix); it.ValidForPrefix(fullPrefix); it.Next() {
			item := it.Item()
			key := string(item.Key())[len(namespace):]
			if err := item.Value(func(val []byte) error {
				return fn(key, val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// update runs fn in a read-write transaction, retrying while badger reports
// a conflict with a concurrent writer.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	for {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
}

func get(txn *badger.Txn, fullKey string) ([]byte, error) {
	item, err := txn.Get([]byte(fullKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, fullKey)
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}
