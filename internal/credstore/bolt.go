package credstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var bucketCredentials = []byte("credentials")

// boltOpenTimeout bounds the wait for the file lock held by another process.
const boltOpenTimeout = time.Second

// BoltStore keeps credentials in a bbolt database, one bucket, one key per
// entry.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (or creates) the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), DirPerms); err != nil {
		return nil, fmt.Errorf("credstore: creating directory for %s: %w", path, err)
	}

	db, err := bbolt.Open(path, FilePerms, &bbolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("credstore: opening bolt database %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCredentials)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("credstore: creating credentials bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close releases the database file lock.
func (b *BoltStore) Close() error {
	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil

	return err
}

func (b *BoltStore) Get(key string) (string, error) {
	if b.db == nil {
		return "", ErrClosed
	}

	var value string

	err := b.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketCredentials).Get([]byte(key)); v != nil {
			value = string(v)
		}

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("credstore: reading %s: %w", key, err)
	}

	return value, nil
}

func (b *BoltStore) Set(key, value string) error {
	if b.db == nil {
		return ErrClosed
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketCredentials).Put([]byte(key), []byte(value)); err != nil {
			return fmt.Errorf("credstore: writing %s: %w", key, err)
		}

		return nil
	})
}

func (b *BoltStore) Delete(keys ...string) error {
	if b.db == nil {
		return ErrClosed
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCredentials)

		for _, k := range keys {
			if err := bucket.Delete([]byte(k)); err != nil {
				return fmt.Errorf("credstore: deleting %s: %w", k, err)
			}
		}

		return nil
	})
}
