package localstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bolt is a KV backed by a bbolt file, one bucket per namespace.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the bbolt database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("localstore/bolt: open %s: %w", path, err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Get(_ context.Context, ns, key string) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ns))
		if bucket == nil {
			return nil
		}
		if v := bucket.Get([]byte(key)); v != nil {
			// v is only valid for the life of the transaction.
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("localstore/bolt: get %s/%s: %w", ns, key, err)
	}
	return value, value != nil, nil
}

func (b *Bolt) Put(_ context.Context, ns, key string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(ns))
		if err != nil {
			return fmt.Errorf("localstore/bolt: bucket %s: %w", ns, err)
		}
		return bucket.Put([]byte(key), value)
	})
}

func (b *Bolt) Delete(_ context.Context, ns, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ns))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
}

func (b *Bolt) Clear(_ context.Context, ns string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(ns))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
