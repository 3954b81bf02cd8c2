// Package cursor implements the bulk-import resume cursor named in the
// DOMAIN STACK: a small durable store of "how many bytes of this file
// have already been flushed through the pipeline", so an interrupted
// bulk import can restart from where it left off instead of
// re-processing already-committed records. Grounded on the reference
// codebase's db/bolt/bolt.go bucket-per-concern wrapper (Open,
// CreateBucketIfNotExists, JSON put/get), narrowed from a generic
// JSON store to one offset-by-key API.
package cursor

import (
	"encoding/binary"
	"time"

	bolt "go.etcd.io/bbolt"

	"twine.work/twineerr"
)

const bucketName = "bulk_import_cursors"

// Store persists a single int64 byte offset per key (typically an
// absolute file path) in a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt file at path and ensures
// its bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, twineerr.New(twineerr.BadConfig, "cursor.Open", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		return nil, twineerr.New(twineerr.BadConfig, "cursor.Open", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying file lock.
func (s *Store) Close() error { return s.db.Close() }

// Load returns the last-saved offset for key, or 0 if none is recorded.
func (s *Store) Load(key string) (int64, error) {
	var offset int64
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if v == nil {
			return nil
		}
		offset = int64(binary.BigEndian.Uint64(v))
		return nil
	})
	if err != nil {
		return 0, twineerr.New(twineerr.UpstreamFailure, "cursor.Load", err)
	}
	return offset, nil
}

// Save records offset for key.
func (s *Store) Save(key string, offset int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(offset))
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), buf)
	})
	if err != nil {
		return twineerr.New(twineerr.UpstreamFailure, "cursor.Save", err)
	}
	return nil
}

// Clear removes key's recorded offset, marking the file fully imported.
func (s *Store) Clear(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(key))
	})
	if err != nil {
		return twineerr.New(twineerr.UpstreamFailure, "cursor.Clear", err)
	}
	return nil
}
