// Package offset persists capture positions in a local BoltDB file. All data
// lives in a single file, so no external process is needed next to the
// capture adapter.
package offset

import (
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

const bucketName = "positions"

// Store wraps a BoltDB database holding the last acknowledged position and
// the snapshot-completed marker per source.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the position database at the given path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open position store")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create positions bucket")
	}

	return &Store{db: db}, nil
}

// LastAcked returns the last acknowledged position for a source, or "" if
// none was stored.
func (s *Store) LastAcked(source string) (string, error) {
	var pos string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucketName)).Get([]byte(source)); v != nil {
			pos = string(v)
		}
		return nil
	})
	return pos, err
}

// SetLastAcked records the last acknowledged position for a source.
func (s *Store) SetLastAcked(source, pos string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(source), []byte(pos))
	})
}

// SnapshotDone reports whether the initial snapshot for a source completed.
func (s *Store) SnapshotDone(source string) (bool, error) {
	var done bool
	err := s.db.View(func(tx *bolt.Tx) error {
		done = tx.Bucket([]byte(bucketName)).Get([]byte(source+"/snapshot")) != nil
		return nil
	})
	return done, err
}

// MarkSnapshotDone records that the initial snapshot for a source completed,
// so a restart does not emit existing rows a second time.
func (s *Store) MarkSnapshotDone(source string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(source+"/snapshot"), []byte("1"))
	})
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}
