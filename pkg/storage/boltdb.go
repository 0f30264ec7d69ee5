package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cuemby/beacon/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketProfile      = []byte("profile")
	bucketEventHistory = []byte("event_history")
	bucketIdentities   = []byte("identities")
	bucketMeta         = []byte("meta")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "beacon.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketProfile,
			bucketEventHistory,
			bucketIdentities,
			bucketMeta,
		}
		for _, group := range types.AllGroups {
			buckets = append(buckets, group.Bucket())
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Event operations

// Append encodes the event in its wire shape and stores it under the next
// sequence number of the group's bucket.
func (s *BoltStore) Append(event *types.Event, group types.EventGroup) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(group.Bucket())
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
}

// Read returns up to limit events of the group, oldest first. A limit <= 0 reads everything.
func (s *BoltStore) Read(group types.EventGroup, limit int) ([]types.StoredEvent, error) {
	var events []types.StoredEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(group.Bucket()).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if limit > 0 && len(events) >= limit {
				break
			}
			data := make([]byte, len(v))
			copy(data, v)
			events = append(events, types.StoredEvent{
				Key:  binary.BigEndian.Uint64(k),
				Data: data,
			})
		}
		return nil
	})
	return events, err
}

// Delete removes every event of the group whose key is <= upTo
func (s *BoltStore) Delete(group types.EventGroup, upTo uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(group.Bucket())

		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil && binary.BigEndian.Uint64(k) <= upTo; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}

		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of queued events in the group
func (s *BoltStore) Count(group types.EventGroup) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(group.Bucket()).Stats().KeyN
		return nil
	})
	return n, err
}

// Profile operations
func (s *BoltStore) LoadProfile() (map[string]any, error) {
	profile := make(map[string]any)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfile)
		return b.ForEach(func(k, v []byte) error {
			var value any
			if err := json.Unmarshal(v, &value); err != nil {
				return fmt.Errorf("failed to decode profile field %s: %w", k, err)
			}
			profile[string(k)] = value
			return nil
		})
	})
	return profile, err
}

func (s *BoltStore) SaveProfileFields(fields map[string]any) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfile)
		for field, value := range fields {
			if value == nil {
				if err := b.Delete([]byte(field)); err != nil {
					return err
				}
				continue
			}
			data, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("failed to encode profile field %s: %w", field, err)
			}
			if err := b.Put([]byte(field), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// get copies the value stored under key, or returns ErrNotFound
func (s *BoltStore) get(bucket, key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get(key)
		if data == nil {
			return fmt.Errorf("%s %q: %w", bucket, key, ErrNotFound)
		}
		value = append([]byte(nil), data...)
		return nil
	})
	return value, err
}

func (s *BoltStore) put(bucket, key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, value)
	})
}

// GetEventHistory returns the bookkeeping entry for one event name
func (s *BoltStore) GetEventHistory(name string) (*types.EventHistory, error) {
	data, err := s.get(bucketEventHistory, []byte(name))
	if err != nil {
		return nil, err
	}
	var entry types.EventHistory
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode event history %s: %w", name, err)
	}
	return &entry, nil
}

func (s *BoltStore) PutEventHistory(entry *types.EventHistory) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode event history %s: %w", entry.Name, err)
	}
	return s.put(bucketEventHistory, []byte(entry.Name), data)
}

func (s *BoltStore) ListEventHistory() ([]*types.EventHistory, error) {
	var entries []*types.EventHistory
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEventHistory).ForEach(func(k, v []byte) error {
			entry := &types.EventHistory{}
			if err := json.Unmarshal(v, entry); err != nil {
				return fmt.Errorf("failed to decode event history %s: %w", k, err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

// Identities are keyed "<key>_<value>", e.g. "Email_ada@example.com".
func identityKey(key, value string) []byte {
	return []byte(key + "_" + value)
}

func (s *BoltStore) PutIdentity(key, value, deviceID string) error {
	return s.put(bucketIdentities, identityKey(key, value), []byte(deviceID))
}

func (s *BoltStore) GetIdentity(key, value string) (string, error) {
	data, err := s.get(bucketIdentities, identityKey(key, value))
	return string(data), err
}

func (s *BoltStore) GetMeta(key string) ([]byte, error) {
	return s.get(bucketMeta, []byte(key))
}

func (s *BoltStore) PutMeta(key string, value []byte) error {
	return s.put(bucketMeta, []byte(key), value)
}

// Backup writes a consistent copy of the database to w and returns its size
func (s *BoltStore) Backup(w io.Writer) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		n, err = tx.WriteTo(w)
		return err
	})
	if err != nil {
		return n, fmt.Errorf("failed to back up database: %w", err)
	}
	return n, nil
}

// BackupFile writes a consistent copy of the database to path
func (s *BoltStore) BackupFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	if _, err := s.Backup(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
