package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var auditBucket = []byte("audit_records")

// AuditStore is a bbolt-backed append-only store for audit records. Keys are
// timestamp-ordered so a cursor walk returns records in emission order.
type AuditStore struct {
	db *bolt.DB
}

// OpenAuditStore opens (creating if needed) the audit database at path.
func OpenAuditStore(path string) (*AuditStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating audit directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	return NewAuditStore(db)
}

// NewAuditStore creates the audit bucket in the given database.
func NewAuditStore(db *bolt.DB) (*AuditStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(auditBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &AuditStore{db: db}, nil
}

// Append persists one record. The record's timestamp and id form the key, so
// appends never collide or overwrite.
func (s *AuditStore) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	key := rec.Timestamp.UTC().Format(time.RFC3339Nano) + "/" + rec.ID
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(auditBucket).Put([]byte(key), data)
	})
}

// Records returns up to limit records in append order. A non-positive limit
// returns everything.
func (s *AuditStore) Records(limit int) ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(auditBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			if limit > 0 && len(records) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the underlying database.
func (s *AuditStore) Close() error {
	return s.db.Close()
}
