package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gantry-io/gantry/internal/ir"
	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("resources")

// Bolt stores entries in a bbolt database, one record per resource, so an
// upsert touches only that resource's key.
type Bolt struct {
	db *bolt.DB
}

// NewBolt creates and opens a database at the given path. The file and its
// directory are created if they do not exist.
func NewBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("ensure dir exists %s: %w", filepath.Dir(path), err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Close closes the database and releases its file lock.
func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) Load(ctx context.Context) (map[ir.ID]*ir.Entry, error) {
	out := make(map[ir.ID]*ir.Entry)
	err := b.db.View(func(tx *bolt.Tx) error {
		buc := tx.Bucket(boltBucket)
		if buc == nil {
			return nil
		}
		return buc.ForEach(func(k, v []byte) error {
			var entry ir.Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("decode entry %s: %w", k, err)
			}
			out[entry.ID()] = &entry
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bolt) Upsert(ctx context.Context, id ir.ID, entry *ir.Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", id, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		buc, err := tx.CreateBucketIfNotExists(boltBucket)
		if err != nil {
			return fmt.Errorf("ensure bucket exists: %w", err)
		}
		return buc.Put([]byte(id.String()), raw)
	})
}

func (b *Bolt) Remove(ctx context.Context, id ir.ID) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		buc := tx.Bucket(boltBucket)
		if buc == nil {
			return nil
		}
		return buc.Delete([]byte(id.String()))
	})
}
