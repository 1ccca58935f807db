package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerDB key namespace:
//
// Data Type     Prefix   Key Format       Value Type
// ====================================================
// Object Entry  "o:"     o:<object key>   Entry (JSON)
//
// The single prefix keeps the namespace open for future record types
// without a schema change.
const prefixObject = "o:"

// keyObject generates the key for an object entry: "o:<object key>"
func keyObject(key string) []byte {
	return []byte(prefixObject + key)
}

// Badger is the BadgerDB-backed Index. One database holds the whole
// registry; entries are JSON values under prefixed keys.
type Badger struct {
	db     *badger.DB
	closed atomic.Bool
}

// NewBadger opens (creating if necessary) the registry database at dir.
func NewBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir)
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	return &Badger{db: db}, nil
}

// Get returns the entry for key, or ErrNotFound.
func (b *Badger) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.closed.Load() {
		return nil, ErrClosed
	}

	var entry *Entry
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyObject(key))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			var decErr error
			entry, decErr = decodeEntry(val)
			return decErr
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Put stores or replaces the entry under entry.Key.
func (b *Badger) Put(ctx context.Context, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.closed.Load() {
		return ErrClosed
	}

	return b.db.Update(func(txn *badger.Txn) error {
		data, err := encodeEntry(entry)
		if err != nil {
			return err
		}
		if err := txn.Set(keyObject(entry.Key), data); err != nil {
			return fmt.Errorf("failed to store entry: %w", err)
		}
		return nil
	})
}

// Delete removes the entry for key. Deleting an absent key is not an
// error.
func (b *Badger) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.closed.Load() {
		return ErrClosed
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(keyObject(key))
	})
}

// Touch updates the last-used time for key.
func (b *Badger) Touch(ctx context.Context, key string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.closed.Load() {
		return ErrClosed
	}

	return b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyObject(key))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var entry *Entry
		err = item.Value(func(val []byte) error {
			var decErr error
			entry, decErr = decodeEntry(val)
			return decErr
		})
		if err != nil {
			return err
		}

		entry.LastUsed = at
		data, err := encodeEntry(entry)
		if err != nil {
			return err
		}
		return txn.Set(keyObject(key), data)
	})
}

// List returns all entries. Order is unspecified.
func (b *Badger) List(ctx context.Context) ([]*Entry, error) {
	var entries []*Entry
	err := b.ForEach(ctx, func(entry *Entry) error {
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ForEach calls fn for every entry, stopping at the first error.
func (b *Badger) ForEach(ctx context.Context, fn func(*Entry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.closed.Load() {
		return ErrClosed
	}

	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixObject)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		var seen int
		for it.Rewind(); it.Valid(); it.Next() {
			if seen%100 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			seen++

			item := it.Item()
			err := item.Value(func(val []byte) error {
				entry, err := decodeEntry(val)
				if err != nil {
					return err
				}
				return fn(entry)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Close flushes and closes the database.
func (b *Badger) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}

func encodeEntry(entry *Entry) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode entry: %w", err)
	}
	return &entry, nil
}
