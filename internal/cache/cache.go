// Package cache provides a persistent key/value cache for geodata lookups
// and map tiles, so restarted cycles do not re-query third-party services.
package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/i474232898/track-enrichment/internal/logging"
	"github.com/i474232898/track-enrichment/internal/metrics"
)

// Cache is the lookup surface used by clients.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Close() error
}

// Badger is a Cache backed by BadgerDB. Entries expire after the TTL.
type Badger struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens (or creates) a Badger cache at dir. An empty dir returns a
// Nop cache.
func Open(dir string, ttl time.Duration) (Cache, error) {
	if dir == "" {
		return Nop{}, nil
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.ValueLogFileSize = 16 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache at %s: %w", dir, err)
	}
	return &Badger{db: db, ttl: ttl}, nil
}

// OpenInMemory returns a Badger cache that keeps everything in memory.
func OpenInMemory(ttl time.Duration) (*Badger, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger cache: %w", err)
	}
	return &Badger{db: db, ttl: ttl}, nil
}

func (b *Badger) Get(key string) ([]byte, bool) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logging.Debug().Err(err).Str("key", key).Msg("cache read failed")
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return value, true
}

// Set stores value under key. Write failures are logged and otherwise
// ignored; the cache is an optimisation only.
func (b *Badger) Set(key string, value []byte) {
	err := b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if b.ttl > 0 {
			e = e.WithTTL(b.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(string) ([]byte, bool) { return nil, false }
func (Nop) Set(string, []byte)        {}
func (Nop) Close() error              { return nil }
