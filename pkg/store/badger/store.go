// Package badger provides a persistent store.Store backed by BadgerDB.
package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/goyp/pkg/store"
)

// Store implements store.Store using BadgerDB.
//
// Maps survive restarts, so a responder can serve the same maps without
// reloading the source files. BadgerDB transactions give each operation a
// consistent snapshot; no additional locking is needed.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// Config configures the store.
type Config struct {
	// DBPath is the database directory. Ignored when InMemory is set.
	DBPath string `mapstructure:"db_path"`

	// InMemory keeps the database in memory (tests, throwaway servers).
	InMemory bool `mapstructure:"in_memory"`

	// BadgerOptions overrides every other setting when non-nil.
	BadgerOptions *badger.Options
}

// New opens (or creates) the database.
func New(ctx context.Context, config Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.BadgerOptions != nil {
		opts = *config.BadgerOptions
	} else {
		if config.InMemory {
			opts = badger.DefaultOptions("").WithInMemory(true)
		} else {
			opts = badger.DefaultOptions(config.DBPath)
		}
		opts = opts.WithLoggingLevel(badger.WARNING) // Reduce log noise
		opts = opts.WithCompression(options.None)    // Map entries are small
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	return &Store{db: db, now: time.Now}, nil
}

var _ store.Store = (*Store)(nil)

func (s *Store) Domains(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixHeader)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			rest := bytes.TrimPrefix(it.Item().Key(), []byte(prefixHeader))
			if i := bytes.IndexByte(rest, 0); i > 0 {
				seen[string(rest[:i])] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	domains := make([]string, 0, len(seen))
	for d := range seen {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains, nil
}

func (s *Store) Maps(ctx context.Context, domain string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var maps []string
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := headerPrefix(domain)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			maps = append(maps, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(maps) == 0 {
		return nil, store.ErrNoDomain
	}
	return maps, nil
}

// checkMap returns nil if the map exists, else ErrNoMap or ErrNoDomain.
func checkMap(txn *badger.Txn, domain, mapName string) error {
	_, err := txn.Get(headerKey(domain, mapName))
	if err == nil {
		return nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = headerPrefix(domain)
	it := txn.NewIterator(opts)
	defer it.Close()

	it.Rewind()
	if it.Valid() {
		return store.ErrNoMap
	}
	return store.ErrNoDomain
}

func (s *Store) Get(ctx context.Context, domain, mapName string, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(domain, mapName, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			if err := checkMap(txn, domain, mapName); err != nil {
				return err
			}
			return store.ErrNoKey
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, err
}

// scan returns the first entry of the map at or after from. With skip set,
// from must exist and the entry after it is returned.
func (s *Store) scan(domain, mapName string, from []byte, skip bool) (key, value []byte, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		if err := checkMap(txn, domain, mapName); err != nil {
			return err
		}

		prefix := entryPrefix(domain, mapName)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(bytes.Clone(prefix), from...)
		it.Seek(seek)
		if skip {
			if !it.Valid() || !bytes.Equal(it.Item().Key(), seek) {
				return store.ErrNoKey
			}
			it.Next()
		}
		if !it.Valid() {
			return store.ErrNoMore
		}

		item := it.Item()
		key = bytes.Clone(item.Key()[len(prefix):])
		var err error
		value, err = item.ValueCopy(nil)
		return err
	})
	return key, value, err
}

func (s *Store) First(ctx context.Context, domain, mapName string) ([]byte, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return s.scan(domain, mapName, nil, false)
}

func (s *Store) Next(ctx context.Context, domain, mapName string, key []byte) ([]byte, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return s.scan(domain, mapName, key, true)
}

func (s *Store) Order(ctx context.Context, domain, mapName string) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var order uint32
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(headerKey(domain, mapName))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return checkMap(txn, domain, mapName)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 4 {
				return fmt.Errorf("corrupt header for %s/%s", domain, mapName)
			}
			order = binary.BigEndian.Uint32(val)
			return nil
		})
	})
	return order, err
}

func (s *Store) stamp() []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(s.now().Unix()))
}

func (s *Store) CreateMap(ctx context.Context, domain, mapName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.ValidateName(domain); err != nil {
		return err
	}
	if err := store.ValidateName(mapName); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(headerKey(domain, mapName))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(headerKey(domain, mapName), s.stamp())
	})
}

func (s *Store) Put(ctx context.Context, domain, mapName string, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(key) == 0 {
		return store.ErrNoKey
	}
	if err := store.ValidateName(domain); err != nil {
		return err
	}
	if err := store.ValidateName(mapName); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(headerKey(domain, mapName), s.stamp()); err != nil {
			return err
		}
		return txn.Set(entryKey(domain, mapName, key), bytes.Clone(value))
	})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
