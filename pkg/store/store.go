// Package store defines the map storage used by the development YP
// responder. A store holds domains; each domain holds named maps; each map
// is an ordered key/value table.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store errors. Implementations return these (possibly wrapped) so the
// responder can translate them into YP statuses.
var (
	// ErrNoDomain means the domain does not exist.
	ErrNoDomain = errors.New("no such domain")

	// ErrNoMap means the domain exists but the map does not.
	ErrNoMap = errors.New("no such map")

	// ErrNoKey means the key is not in the map.
	ErrNoKey = errors.New("no such key")

	// ErrNoMore means enumeration reached the end of the map.
	ErrNoMore = errors.New("no more entries")

	// ErrInvalidName means a domain or map name is empty or contains a
	// character the store cannot represent.
	ErrInvalidName = errors.New("invalid name")
)

// Store is the map storage interface.
//
// Enumeration order is the byte order of keys for both bundled
// implementations, but callers must only rely on First/Next visiting every
// key once while the map is not modified.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Domains lists the domains holding at least one map.
	Domains(ctx context.Context) ([]string, error)

	// Maps lists the maps of domain. ErrNoDomain if it has none.
	Maps(ctx context.Context, domain string) ([]string, error)

	// Get returns the value stored under key.
	Get(ctx context.Context, domain, mapName string, key []byte) ([]byte, error)

	// First returns the first entry of the map, or ErrNoMore if it is empty.
	First(ctx context.Context, domain, mapName string) (key, value []byte, err error)

	// Next returns the entry after key: ErrNoKey if key is not in the map,
	// ErrNoMore if key is the last one.
	Next(ctx context.Context, domain, mapName string, key []byte) (nextKey, value []byte, err error)

	// Order returns the map's order number, the Unix time of its last
	// modification.
	Order(ctx context.Context, domain, mapName string) (uint32, error)

	// CreateMap creates an empty map (and its domain) if it does not exist.
	CreateMap(ctx context.Context, domain, mapName string) error

	// Put stores value under key, creating the map if needed.
	Put(ctx context.Context, domain, mapName string, key, value []byte) error

	// Close releases resources held by the store.
	Close() error
}

// ValidateName checks a domain or map name. Names are at most 64 bytes and
// may not contain NUL, '/' or whitespace.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > 64 {
		return fmt.Errorf("%w: %q is longer than 64 bytes", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, "\x00/ \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
