// Package memory provides an in-memory store.Store.
package memory

import (
	"bytes"
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/goyp/pkg/store"
)

// ypMap keeps keys sorted so First/Next are binary searches.
type ypMap struct {
	keys   []string
	values map[string][]byte
	order  uint32
}

// Store is an in-memory store.Store. The zero value is not usable; call New.
//
// Thread Safety:
// All operations are protected by a single read-write mutex.
type Store struct {
	mu      sync.RWMutex
	domains map[string]map[string]*ypMap
	now     func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		domains: make(map[string]map[string]*ypMap),
		now:     time.Now,
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Domains(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	domains := make([]string, 0, len(s.domains))
	for d := range s.domains {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains, nil
}

func (s *Store) Maps(ctx context.Context, domain string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	maps, ok := s.domains[domain]
	if !ok {
		return nil, store.ErrNoDomain
	}
	names := make([]string, 0, len(maps))
	for name := range maps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// lookup returns the map or the appropriate store error. Caller holds mu.
func (s *Store) lookup(domain, mapName string) (*ypMap, error) {
	maps, ok := s.domains[domain]
	if !ok {
		return nil, store.ErrNoDomain
	}
	m, ok := maps[mapName]
	if !ok {
		return nil, store.ErrNoMap
	}
	return m, nil
}

func (s *Store) Get(ctx context.Context, domain, mapName string, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.lookup(domain, mapName)
	if err != nil {
		return nil, err
	}
	v, ok := m.values[string(key)]
	if !ok {
		return nil, store.ErrNoKey
	}
	return bytes.Clone(v), nil
}

func (s *Store) First(ctx context.Context, domain, mapName string) ([]byte, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.lookup(domain, mapName)
	if err != nil {
		return nil, nil, err
	}
	if len(m.keys) == 0 {
		return nil, nil, store.ErrNoMore
	}
	k := m.keys[0]
	return []byte(k), bytes.Clone(m.values[k]), nil
}

func (s *Store) Next(ctx context.Context, domain, mapName string, key []byte) ([]byte, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.lookup(domain, mapName)
	if err != nil {
		return nil, nil, err
	}
	i, found := slices.BinarySearch(m.keys, string(key))
	if !found {
		return nil, nil, store.ErrNoKey
	}
	if i+1 >= len(m.keys) {
		return nil, nil, store.ErrNoMore
	}
	k := m.keys[i+1]
	return []byte(k), bytes.Clone(m.values[k]), nil
}

func (s *Store) Order(ctx context.Context, domain, mapName string) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.lookup(domain, mapName)
	if err != nil {
		return 0, err
	}
	return m.order, nil
}

// ensure returns the map, creating it and its domain. Caller holds mu.
func (s *Store) ensure(domain, mapName string) (*ypMap, error) {
	if err := store.ValidateName(domain); err != nil {
		return nil, err
	}
	if err := store.ValidateName(mapName); err != nil {
		return nil, err
	}

	maps, ok := s.domains[domain]
	if !ok {
		maps = make(map[string]*ypMap)
		s.domains[domain] = maps
	}
	m, ok := maps[mapName]
	if !ok {
		m = &ypMap{values: make(map[string][]byte), order: uint32(s.now().Unix())}
		maps[mapName] = m
	}
	return m, nil
}

func (s *Store) CreateMap(ctx context.Context, domain, mapName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.ensure(domain, mapName)
	return err
}

func (s *Store) Put(ctx context.Context, domain, mapName string, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(key) == 0 {
		return store.ErrNoKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.ensure(domain, mapName)
	if err != nil {
		return err
	}

	k := string(key)
	if _, exists := m.values[k]; !exists {
		i, _ := slices.BinarySearch(m.keys, k)
		m.keys = slices.Insert(m.keys, i, k)
	}
	m.values[k] = bytes.Clone(value)
	m.order = uint32(s.now().Unix())
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
