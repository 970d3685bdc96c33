// Package testing is a conformance suite for store.Store implementations.
// It tests the interface contract, not implementation details, so every
// backend runs the same tests.
package testing

import (
	"context"
	"testing"

	"github.com/marmos91/goyp/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite runs the contract tests against stores built by NewStore.
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func(t *testing.T) store.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(test *testing.T) {
	test.Run("GetReturnsStoredValue", suite.TestGetReturnsStoredValue)
	test.Run("GetErrors", suite.TestGetErrors)
	test.Run("EnumerationVisitsEveryKeyOnce", suite.TestEnumerationVisitsEveryKeyOnce)
	test.Run("EnumerationErrors", suite.TestEnumerationErrors)
	test.Run("EmptyMap", suite.TestEmptyMap)
	test.Run("DomainsAndMaps", suite.TestDomainsAndMaps)
	test.Run("PutOverwrites", suite.TestPutOverwrites)
	test.Run("Order", suite.TestOrder)
	test.Run("RejectsInvalidNames", suite.TestRejectsInvalidNames)
	test.Run("ReturnsCopies", suite.TestReturnsCopies)
	test.Run("Load", suite.TestLoad)
}

func (suite *StoreTestSuite) newStore(t *testing.T) store.Store {
	t.Helper()
	st := suite.NewStore(t)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func mustPut(t *testing.T, st store.Store, domain, mapName, key, value string) {
	t.Helper()
	require.NoError(t, st.Put(context.Background(), domain, mapName, []byte(key), []byte(value)))
}

// TestGetReturnsStoredValue verifies byte-exact lookups, including NUL bytes.
func (suite *StoreTestSuite) TestGetReturnsStoredValue(t *testing.T) {
	st := suite.newStore(t)
	ctx := context.Background()

	mustPut(t, st, "example.com", "passwd.byname", "alice", "alice:*:1000:1000:Alice:/home/alice:/bin/sh")
	require.NoError(t, st.Put(ctx, "example.com", "bin", []byte{0, 1}, []byte{'x', 0, 'y'}))

	v, err := st.Get(ctx, "example.com", "passwd.byname", []byte("alice"))
	require.NoError(t, err)
	assert.Equal(t, "alice:*:1000:1000:Alice:/home/alice:/bin/sh", string(v))

	v, err = st.Get(ctx, "example.com", "bin", []byte{0, 1})
	require.NoError(t, err)
	assert.Equal(t, []byte{'x', 0, 'y'}, v)
}

// TestGetErrors verifies the domain/map/key error distinction.
func (suite *StoreTestSuite) TestGetErrors(t *testing.T) {
	st := suite.newStore(t)
	ctx := context.Background()
	mustPut(t, st, "example.com", "passwd.byname", "alice", "x")

	_, err := st.Get(ctx, "other.com", "passwd.byname", []byte("alice"))
	assert.ErrorIs(t, err, store.ErrNoDomain)

	_, err = st.Get(ctx, "example.com", "group.byname", []byte("alice"))
	assert.ErrorIs(t, err, store.ErrNoMap)

	_, err = st.Get(ctx, "example.com", "passwd.byname", []byte("bob"))
	assert.ErrorIs(t, err, store.ErrNoKey)
}

// TestEnumerationVisitsEveryKeyOnce walks a map with First/Next.
func (suite *StoreTestSuite) TestEnumerationVisitsEveryKeyOnce(t *testing.T) {
	st := suite.newStore(t)
	ctx := context.Background()

	want := map[string]string{"alice": "1", "bob": "2", "carol": "3", "dave": "4"}
	for k, v := range want {
		mustPut(t, st, "example.com", "m", k, v)
	}
	// Keys that prefix each other must not confuse the scan.
	mustPut(t, st, "example.com", "m.other", "zed", "9")

	got := map[string]string{}
	key, value, err := st.First(ctx, "example.com", "m")
	require.NoError(t, err)
	for range 10 {
		got[string(key)] = string(value)
		key, value, err = st.Next(ctx, "example.com", "m", key)
		if err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, store.ErrNoMore)
	assert.Equal(t, want, got)
}

// TestEnumerationErrors verifies First/Next failures.
func (suite *StoreTestSuite) TestEnumerationErrors(t *testing.T) {
	st := suite.newStore(t)
	ctx := context.Background()
	mustPut(t, st, "example.com", "m", "b", "2")

	_, _, err := st.First(ctx, "nope", "m")
	assert.ErrorIs(t, err, store.ErrNoDomain)
	_, _, err = st.First(ctx, "example.com", "nope")
	assert.ErrorIs(t, err, store.ErrNoMap)

	_, _, err = st.Next(ctx, "example.com", "m", []byte("a"))
	assert.ErrorIs(t, err, store.ErrNoKey)
	_, _, err = st.Next(ctx, "example.com", "m", []byte("b"))
	assert.ErrorIs(t, err, store.ErrNoMore)
}

// TestEmptyMap verifies CreateMap without entries.
func (suite *StoreTestSuite) TestEmptyMap(t *testing.T) {
	st := suite.newStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateMap(ctx, "example.com", "empty"))
	require.NoError(t, st.CreateMap(ctx, "example.com", "empty"))

	maps, err := st.Maps(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"empty"}, maps)

	_, _, err = st.First(ctx, "example.com", "empty")
	assert.ErrorIs(t, err, store.ErrNoMore)
	_, err = st.Get(ctx, "example.com", "empty", []byte("k"))
	assert.ErrorIs(t, err, store.ErrNoKey)
}

// TestDomainsAndMaps verifies listing.
func (suite *StoreTestSuite) TestDomainsAndMaps(t *testing.T) {
	st := suite.newStore(t)
	ctx := context.Background()

	domains, err := st.Domains(ctx)
	require.NoError(t, err)
	assert.Empty(t, domains)

	mustPut(t, st, "b.com", "hosts.byname", "gw", "10.0.0.1 gw")
	mustPut(t, st, "a.com", "passwd.byname", "alice", "x")
	mustPut(t, st, "a.com", "group.byname", "wheel", "wheel:*:0:")

	domains, err = st.Domains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.com", "b.com"}, domains)

	maps, err := st.Maps(ctx, "a.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"group.byname", "passwd.byname"}, maps)

	_, err = st.Maps(ctx, "c.com")
	assert.ErrorIs(t, err, store.ErrNoDomain)
}

// TestPutOverwrites verifies replacing a value keeps one key.
func (suite *StoreTestSuite) TestPutOverwrites(t *testing.T) {
	st := suite.newStore(t)
	ctx := context.Background()

	mustPut(t, st, "example.com", "m", "k", "old")
	mustPut(t, st, "example.com", "m", "k", "new")

	v, err := st.Get(ctx, "example.com", "m", []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(v))

	_, _, err = st.Next(ctx, "example.com", "m", []byte("k"))
	assert.ErrorIs(t, err, store.ErrNoMore)

	assert.Error(t, st.Put(ctx, "example.com", "m", nil, []byte("v")))
}

// TestOrder verifies order numbers are recent timestamps.
func (suite *StoreTestSuite) TestOrder(t *testing.T) {
	st := suite.newStore(t)
	ctx := context.Background()
	mustPut(t, st, "example.com", "m", "k", "v")

	order, err := st.Order(ctx, "example.com", "m")
	require.NoError(t, err)
	assert.NotZero(t, order)

	_, err = st.Order(ctx, "example.com", "nope")
	assert.ErrorIs(t, err, store.ErrNoMap)
}

// TestRejectsInvalidNames verifies name validation on writes.
func (suite *StoreTestSuite) TestRejectsInvalidNames(t *testing.T) {
	st := suite.newStore(t)
	ctx := context.Background()

	for _, name := range []string{"", "a\x00b", "a/b", "with space"} {
		err := st.Put(ctx, name, "m", []byte("k"), []byte("v"))
		assert.ErrorIs(t, err, store.ErrInvalidName, "domain %q", name)
		err = st.CreateMap(ctx, "example.com", name)
		assert.ErrorIs(t, err, store.ErrInvalidName, "map %q", name)
	}
}

// TestReturnsCopies verifies callers cannot mutate stored data.
func (suite *StoreTestSuite) TestReturnsCopies(t *testing.T) {
	st := suite.newStore(t)
	ctx := context.Background()

	value := []byte("value")
	require.NoError(t, st.Put(ctx, "example.com", "m", []byte("k"), value))
	value[0] = 'X'

	got, err := st.Get(ctx, "example.com", "m", []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "value", string(got))

	got[0] = 'Y'
	again, err := st.Get(ctx, "example.com", "m", []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "value", string(again))
}
