package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/goyp/internal/protocol/portmap"
	"github.com/marmos91/goyp/pkg/store"
	"github.com/marmos91/goyp/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter blocks in Serve until ctx is cancelled, Stop is called or
// fail is closed.
type fakeAdapter struct {
	protocol string
	port     int
	fail     chan struct{}

	mu       sync.Mutex
	store    store.Store
	stopped  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	started  chan struct{}
	mappings []portmap.Mapping
}

func newFake(protocol string, port int) *fakeAdapter {
	return &fakeAdapter{
		protocol: protocol,
		port:     port,
		fail:     make(chan struct{}),
		stopCh:   make(chan struct{}),
		started:  make(chan struct{}),
	}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	close(f.started)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stopCh:
		return nil
	case <-f.fail:
		return errors.New("listener broke")
	}
}

func (f *fakeAdapter) Stop(context.Context) error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	f.stopOnce.Do(func() { close(f.stopCh) })
	return nil
}

func (f *fakeAdapter) Protocol() string { return f.protocol }
func (f *fakeAdapter) Port() int        { return f.port }

func (f *fakeAdapter) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// storeAdapter also uses the store and advertises itself.
type storeAdapter struct {
	*fakeAdapter
}

func (s *storeAdapter) SetStore(st store.Store) { s.store = st }

func (s *storeAdapter) Mappings() []portmap.Mapping {
	return []portmap.Mapping{{Prog: 100004, Vers: 2, Prot: 17, Port: uint32(s.port)}}
}

// registryAdapter records registrations.
type registryAdapter struct {
	*fakeAdapter
	registered []portmap.Mapping
}

func (r *registryAdapter) Register(m portmap.Mapping) bool {
	r.registered = append(r.registered, m)
	return true
}

func TestAddAdapter(t *testing.T) {
	t.Run("InjectsStore", func(t *testing.T) {
		st := memory.New()
		srv := New(st)
		a := &storeAdapter{newFake("ypserv", 1)}

		require.NoError(t, srv.AddAdapter(a))
		assert.Same(t, st, a.store)
		assert.Len(t, srv.Adapters(), 1)
	})

	t.Run("RejectsDuplicateProtocol", func(t *testing.T) {
		srv := New(memory.New())
		require.NoError(t, srv.AddAdapter(newFake("ypserv", 1)))
		assert.ErrorContains(t, srv.AddAdapter(newFake("ypserv", 2)), "already registered")
	})

	t.Run("RejectsDuplicatePort", func(t *testing.T) {
		srv := New(memory.New())
		require.NoError(t, srv.AddAdapter(newFake("ypserv", 1)))
		assert.ErrorContains(t, srv.AddAdapter(newFake("ypbind", 1)), "already in use")
	})

	t.Run("NilPanics", func(t *testing.T) {
		assert.Panics(t, func() { _ = New(memory.New()).AddAdapter(nil) })
		assert.Panics(t, func() { New(nil) })
	})
}

func TestServe(t *testing.T) {
	t.Run("NoAdapters", func(t *testing.T) {
		assert.Error(t, New(memory.New()).Serve(context.Background()))
	})

	t.Run("RegistersPortsAndStopsOnCancel", func(t *testing.T) {
		srv := New(memory.New())
		registry := &registryAdapter{fakeAdapter: newFake("portmap", 111)}
		yp := &storeAdapter{newFake("ypserv", 834)}
		require.NoError(t, srv.AddAdapter(registry))
		require.NoError(t, srv.AddAdapter(yp))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- srv.Serve(ctx) }()

		<-registry.started
		<-yp.started
		assert.Equal(t, yp.Mappings(), registry.registered)

		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("Serve did not return")
		}
		assert.True(t, registry.isStopped())
		assert.True(t, yp.isStopped())

		assert.ErrorContains(t, srv.Serve(context.Background()), "already serving")
		assert.Panics(t, func() { _ = srv.AddAdapter(newFake("late", 9)) })
	})

	t.Run("FailingAdapterStopsTheRest", func(t *testing.T) {
		srv := New(memory.New())
		healthy := newFake("ypbind", 1)
		broken := newFake("ypserv", 2)
		require.NoError(t, srv.AddAdapter(healthy))
		require.NoError(t, srv.AddAdapter(broken))

		done := make(chan error, 1)
		go func() { done <- srv.Serve(context.Background()) }()

		<-broken.started
		close(broken.fail)

		select {
		case err := <-done:
			assert.ErrorContains(t, err, "ypserv adapter error")
		case <-time.After(5 * time.Second):
			t.Fatal("Serve did not return")
		}
		assert.True(t, healthy.isStopped())
	})
}
