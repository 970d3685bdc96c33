// Package adapter defines the lifecycle contract of the responders run by
// pkg/server.
package adapter

import (
	"context"

	"github.com/marmos91/goyp/internal/protocol/portmap"
	"github.com/marmos91/goyp/pkg/store"
)

// Adapter is one protocol responder (ypserv, ypbind, portmap, yppasswdd)
// managed by server.Server.
//
// Lifecycle:
//  1. Creation: the adapter binds its sockets in its constructor, so Port()
//     is known before Serve and can be registered with a portmapper
//  2. Store injection: SetStore() for adapters that implement StoreUser
//  3. Startup: Serve() blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Implementations must be safe for concurrent use. Stop() may be called
// concurrently with Serve() and more than once.
type Adapter interface {
	// Serve handles requests until ctx is cancelled or Stop is called.
	// It returns nil on graceful shutdown.
	Serve(ctx context.Context) error

	// Stop initiates shutdown and waits for in-flight work until ctx
	// expires.
	Stop(ctx context.Context) error

	// Protocol returns the responder name for logging and metrics
	// (e.g. "ypserv").
	Protocol() string

	// Port returns the port the responder listens on.
	Port() int
}

// StoreUser is implemented by adapters that serve maps from the shared
// store. server.Server calls SetStore once before Serve.
type StoreUser interface {
	SetStore(st store.Store)
}

// Registrable is implemented by adapters that advertise themselves through
// the port mapper.
type Registrable interface {
	Mappings() []portmap.Mapping
}

// PortRegistry is implemented by the port mapper adapter. server.Server
// registers every Registrable adapter with it before serving.
type PortRegistry interface {
	Register(m portmap.Mapping) bool
}
