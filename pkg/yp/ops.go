package yp

import (
	"context"
	"errors"
	"iter"

	"github.com/marmos91/goyp/internal/logger"
	ypproto "github.com/marmos91/goyp/internal/protocol/yp"
)

// Entry is one key/value pair of a map. Both slices are fresh copies owned by
// the caller and may contain NUL bytes.
type Entry struct {
	Key   []byte
	Value []byte
}

var (
	errEmptyMap = errors.New("map name is empty")
	errEmptyKey = errors.New("key is empty")
)

// clone copies b into a new non-nil slice so results never alias decoder or
// transport buffers.
func clone(b []byte) []byte {
	return append(make([]byte, 0, len(b)), b...)
}

// Probe asks the server for the domain's map list. It succeeds only if the
// server answers YP_TRUE, which confirms it serves the domain.
func (c *Client) Probe(ctx context.Context) error {
	return c.do("probe", func(t Transport) error {
		var resp ypproto.RespMapList
		if err := t.Call(ctx, ypproto.ProcMapList, &ypproto.DomainArgs{Domain: c.domain}, &resp); err != nil {
			return transportError("probe", err)
		}
		if err := statusError("probe", resp.Stat, probeStatus); err != nil {
			logger.Warn("yp: server %s does not serve domain %s: %s", c.endpoint, c.domain, resp.Stat)
			return err
		}
		return nil
	})
}

// Match looks up key in mapName. The returned value is a copy of exactly the
// bytes the server holds.
//
// Errors: BadArgument for an empty map name or key (no I/O is done),
// NoMatch when the map or key does not exist, RPCError when the server
// could not be reached, BadArgument for any other server status.
func (c *Client) Match(ctx context.Context, mapName string, key []byte) ([]byte, error) {
	var value []byte
	err := c.do("match", func(t Transport) error {
		if mapName == "" {
			return newError("match", BadArgument, errEmptyMap)
		}
		if len(key) == 0 {
			return newError("match", BadArgument, errEmptyKey)
		}

		var resp ypproto.RespVal
		req := &ypproto.ReqKey{Domain: c.domain, Map: mapName, Key: key}
		if err := t.Call(ctx, ypproto.ProcMatch, req, &resp); err != nil {
			return transportError("match", err)
		}
		if err := statusError("match", resp.Stat, matchStatus); err != nil {
			logger.Debug("yp: match %s/%q: %s", mapName, key, resp.Stat)
			return err
		}

		value = clone(resp.Val)
		return nil
	})
	return value, err
}

// First returns the first entry of mapName in the server's order.
func (c *Client) First(ctx context.Context, mapName string) (Entry, error) {
	var entry Entry
	err := c.do("first", func(t Transport) error {
		if mapName == "" {
			return newError("first", BadArgument, errEmptyMap)
		}

		var resp ypproto.RespKeyVal
		req := &ypproto.ReqNoKey{Domain: c.domain, Map: mapName}
		if err := t.Call(ctx, ypproto.ProcFirst, req, &resp); err != nil {
			return transportError("first", err)
		}
		if err := statusError("first", resp.Stat, enumStatus); err != nil {
			logger.Debug("yp: first %s: %s", mapName, resp.Stat)
			return err
		}

		entry = Entry{Key: clone(resp.Key), Value: clone(resp.Val)}
		return nil
	})
	return entry, err
}

// Next returns the entry following prev in mapName. When prev is the last
// key, Next returns an empty Entry, more == false and a nil error.
//
// The order is whatever the server's storage yields and is not stable across
// concurrent map updates on the server.
func (c *Client) Next(ctx context.Context, mapName string, prev []byte) (entry Entry, more bool, err error) {
	err = c.do("next", func(t Transport) error {
		if mapName == "" {
			return newError("next", BadArgument, errEmptyMap)
		}
		if len(prev) == 0 {
			return newError("next", BadArgument, errEmptyKey)
		}

		var resp ypproto.RespKeyVal
		req := &ypproto.ReqKey{Domain: c.domain, Map: mapName, Key: prev}
		if err := t.Call(ctx, ypproto.ProcNext, req, &resp); err != nil {
			return transportError("next", err)
		}
		if resp.Stat == ypproto.StatusNoMore {
			return nil
		}
		if err := statusError("next", resp.Stat, nextStatus); err != nil {
			logger.Debug("yp: next %s/%q: %s", mapName, prev, resp.Stat)
			return err
		}

		entry = Entry{Key: clone(resp.Key), Value: clone(resp.Val)}
		more = true
		return nil
	})
	return entry, more, err
}

// All iterates over mapName with First and Next. Iteration stops at the end
// of the map or after yielding the first error.
func (c *Client) All(ctx context.Context, mapName string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		entry, err := c.First(ctx, mapName)
		if err != nil {
			yield(Entry{}, err)
			return
		}

		for {
			if !yield(entry, nil) {
				return
			}

			next, more, err := c.Next(ctx, mapName, entry.Key)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			if !more {
				return
			}
			entry = next
		}
	}
}

// ServesDomain asks the server whether it serves the handle's domain.
func (c *Client) ServesDomain(ctx context.Context) (bool, error) {
	var serves bool
	err := c.do("domain", func(t Transport) error {
		if err := t.Call(ctx, ypproto.ProcDomain, &ypproto.DomainArgs{Domain: c.domain}, &serves); err != nil {
			return transportError("domain", err)
		}
		return nil
	})
	return serves, err
}

// Maps returns the names of the maps in the handle's domain.
func (c *Client) Maps(ctx context.Context) ([]string, error) {
	var maps []string
	err := c.do("maplist", func(t Transport) error {
		var resp ypproto.RespMapList
		if err := t.Call(ctx, ypproto.ProcMapList, &ypproto.DomainArgs{Domain: c.domain}, &resp); err != nil {
			return transportError("maplist", err)
		}
		if err := statusError("maplist", resp.Stat, enumStatus); err != nil {
			return err
		}
		maps = resp.Maps
		return nil
	})
	return maps, err
}

// Order returns the order number of mapName, conventionally the time the map
// was built.
func (c *Client) Order(ctx context.Context, mapName string) (uint32, error) {
	var order uint32
	err := c.do("order", func(t Transport) error {
		if mapName == "" {
			return newError("order", BadArgument, errEmptyMap)
		}

		var resp ypproto.RespOrder
		if err := t.Call(ctx, ypproto.ProcOrder, &ypproto.ReqNoKey{Domain: c.domain, Map: mapName}, &resp); err != nil {
			return transportError("order", err)
		}
		if err := statusError("order", resp.Stat, enumStatus); err != nil {
			return err
		}
		order = resp.Ordinum
		return nil
	})
	return order, err
}

// Master returns the name of the master server of mapName.
func (c *Client) Master(ctx context.Context, mapName string) (string, error) {
	var master string
	err := c.do("master", func(t Transport) error {
		if mapName == "" {
			return newError("master", BadArgument, errEmptyMap)
		}

		var resp ypproto.RespMaster
		if err := t.Call(ctx, ypproto.ProcMaster, &ypproto.ReqNoKey{Domain: c.domain, Map: mapName}, &resp); err != nil {
			return transportError("master", err)
		}
		if err := statusError("master", resp.Stat, enumStatus); err != nil {
			return err
		}
		master = resp.Peer
		return nil
	})
	return master, err
}
