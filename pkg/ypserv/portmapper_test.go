package ypserv

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/goyp/internal/protocol/portmap"
	"github.com/marmos91/goyp/internal/protocol/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortMapperTable(t *testing.T) {
	p, err := NewPortMapper(PortmapConfig{Options: testOptions})
	require.NoError(t, err)
	defer func() { _ = p.Stop(context.Background()) }()

	t.Run("RegistersItself", func(t *testing.T) {
		assert.Equal(t, uint32(p.Port()), p.Lookup(rpc.ProgramPortmap, portmap.Version, rpc.ProtoUDP))
		assert.Equal(t, uint32(p.Port()), p.Lookup(rpc.ProgramPortmap, portmap.Version, rpc.ProtoTCP))
	})

	t.Run("RejectsDuplicates", func(t *testing.T) {
		m := portmap.Mapping{Prog: 300000, Vers: 1, Prot: rpc.ProtoUDP, Port: 4000}
		assert.True(t, p.Register(m))
		m.Port = 4001
		assert.False(t, p.Register(m))
		assert.Equal(t, uint32(4000), p.Lookup(300000, 1, rpc.ProtoUDP))
	})

	t.Run("UnregisterRemovesAllProtocols", func(t *testing.T) {
		assert.True(t, p.Register(portmap.Mapping{Prog: 300001, Vers: 1, Prot: rpc.ProtoUDP, Port: 5000}))
		assert.True(t, p.Register(portmap.Mapping{Prog: 300001, Vers: 1, Prot: rpc.ProtoTCP, Port: 5000}))

		assert.True(t, p.Unregister(300001, 1))
		assert.Zero(t, p.Lookup(300001, 1, rpc.ProtoUDP))
		assert.Zero(t, p.Lookup(300001, 1, rpc.ProtoTCP))
		assert.False(t, p.Unregister(300001, 1))
	})

	t.Run("TableIsACopy", func(t *testing.T) {
		table := p.Table()
		table[0].Port = 1
		assert.NotEqual(t, uint32(1), p.Table()[0].Port)
	})
}

func TestPortMapperProtocol(t *testing.T) {
	p, err := NewPortMapper(PortmapConfig{Options: testOptions})
	require.NoError(t, err)
	run(t, p)

	ctx := context.Background()
	pmapPort := uint16(p.Port())
	m := portmap.Mapping{Prog: 300002, Vers: 2, Prot: rpc.ProtoTCP, Port: 6000}

	t.Run("GetPortUnregistered", func(t *testing.T) {
		_, err := portmap.GetPort(ctx, loopback, pmapPort, m.Prog, m.Vers, m.Prot, time.Second)
		assert.ErrorIs(t, err, portmap.ErrNotRegistered)
		assert.Equal(t, rpc.StatProgNotRegistered, rpc.StatOf(err))
	})

	t.Run("SetFromLoopback", func(t *testing.T) {
		ok, err := portmap.Set(ctx, loopback, pmapPort, m, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = portmap.Set(ctx, loopback, pmapPort, m, time.Second)
		require.NoError(t, err)
		assert.False(t, ok)

		port, err := portmap.GetPort(ctx, loopback, pmapPort, m.Prog, m.Vers, m.Prot, time.Second)
		require.NoError(t, err)
		assert.Equal(t, uint16(6000), port)
	})

	t.Run("Dump", func(t *testing.T) {
		list, err := portmap.Dump(ctx, loopback, pmapPort, time.Second)
		require.NoError(t, err)
		assert.Contains(t, list, m)
		assert.Contains(t, list, portmap.Mapping{Prog: rpc.ProgramPortmap, Vers: portmap.Version, Prot: rpc.ProtoUDP, Port: uint32(p.Port())})
	})

	t.Run("Unset", func(t *testing.T) {
		ok, err := portmap.Unset(ctx, loopback, pmapPort, m, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = portmap.GetPort(ctx, loopback, pmapPort, m.Prog, m.Vers, m.Prot, time.Second)
		assert.ErrorIs(t, err, portmap.ErrNotRegistered)
	})
}
