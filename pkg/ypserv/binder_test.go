package ypserv

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/goyp/internal/protocol/rpc"
	"github.com/marmos91/goyp/internal/protocol/ypbind"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBinder(t *testing.T) {
	t.Run("LoadsBindings", func(t *testing.T) {
		b, err := NewBinder(BinderConfig{
			Options:  testOptions,
			Bindings: map[string]string{"b.example": "10.0.0.2:834", "a.example": "10.0.0.1:834"},
		})
		require.NoError(t, err)
		defer func() { _ = b.Stop(context.Background()) }()

		assert.Equal(t, []string{"a.example", "b.example"}, b.Domains())
		ap, ok := b.lookup("a.example")
		require.True(t, ok)
		assert.Equal(t, netip.MustParseAddrPort("10.0.0.1:834"), ap)
	})

	t.Run("RejectsBadAddress", func(t *testing.T) {
		_, err := NewBinder(BinderConfig{Options: testOptions, Bindings: map[string]string{"a": "nowhere"}})
		assert.Error(t, err)
	})

	t.Run("RejectsIPv6", func(t *testing.T) {
		_, err := NewBinder(BinderConfig{Options: testOptions, Bindings: map[string]string{"a": "[::1]:834"}})
		assert.ErrorContains(t, err, "not IPv4")
	})
}

func TestBinderProtocol(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "ypbind.pid")
	b, err := NewBinder(BinderConfig{Options: testOptions, PIDFile: pidFile})
	require.NoError(t, err)
	require.NoError(t, b.Bind(testDomain, netip.MustParseAddrPort("192.0.2.7:700")))
	run(t, b)

	require.Eventually(t, func() bool {
		_, err := os.Stat(pidFile)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	t.Run("PIDFile", func(t *testing.T) {
		data, err := os.ReadFile(pidFile)
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))
	})

	ctx := context.Background()
	c, err := rpc.DialTCP(ctx, netip.AddrPortFrom(loopback, uint16(b.Port())), rpc.ProgramYPBind, ypbind.Version, time.Second)
	require.NoError(t, err)
	defer c.Close()

	t.Run("BoundDomain", func(t *testing.T) {
		var resp ypbind.Response
		require.NoError(t, c.Call(ctx, ypbind.ProcDomain, &ypbind.DomainArgs{Domain: testDomain}, &resp))
		assert.Equal(t, uint32(ypbind.StatusSucc), uint32(resp.Status))
		assert.Equal(t, netip.MustParseAddrPort("192.0.2.7:700"), resp.Server)
	})

	t.Run("UnboundDomain", func(t *testing.T) {
		b.Unbind("gone.example")
		var resp ypbind.Response
		require.NoError(t, c.Call(ctx, ypbind.ProcDomain, &ypbind.DomainArgs{Domain: "gone.example"}, &resp))
		assert.Equal(t, uint32(ypbind.StatusFail), uint32(resp.Status))
		assert.Equal(t, uint32(ypbind.ErrNoServ), uint32(resp.Error))
	})

	t.Run("SetDomainRefused", func(t *testing.T) {
		err := c.Call(ctx, ypbind.ProcSetDomain, nil, nil)
		assert.Equal(t, rpc.StatProcUnavail, rpc.StatOf(err))
	})
}
