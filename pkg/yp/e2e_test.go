package yp_test

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/goyp/internal/protocol/portmap"
	"github.com/marmos91/goyp/internal/protocol/rpc"
	"github.com/marmos91/goyp/internal/protocol/ypbind"
	rpcserver "github.com/marmos91/goyp/internal/server"
	"github.com/marmos91/goyp/pkg/adapter"
	"github.com/marmos91/goyp/pkg/server"
	"github.com/marmos91/goyp/pkg/store"
	"github.com/marmos91/goyp/pkg/store/memory"
	"github.com/marmos91/goyp/pkg/yp"
	"github.com/marmos91/goyp/pkg/ypserv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	domain    = "example.com"
	aliceLine = "alice:*:1000:1000:Alice:/home/alice:/bin/sh"
)

// stack is a complete set of responders on loopback ephemeral ports.
type stack struct {
	store   store.Store
	ypserv  *ypserv.YPServer
	binder  *ypserv.Binder
	pmap    *ypserv.PortMapper
	pidFile string
}

func (s *stack) server() string {
	return fmt.Sprintf("127.0.0.1:%d", s.ypserv.Port())
}

// config returns a client configuration that discovers through this stack.
func (s *stack) config() yp.Config {
	cfg := yp.Config{
		CallTimeout:   2 * time.Second,
		RetryTimeout:  200 * time.Millisecond,
		BindTimeout:   2 * time.Second,
		PortmapPort:   uint16(s.pmap.Port()),
		YPBindMarkers: []string{s.pidFile},
	}
	cfg.SetPrivilegedBelow(65535)
	return cfg
}

func startStack(t *testing.T, bobHash string) *stack {
	t.Helper()
	ctx := context.Background()

	st := memory.New()
	passwd := strings.Join([]string{
		aliceLine,
		"bob:" + bobHash + ":1001:1001:Bob:/home/bob:/bin/sh",
		"carol:*:1002:1002:Carol:/home/carol:/bin/csh",
	}, "\n")
	_, err := store.Load(ctx, st, domain, "passwd.byname", strings.NewReader(passwd))
	require.NoError(t, err)
	_, err = store.Load(ctx, st, domain, "passwd.byuid", strings.NewReader(passwd))
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, domain, "bin", []byte("k\x00"), []byte("v\x00w")))

	opts := ypserv.Options{Listen: "127.0.0.1:0", ShutdownTimeout: time.Second}

	pmap, err := ypserv.NewPortMapper(ypserv.PortmapConfig{Options: opts})
	require.NoError(t, err)
	ys, err := ypserv.NewYPServer(ypserv.YPConfig{Options: opts, Master: "127.0.0.1"})
	require.NoError(t, err)
	pidFile := filepath.Join(t.TempDir(), "ypbind.pid")
	binder, err := ypserv.NewBinder(ypserv.BinderConfig{Options: opts, PIDFile: pidFile})
	require.NoError(t, err)
	require.NoError(t, binder.Bind(domain, netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), uint16(ys.Port()))))
	passwdd, err := ypserv.NewPasswdServer(ypserv.PasswdConfig{Options: opts})
	require.NoError(t, err)

	srv := server.New(st)
	for _, a := range []adapter.Adapter{pmap, ys, binder, passwdd} {
		require.NoError(t, srv.AddAdapter(a))
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(runCtx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(10 * time.Second):
			t.Error("responders did not stop")
		}
	})

	// Registration happens when Serve starts; wait until the mapper knows
	// about yppasswdd and the binder has written its pid file.
	require.Eventually(t, func() bool {
		port, err := portmap.GetPort(ctx, loopback, uint16(pmap.Port()), rpc.ProgramYPPasswd, 1, rpc.ProtoUDP, 200*time.Millisecond)
		return err == nil && int(port) == passwdd.Port()
	}, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		return fileExists(pidFile)
	}, 5*time.Second, 20*time.Millisecond)

	return &stack{store: st, ypserv: ys, binder: binder, pmap: pmap, pidFile: pidFile}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestEndToEnd(t *testing.T) {
	s := startStack(t, "*")
	ctx := context.Background()

	c, err := yp.Dial(ctx, domain, s.server(), s.config())
	require.NoError(t, err)
	defer c.Close()

	t.Run("MatchReturnsExactValue", func(t *testing.T) {
		v, err := c.Match(ctx, "passwd.byname", []byte("alice"))
		require.NoError(t, err)
		assert.Equal(t, aliceLine, string(v))
		assert.Len(t, v, len(aliceLine))
		assert.Equal(t, yp.Success, c.LastError())
	})

	t.Run("MatchPreservesNUL", func(t *testing.T) {
		v, err := c.Match(ctx, "bin", []byte("k\x00"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v\x00w"), v)
	})

	t.Run("MatchMisses", func(t *testing.T) {
		_, err := c.Match(ctx, "passwd.byname", []byte("mallory"))
		assert.ErrorIs(t, err, yp.NoMatch)
		_, err = c.Match(ctx, "no.such.map", []byte("alice"))
		assert.ErrorIs(t, err, yp.NoMatch)
		assert.Equal(t, yp.NoMatch, c.LastError())
	})

	t.Run("EnumerationEndsAfterLastKey", func(t *testing.T) {
		first, err := c.First(ctx, "passwd.byname")
		require.NoError(t, err)

		keys := []string{string(first.Key)}
		prev := first.Key
		for {
			e, more, err := c.Next(ctx, "passwd.byname", prev)
			require.NoError(t, err)
			if !more {
				assert.Empty(t, e.Key)
				break
			}
			keys = append(keys, string(e.Key))
			prev = e.Key
		}
		assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, keys)
	})

	t.Run("All", func(t *testing.T) {
		var names []string
		for e, err := range c.All(ctx, "passwd.byuid") {
			require.NoError(t, err)
			names = append(names, strings.SplitN(string(e.Value), ":", 2)[0])
		}
		assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, names)
	})

	t.Run("FirstOnUnknownMap", func(t *testing.T) {
		_, err := c.First(ctx, "no.such.map")
		assert.ErrorIs(t, err, yp.NoMap)
	})

	t.Run("NextOnUnknownKeyIsRPCError", func(t *testing.T) {
		_, more, err := c.Next(ctx, "passwd.byname", []byte("mallory"))
		assert.False(t, more)
		assert.ErrorIs(t, err, yp.RPCError)

		var status *yp.StatusError
		require.ErrorAs(t, err, &status)
	})

	t.Run("MapInformation", func(t *testing.T) {
		served, err := c.ServesDomain(ctx)
		require.NoError(t, err)
		assert.True(t, served)

		maps, err := c.Maps(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"bin", "passwd.byname", "passwd.byuid"}, maps)

		order, err := c.Order(ctx, "passwd.byname")
		require.NoError(t, err)
		assert.NotZero(t, order)

		master, err := c.Master(ctx, "passwd.byname")
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", master)
	})

	t.Run("SessionLive", func(t *testing.T) {
		assert.True(t, c.SessionLive())
	})
}

func TestDialEndToEnd(t *testing.T) {
	s := startStack(t, "*")
	ctx := context.Background()

	t.Run("UnknownDomainFailsProbe", func(t *testing.T) {
		c, err := yp.Dial(ctx, "other.example", s.server(), s.config())
		assert.Nil(t, c)
		assert.ErrorIs(t, err, yp.NoDomain)
	})

	t.Run("PortFromPortmapper", func(t *testing.T) {
		c, err := yp.Dial(ctx, domain, "127.0.0.1", s.config())
		require.NoError(t, err)
		defer c.Close()
		assert.Equal(t, uint16(s.ypserv.Port()), c.Endpoint().Port())
	})

	t.Run("DiscoveredThroughYPBind", func(t *testing.T) {
		c, err := yp.Dial(ctx, domain, "", s.config())
		require.NoError(t, err)
		defer c.Close()

		assert.Empty(t, c.Server())
		assert.Equal(t, s.server(), c.Endpoint().String())

		v, err := c.Match(ctx, "passwd.byname", []byte("alice"))
		require.NoError(t, err)
		assert.Equal(t, aliceLine, string(v))
	})

	t.Run("UnboundDomain", func(t *testing.T) {
		_, err := yp.Dial(ctx, "unbound.example", "", s.config())
		assert.ErrorIs(t, err, yp.NoDomain)
	})

	t.Run("UnprivilegedYPBindIsNotTrusted", func(t *testing.T) {
		cfg := s.config()
		cfg.SetPrivilegedBelow(1024)
		_, err := yp.Dial(ctx, domain, "", cfg)
		assert.ErrorIs(t, err, yp.AuthError)
	})

	t.Run("NothingListening", func(t *testing.T) {
		pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
		require.NoError(t, err)
		addr := pc.LocalAddr().String()
		require.NoError(t, pc.Close())

		cfg := s.config()
		cfg.CallTimeout = 500 * time.Millisecond
		c, err := yp.Dial(ctx, domain, addr, cfg)
		assert.Nil(t, c)
		assert.ErrorIs(t, err, yp.RPCError)
	})
}

// startPortmapper runs a lone port mapper so tests control what is
// registered for ypbind.
func startPortmapper(t *testing.T) *ypserv.PortMapper {
	t.Helper()
	pmap, err := ypserv.NewPortMapper(ypserv.PortmapConfig{
		Options: ypserv.Options{Listen: "127.0.0.1:0", ShutdownTimeout: time.Second},
	})
	require.NoError(t, err)

	srv := server.New(memory.New())
	require.NoError(t, srv.AddAdapter(pmap))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		_, err := portmap.Dump(context.Background(), loopback, uint16(pmap.Port()), 200*time.Millisecond)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	return pmap
}

var loopback = netip.MustParseAddr("127.0.0.1")

// refusingProgram answers every call with PROC_UNAVAIL.
type refusingProgram struct{ number uint32 }

func (p refusingProgram) Number() uint32            { return p.number }
func (refusingProgram) Versions() (uint32, uint32)  { return 1, 2 }
func (refusingProgram) Name() string                { return "refusing" }
func (refusingProgram) ProcName(proc uint32) string { return fmt.Sprint(proc) }

func (refusingProgram) Handle(context.Context, *rpcserver.Request) ([]byte, string, error) {
	return nil, "PROC_UNAVAIL", rpcserver.ErrProcUnavail
}

// serveProgram hosts prog on a loopback TCP listener and returns its port.
func serveProgram(t *testing.T, prog rpcserver.Program) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	srv := rpcserver.New(rpcserver.Config{}, nil, ln, prog)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv.TCPPort()
}

// silentListener accepts connections and never answers on them.
func silentListener(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	var conns []net.Conn
	accepted := make(chan struct{})
	go func() {
		defer close(accepted)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, conn)
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		<-accepted
		for _, conn := range conns {
			_ = conn.Close()
		}
	})
	return uint16(ln.Addr().(*net.TCPAddr).Port)
}

func TestDiscoveryFailuresEndToEnd(t *testing.T) {
	pmap := startPortmapper(t)
	ctx := context.Background()

	marker := filepath.Join(t.TempDir(), "ypbind.pid")
	require.NoError(t, os.WriteFile(marker, []byte("1\n"), 0o644))

	config := func() yp.Config {
		cfg := yp.Config{
			CallTimeout:   time.Second,
			RetryTimeout:  100 * time.Millisecond,
			BindTimeout:   200 * time.Millisecond,
			PortmapPort:   uint16(pmap.Port()),
			YPBindMarkers: []string{marker},
		}
		cfg.SetPrivilegedBelow(65535)
		return cfg
	}

	// register points the ypbind program at port for the rest of the subtest.
	register := func(t *testing.T, port uint16) {
		require.True(t, pmap.Register(portmap.Mapping{
			Prog: rpc.ProgramYPBind,
			Vers: ypbind.Version,
			Prot: rpc.ProtoTCP,
			Port: uint32(port),
		}))
		t.Cleanup(func() { pmap.Unregister(rpc.ProgramYPBind, ypbind.Version) })
	}

	tests := []struct {
		name  string
		setup func(t *testing.T, cfg *yp.Config)
		want  yp.ErrorCode
	}{
		{
			name:  "YPBindNotRegistered",
			setup: func(*testing.T, *yp.Config) {},
			want:  yp.BindingUnreachable,
		},
		{
			name: "YPBindProcedureUnavailable",
			setup: func(t *testing.T, _ *yp.Config) {
				register(t, serveProgram(t, refusingProgram{number: rpc.ProgramYPBind}))
			},
			want: yp.BindingUnreachable,
		},
		{
			name: "YPBindProgramUnavailable",
			setup: func(t *testing.T, _ *yp.Config) {
				register(t, serveProgram(t, refusingProgram{number: rpc.ProgramYP}))
			},
			want: yp.BindingUnreachable,
		},
		{
			name: "YPBindNeverReplies",
			setup: func(t *testing.T, _ *yp.Config) {
				register(t, silentListener(t))
			},
			want: yp.Timeout,
		},
		{
			name: "YPBindPortClosed",
			setup: func(t *testing.T, _ *yp.Config) {
				ln, err := net.Listen("tcp4", "127.0.0.1:0")
				require.NoError(t, err)
				port := uint16(ln.Addr().(*net.TCPAddr).Port)
				require.NoError(t, ln.Close())
				register(t, port)
			},
			want: yp.RPCError,
		},
		{
			name: "PortmapperDown",
			setup: func(t *testing.T, cfg *yp.Config) {
				pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
				require.NoError(t, err)
				cfg.PortmapPort = uint16(pc.LocalAddr().(*net.UDPAddr).Port)
				require.NoError(t, pc.Close())
			},
			want: yp.RPCError,
		},
		{
			name: "NoMarkerFile",
			setup: func(_ *testing.T, cfg *yp.Config) {
				cfg.YPBindMarkers = []string{filepath.Join(filepath.Dir(marker), "missing.pid")}
			},
			want: yp.BindingUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config()
			tt.setup(t, &cfg)

			c, err := yp.Dial(ctx, domain, "", cfg)
			assert.Nil(t, c)
			assert.Equal(t, tt.want, yp.CodeOf(err), "err: %v", err)
		})
	}
}

func TestUpdateCredentialEndToEnd(t *testing.T) {
	oldHash, err := yp.HashPassword("old secret")
	require.NoError(t, err)
	s := startStack(t, oldHash)
	ctx := context.Background()

	c, err := yp.Dial(ctx, domain, s.server(), s.config())
	require.NoError(t, err)
	defer c.Close()

	line, err := c.Match(ctx, "passwd.byname", []byte("bob"))
	require.NoError(t, err)
	record, err := yp.ParsePasswd(string(line))
	require.NoError(t, err)

	newHash, err := yp.HashPassword("new secret")
	require.NoError(t, err)
	record.Passwd = newHash

	t.Run("WrongOldPasswordIsAuthError", func(t *testing.T) {
		err := c.UpdateCredential(ctx, "guess", record)
		assert.ErrorIs(t, err, yp.AuthError)

		// The handle survives a refused update.
		_, err = c.Match(ctx, "passwd.byname", []byte("bob"))
		assert.NoError(t, err)
	})

	t.Run("Success", func(t *testing.T) {
		require.NoError(t, c.UpdateCredential(ctx, "old secret", record))

		line, err := c.Match(ctx, "passwd.byname", []byte("bob"))
		require.NoError(t, err)
		assert.Equal(t, record.String(), string(line))

		line, err = c.Match(ctx, "passwd.byuid", []byte("1001"))
		require.NoError(t, err)
		assert.Equal(t, record.String(), string(line))
	})

	t.Run("LockedAccount", func(t *testing.T) {
		line, err := c.Match(ctx, "passwd.byname", []byte("carol"))
		require.NoError(t, err)
		carol, err := yp.ParsePasswd(string(line))
		require.NoError(t, err)

		err = c.UpdateCredential(ctx, "", carol)
		assert.ErrorIs(t, err, yp.AuthError)
	})
}
