package yp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/goyp/internal/logger"
	"github.com/marmos91/goyp/internal/protocol/portmap"
	"github.com/marmos91/goyp/internal/protocol/rpc"
	ypproto "github.com/marmos91/goyp/internal/protocol/yp"
	"github.com/marmos91/goyp/internal/protocol/yppasswd"
	"golang.org/x/crypto/bcrypt"
)

// PasswdMap is the map credential updates are made against.
const PasswdMap = "passwd.byname"

// Passwd is one passwd.byname entry.
type Passwd struct {
	Name   string
	Passwd string
	UID    int
	GID    int
	Gecos  string
	Dir    string
	Shell  string
}

// ParsePasswd parses a "name:passwd:uid:gid:gecos:dir:shell" line.
func ParsePasswd(line string) (*Passwd, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), ":")
	if len(fields) != 7 {
		return nil, fmt.Errorf("passwd entry has %d fields, want 7", len(fields))
	}
	if fields[0] == "" {
		return nil, errors.New("passwd entry has an empty name")
	}

	// The wire carries ids as 32-bit signed integers.
	uid, err := strconv.ParseInt(fields[2], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid uid %q: %w", fields[2], err)
	}
	gid, err := strconv.ParseInt(fields[3], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid gid %q: %w", fields[3], err)
	}

	return &Passwd{
		Name:   fields[0],
		Passwd: fields[1],
		UID:    int(uid),
		GID:    int(gid),
		Gecos:  fields[4],
		Dir:    fields[5],
		Shell:  fields[6],
	}, nil
}

// String formats the entry as a passwd.byname value.
func (p *Passwd) String() string {
	return strings.Join([]string{
		p.Name, p.Passwd, strconv.Itoa(p.UID), strconv.Itoa(p.GID), p.Gecos, p.Dir, p.Shell,
	}, ":")
}

// checkIDs reports an id that yppasswdd could not represent.
func (p *Passwd) checkIDs() error {
	for _, id := range []struct {
		name  string
		value int
	}{{"uid", p.UID}, {"gid", p.GID}} {
		if id.value < math.MinInt32 || id.value > math.MaxInt32 {
			return fmt.Errorf("%s %d out of range", id.name, id.value)
		}
	}
	return nil
}

// HashPassword returns the bcrypt hash to put in Passwd.Passwd when
// changing a password.
func HashPassword(clear string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(clear), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// PasswdFactory builds the collaborator that carries a credential update to
// the password daemon.
type PasswdFactory interface {
	// New prepares an updater for map in domain, starting from server, a
	// numeric IPv4 address.
	New(domain, mapName, server string) (PasswdUpdater, error)
}

// PasswdUpdater is one credential update session.
type PasswdUpdater interface {
	Connect(ctx context.Context) error
	Submit(ctx context.Context, record *Passwd, oldPassword string) error
	Close() error
}

// UpdateCredential replaces the caller's passwd entry. oldPassword is the
// clear-text current password; record.Passwd must already be encrypted.
//
// Errors: BadArgument when the server address cannot be rendered as IPv4,
// SystemError when the updater cannot be built, ConnectionError when the
// password daemon cannot be reached, AuthError when the update is refused.
// A failure leaves the Client usable.
func (c *Client) UpdateCredential(ctx context.Context, oldPassword string, record *Passwd) error {
	return c.do("passwd", func(Transport) error {
		if record == nil {
			return newError("passwd", BadArgument, errors.New("record is nil"))
		}
		if err := record.checkIDs(); err != nil {
			return newError("passwd", BadArgument, err)
		}

		addr := c.endpoint.Addr()
		if !addr.Is4() {
			return newError("passwd", BadArgument, fmt.Errorf("%s: %w", addr, errNotIPv4))
		}

		updater, err := c.cfg.Passwd.New(c.domain, PasswdMap, addr.String())
		if err != nil {
			return newError("passwd", SystemError, err)
		}
		defer func() { _ = updater.Close() }()

		if err := updater.Connect(ctx); err != nil {
			return newError("passwd", ConnectionError, err)
		}
		if err := updater.Submit(ctx, record, oldPassword); err != nil {
			return newError("passwd", AuthError, err)
		}

		logger.Info("yp: updated %s entry for %s", PasswdMap, record.Name)
		return nil
	})
}

// YPPasswdFactory builds updaters that talk to rpc.yppasswdd on the master
// server of the map, found by asking the bound server.
type YPPasswdFactory struct {
	// PortmapPort is the portmapper port on the servers. Zero means 111.
	PortmapPort uint16

	// Timeout bounds each call.
	Timeout time.Duration

	// Resolver resolves the master's host name. Nil means net.DefaultResolver.
	Resolver *net.Resolver
}

// New validates server and returns an unconnected updater.
func (f *YPPasswdFactory) New(domain, mapName, server string) (PasswdUpdater, error) {
	addr, err := netip.ParseAddr(server)
	if err != nil {
		return nil, fmt.Errorf("parse server address: %w", err)
	}
	resolver := f.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &ypPasswdUpdater{
		factory:  f,
		resolver: resolver,
		domain:   domain,
		mapName:  mapName,
		server:   addr,
	}, nil
}

type ypPasswdUpdater struct {
	factory  *YPPasswdFactory
	resolver *net.Resolver
	domain   string
	mapName  string
	server   netip.Addr

	client *yppasswd.Client
}

// Connect locates the map's master and opens a yppasswdd client to it. When
// the master cannot be determined the bound server itself is used.
func (u *ypPasswdUpdater) Connect(ctx context.Context) error {
	master := u.locateMaster(ctx)

	client, err := yppasswd.Dial(ctx, netip.AddrPortFrom(master, 0), u.factory.PortmapPort, u.factory.Timeout)
	if err != nil {
		return fmt.Errorf("connect to yppasswdd on %s: %w", master, err)
	}
	u.client = client
	return nil
}

func (u *ypPasswdUpdater) locateMaster(ctx context.Context) netip.Addr {
	port, err := portmap.GetPort(ctx, u.server, u.factory.PortmapPort, rpc.ProgramYP, ypproto.Version, rpc.ProtoUDP, u.factory.Timeout)
	if err != nil {
		return u.server
	}

	t, err := rpc.DialUDP(ctx, netip.AddrPortFrom(u.server, port), rpc.ProgramYP, ypproto.Version,
		rpc.UDPConfig{CallTimeout: u.factory.Timeout})
	if err != nil {
		return u.server
	}
	defer t.Close()

	var resp ypproto.RespMaster
	if err := t.Call(ctx, ypproto.ProcMaster, &ypproto.ReqNoKey{Domain: u.domain, Map: u.mapName}, &resp); err != nil || resp.Stat != ypproto.StatusTrue {
		return u.server
	}

	if addr, err := netip.ParseAddr(resp.Peer); err == nil && addr.Unmap().Is4() {
		return addr.Unmap()
	}
	addrs, err := u.resolver.LookupNetIP(ctx, "ip4", resp.Peer)
	if err != nil || len(addrs) == 0 {
		logger.Debug("yp: cannot resolve master %q, using %s", resp.Peer, u.server)
		return u.server
	}
	return addrs[0].Unmap()
}

func (u *ypPasswdUpdater) Submit(ctx context.Context, record *Passwd, oldPassword string) error {
	if u.client == nil {
		return errors.New("not connected")
	}
	if err := record.checkIDs(); err != nil {
		return err
	}
	return u.client.Update(ctx, &yppasswd.UpdateArgs{
		OldPass: oldPassword,
		NewPw: yppasswd.XPasswd{
			Name:   record.Name,
			Passwd: record.Passwd,
			UID:    int32(record.UID),
			GID:    int32(record.GID),
			Gecos:  record.Gecos,
			Dir:    record.Dir,
			Shell:  record.Shell,
		},
	})
}

func (u *ypPasswdUpdater) Close() error {
	if u.client == nil {
		return nil
	}
	err := u.client.Close()
	u.client = nil
	return err
}
