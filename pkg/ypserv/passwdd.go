package ypserv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/marmos91/goyp/internal/logger"
	"github.com/marmos91/goyp/internal/protocol/portmap"
	"github.com/marmos91/goyp/internal/protocol/rpc"
	"github.com/marmos91/goyp/internal/protocol/yppasswd"
	"github.com/marmos91/goyp/internal/server"
	"github.com/marmos91/goyp/pkg/store"
	"github.com/marmos91/goyp/pkg/yp"
	"golang.org/x/crypto/bcrypt"
)

// PasswdConfig configures the password update daemon.
type PasswdConfig struct {
	Options `mapstructure:",squash"`

	// Domain whose passwd maps are updated. UPDATE carries no domain, so
	// when empty the store must hold exactly one domain.
	Domain string `mapstructure:"domain"`

	// AllowGecos and AllowShell let users change those fields as well as
	// the password.
	AllowGecos bool `mapstructure:"allow_gecos"`
	AllowShell bool `mapstructure:"allow_shell"`

	// AllowEmpty accepts an empty new password, which leaves the account
	// open to anyone.
	AllowEmpty bool `mapstructure:"allow_empty"`
}

// Update results. Anything non-zero is a refusal; clients only see the
// distinction in the server log.
const (
	passwdOK int32 = iota
	passwdRefused
	passwdFailed
)

// errWrongPassword is logged when the old password does not verify.
var errWrongPassword = errors.New("old password does not match")

// PasswdServer is a yppasswdd that rewrites passwd.byname (and
// passwd.byuid when present) in the store after verifying the old
// password against the stored bcrypt hash.
type PasswdServer struct {
	cfg   PasswdConfig
	store store.Store
	srv   *server.Server
	port  int
}

// NewPasswdServer binds the configured address (UDP only).
func NewPasswdServer(cfg PasswdConfig) (*PasswdServer, error) {
	scfg, err := cfg.serverConfig()
	if err != nil {
		return nil, err
	}
	pc, _, err := listen(cfg.Listen, false)
	if err != nil {
		return nil, err
	}

	s := &PasswdServer{cfg: cfg, port: portOf(pc)}
	s.srv = server.New(scfg, pc, nil, &passwdProgram{s})
	return s, nil
}

// SetStore injects the map store.
func (s *PasswdServer) SetStore(st store.Store) {
	s.store = st
}

// Serve handles calls until shutdown.
func (s *PasswdServer) Serve(ctx context.Context) error {
	if s.store == nil {
		return errors.New("yppasswdd: no store configured")
	}
	logger.Info("yppasswdd listening on port %d", s.port)
	return s.srv.Serve(ctx)
}

// Stop initiates graceful shutdown.
func (s *PasswdServer) Stop(ctx context.Context) error {
	return s.srv.Stop(ctx)
}

// Protocol returns "yppasswdd".
func (s *PasswdServer) Protocol() string {
	return "yppasswdd"
}

// Port returns the bound port.
func (s *PasswdServer) Port() int {
	return s.port
}

// Mappings returns the port mapper registration (UDP only).
func (s *PasswdServer) Mappings() []portmap.Mapping {
	return []portmap.Mapping{{Prog: rpc.ProgramYPPasswd, Vers: yppasswd.Version, Prot: rpc.ProtoUDP, Port: uint32(s.port)}}
}

// Update applies one change request and returns the daemon result.
func (s *PasswdServer) Update(ctx context.Context, args *yppasswd.UpdateArgs) int32 {
	domain, err := s.domain(ctx)
	if err != nil {
		logger.Error("yppasswdd: %v", err)
		return passwdFailed
	}

	name := args.NewPw.Name
	line, err := s.store.Get(ctx, domain, yp.PasswdMap, []byte(name))
	if err != nil {
		logger.Warn("yppasswdd: update for %q refused: %v", name, err)
		return passwdRefused
	}
	current, err := yp.ParsePasswd(string(line))
	if err != nil {
		logger.Error("yppasswdd: stored entry for %q: %v", name, err)
		return passwdFailed
	}

	if err := verifyPassword(current.Passwd, args.OldPass); err != nil {
		logger.Warn("yppasswdd: update for %q refused: %v", name, err)
		return passwdRefused
	}

	if args.NewPw.Passwd == "" && !s.cfg.AllowEmpty {
		logger.Warn("yppasswdd: update for %q refused: empty new password", name)
		return passwdRefused
	}

	updated := *current
	updated.Passwd = args.NewPw.Passwd
	if s.cfg.AllowGecos {
		updated.Gecos = args.NewPw.Gecos
	}
	if s.cfg.AllowShell {
		updated.Shell = args.NewPw.Shell
	}
	if err := checkFields(&updated); err != nil {
		logger.Warn("yppasswdd: update for %q refused: %v", name, err)
		return passwdRefused
	}

	value := []byte(updated.String())
	if err := s.store.Put(ctx, domain, yp.PasswdMap, []byte(name), value); err != nil {
		logger.Error("yppasswdd: write %s: %v", yp.PasswdMap, err)
		return passwdFailed
	}

	uid := []byte(strconv.Itoa(updated.UID))
	if _, err := s.store.Get(ctx, domain, "passwd.byuid", uid); err == nil {
		if err := s.store.Put(ctx, domain, "passwd.byuid", uid, value); err != nil {
			logger.Error("yppasswdd: write passwd.byuid: %v", err)
			return passwdFailed
		}
	}

	logger.Info("yppasswdd: password changed for %q in %s", name, domain)
	return passwdOK
}

func (s *PasswdServer) domain(ctx context.Context) (string, error) {
	if s.cfg.Domain != "" {
		return s.cfg.Domain, nil
	}
	domains, err := s.store.Domains(ctx)
	if err != nil {
		return "", err
	}
	if len(domains) != 1 {
		return "", fmt.Errorf("store holds %d domains and none is configured", len(domains))
	}
	return domains[0], nil
}

// verifyPassword checks clear against a stored hash. An empty hash accepts
// anything; locked ("*", "!") and non-bcrypt hashes accept nothing.
func verifyPassword(hash, clear string) error {
	switch {
	case hash == "":
		return nil
	case strings.HasPrefix(hash, "$2"):
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(clear)); err != nil {
			return errWrongPassword
		}
		return nil
	case strings.HasPrefix(hash, "*"), strings.HasPrefix(hash, "!"):
		return errors.New("account is locked")
	default:
		return fmt.Errorf("unsupported password hash format %.3q", hash)
	}
}

// checkFields rejects values that would corrupt the colon-separated entry.
func checkFields(p *yp.Passwd) error {
	for _, f := range []string{p.Passwd, p.Gecos, p.Shell} {
		if strings.ContainsAny(f, ":\n\r") {
			return fmt.Errorf("field %q contains a separator", f)
		}
	}
	return nil
}

type passwdProgram struct {
	s *PasswdServer
}

func (p *passwdProgram) Number() uint32             { return rpc.ProgramYPPasswd }
func (p *passwdProgram) Versions() (uint32, uint32) { return yppasswd.Version, yppasswd.Version }
func (p *passwdProgram) Name() string               { return "yppasswdd" }

func (p *passwdProgram) ProcName(proc uint32) string {
	switch proc {
	case 0:
		return "NULL"
	case yppasswd.ProcUpdate:
		return "UPDATE"
	default:
		return fmt.Sprintf("PROC_%d", proc)
	}
}

func (p *passwdProgram) Handle(ctx context.Context, req *server.Request) ([]byte, string, error) {
	switch req.Call.Procedure {
	case 0:
		return nil, "OK", nil
	case yppasswd.ProcUpdate:
		return server.HandleCall(req.Args, func(a *yppasswd.UpdateArgs) (*int32, error) {
			result := p.s.Update(ctx, a)
			return &result, nil
		})
	default:
		return nil, "", server.ErrProcUnavail
	}
}
