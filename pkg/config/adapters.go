package config

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/marmos91/goyp/pkg/adapter"
	"github.com/marmos91/goyp/pkg/metrics"
	"github.com/marmos91/goyp/pkg/ypserv"
	"github.com/mitchellh/mapstructure"
)

// CreateAdapters creates all enabled responders from the configuration.
//
// Responders bind their sockets here, so a port conflict is reported before
// anything is served. On error every responder created so far is stopped.
//
// When ypbind has no explicit bindings and ypserv is enabled, the served
// domain is bound to the local ypserv.
func CreateAdapters(cfg *Config, serverMetrics metrics.ServerMetrics) ([]adapter.Adapter, error) {
	srv := &cfg.Server
	var adapters []adapter.Adapter

	fail := func(err error) ([]adapter.Adapter, error) {
		for _, a := range adapters {
			_ = a.Stop(context.Background())
		}
		return nil, err
	}

	if srv.Portmap.Enabled {
		opts, err := options(srv, &srv.Portmap, serverMetrics)
		if err != nil {
			return fail(fmt.Errorf("portmap: %w", err))
		}
		p, err := ypserv.NewPortMapper(ypserv.PortmapConfig{Options: opts})
		if err != nil {
			return fail(fmt.Errorf("portmap: %w", err))
		}
		adapters = append(adapters, p)
	}

	var ys *ypserv.YPServer
	if srv.YPServ.Enabled {
		opts, err := options(srv, &srv.YPServ.ResponderConfig, serverMetrics)
		if err != nil {
			return fail(fmt.Errorf("ypserv: %w", err))
		}
		ys, err = ypserv.NewYPServer(ypserv.YPConfig{
			Options: opts,
			Master:  srv.YPServ.Master,
		})
		if err != nil {
			return fail(fmt.Errorf("ypserv: %w", err))
		}
		adapters = append(adapters, ys)
	}

	if srv.YPBind.Enabled {
		opts, err := options(srv, &srv.YPBind.ResponderConfig, serverMetrics)
		if err != nil {
			return fail(fmt.Errorf("ypbind: %w", err))
		}
		b, err := ypserv.NewBinder(ypserv.BinderConfig{
			Options:  opts,
			PIDFile:  srv.YPBind.PIDFile,
			Bindings: srv.YPBind.Bindings,
		})
		if err != nil {
			return fail(fmt.Errorf("ypbind: %w", err))
		}
		adapters = append(adapters, b)

		if len(srv.YPBind.Bindings) == 0 && ys != nil {
			local := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), uint16(ys.Port()))
			if err := b.Bind(srv.Domain, local); err != nil {
				return fail(fmt.Errorf("ypbind: %w", err))
			}
		}
	}

	if srv.YPPasswd.Enabled {
		opts, err := options(srv, &srv.YPPasswd.ResponderConfig, serverMetrics)
		if err != nil {
			return fail(fmt.Errorf("yppasswdd: %w", err))
		}
		p, err := ypserv.NewPasswdServer(ypserv.PasswdConfig{
			Options:    opts,
			Domain:     srv.Domain,
			AllowGecos: srv.YPPasswd.AllowGecos,
			AllowShell: srv.YPPasswd.AllowShell,
			AllowEmpty: srv.YPPasswd.AllowEmpty,
		})
		if err != nil {
			return fail(fmt.Errorf("yppasswdd: %w", err))
		}
		adapters = append(adapters, p)
	}

	if len(adapters) == 0 {
		return nil, errors.New("no responders enabled in configuration")
	}

	return adapters, nil
}

// options decodes the settings shared by every responder into
// ypserv.Options; the two structs use the same mapstructure keys.
func options(srv *ServerConfig, r *ResponderConfig, m metrics.ServerMetrics) (ypserv.Options, error) {
	var opts ypserv.Options
	if err := mapstructure.Decode(*r, &opts); err != nil {
		return opts, fmt.Errorf("decode responder options: %w", err)
	}
	opts.ShutdownTimeout = srv.ShutdownTimeout
	opts.Metrics = m
	return opts, nil
}
