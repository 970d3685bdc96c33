package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults; validation accepts
// both cases.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	srv := &cfg.Server

	responders := []struct {
		name string
		cfg  *ResponderConfig
	}{
		{"server.portmap", &srv.Portmap},
		{"server.ypserv", &srv.YPServ.ResponderConfig},
		{"server.ypbind", &srv.YPBind.ResponderConfig},
		{"server.yppasswdd", &srv.YPPasswd.ResponderConfig},
	}

	ports := make(map[string]string)
	for _, r := range responders {
		if !r.cfg.Enabled {
			continue
		}
		port, err := listenPort(r.cfg.Listen)
		if err != nil {
			return fmt.Errorf("%s.listen: %w", r.name, err)
		}
		if port == "0" {
			continue
		}
		if other, ok := ports[port]; ok {
			return fmt.Errorf("%s.listen: port %s already used by %s", r.name, port, other)
		}
		ports[port] = r.name
	}

	if srv.Store.Type == "badger" && !srv.Store.Badger.InMemory && srv.Store.Badger.DBPath == "" {
		return errors.New("server.store.badger: db_path is required")
	}

	for domain, addr := range srv.YPBind.Bindings {
		ap, err := netip.ParseAddrPort(addr)
		if err != nil {
			return fmt.Errorf("server.ypbind.bindings[%s]: %w", domain, err)
		}
		if !ap.Addr().Unmap().Is4() {
			return fmt.Errorf("server.ypbind.bindings[%s]: %s is not IPv4", domain, addr)
		}
	}

	for name := range srv.Maps.Files {
		if name == "" {
			return errors.New("server.maps.files: empty map name")
		}
	}

	return nil
}

// listenPort checks a host:port listen address and returns the port.
func listenPort(addr string) (string, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return "", fmt.Errorf("invalid port %q", port)
	}
	return strconv.FormatUint(n, 10), nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
