//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package yp

import "errors"

func systemDomain() (string, error) {
	return "", errors.New("system domain name is not available on this platform")
}
