//go:build freebsd || netbsd || openbsd || dragonfly

package yp

import "golang.org/x/sys/unix"

func systemDomain() (string, error) {
	return unix.Sysctl("kern.domainname")
}
