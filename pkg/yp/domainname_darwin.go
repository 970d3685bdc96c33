package yp

import "golang.org/x/sys/unix"

func systemDomain() (string, error) {
	return unix.Sysctl("kern.nisdomainname")
}
