package yp

import "golang.org/x/sys/unix"

func systemDomain() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(uts.Domainname[:]), nil
}
