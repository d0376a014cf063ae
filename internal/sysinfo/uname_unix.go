//go:build linux || darwin

package sysinfo

import (
	"runtime"
	"strings"

	"golang.org/x/sys/unix"
)

func kernelDescription() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return runtime.GOOS + " " + runtime.GOARCH
	}
	parts := []string{
		unix.ByteSliceToString(u.Sysname[:]),
		unix.ByteSliceToString(u.Release[:]),
		unix.ByteSliceToString(u.Machine[:]),
	}
	return strings.Join(parts, " ")
}
