//go:build darwin

package sysinfo

import "golang.org/x/sys/unix"

func platformDistro() string {
	version, err := unix.Sysctl("kern.osproductversion")
	if err != nil || version == "" {
		return ""
	}
	return "macOS " + version
}
