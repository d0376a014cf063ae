//go:build !linux && !darwin

package sysinfo

import "runtime"

func kernelDescription() string {
	return runtime.GOOS + " " + runtime.GOARCH
}
