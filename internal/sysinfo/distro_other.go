//go:build !darwin

package sysinfo

// Linux distributions are read from os-release.
func platformDistro() string { return "" }
