//go:build !linux

package random

func kernelSource() Source { return nil }
