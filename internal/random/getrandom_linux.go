//go:build linux

package random

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

type getrandomSource struct{}

func kernelSource() Source { return getrandomSource{} }

func (getrandomSource) Name() string { return "getrandom" }

// GRND_NONBLOCK keeps an unseeded pool at boot from stalling callers.
func (getrandomSource) Uint32() (uint32, bool) {
	var buf [4]byte
	n, err := unix.Getrandom(buf[:], unix.GRND_NONBLOCK)
	if err != nil || n != len(buf) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(buf[:]), true
}
