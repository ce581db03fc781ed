//go:build !windows

package spool

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Capacity reports the total size in bytes of the filesystem holding path.
func Capacity(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	size := uint64(st.Bsize) * uint64(st.Blocks)
	if size == 0 {
		return 0, errors.New("statfs reported an empty filesystem")
	}
	return size, nil
}
