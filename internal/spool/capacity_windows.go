//go:build windows

package spool

import (
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// Capacity reports the total size in bytes of the volume holding path.
func Capacity(path string) (uint64, error) {
	clean := filepath.Clean(path)
	if clean == "" || clean == "." {
		return 0, errors.New("empty spool path")
	}
	ptr, err := windows.UTF16PtrFromString(clean)
	if err != nil {
		return 0, err
	}
	var free, total, freeTotal uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &free, &total, &freeTotal); err != nil {
		return 0, fmt.Errorf("GetDiskFreeSpaceEx %s: %w", clean, err)
	}
	if total == 0 {
		return 0, errors.New("volume reported zero size")
	}
	return total, nil
}
