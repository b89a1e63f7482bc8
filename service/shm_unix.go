//go:build unix

package service

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapFile maps size bytes of path read-only.
func mapFile(path string, size int) ([]byte, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}

	if fi.Size() < int64(size) {
		return nil, nil, fmt.Errorf("%s holds %d bytes, want %d", path, fi.Size(), size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	// Bisection touches few pages per query.
	_ = unix.Madvise(data, unix.MADV_RANDOM)

	return data, func() error { return unix.Munmap(data) }, nil
}
