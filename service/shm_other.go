//go:build !unix

package service

import (
	"fmt"
	"os"
)

// mapFile reads the file into memory on platforms without mmap support.
func mapFile(path string, size int) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	if len(data) < size {
		return nil, nil, fmt.Errorf("%s holds %d bytes, want %d", path, len(data), size)
	}

	return data[:size], func() error { return nil }, nil
}
