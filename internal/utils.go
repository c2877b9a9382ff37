package internal

import (
	"crypto/rand"
	"io"
	"runtime"
)

// SecureZero clears key material in place.
func SecureZero(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}

// RandomBytes returns n bytes read from r. A nil r reads crypto/rand.
func RandomBytes(r io.Reader, n int) ([]byte, error) {
	if r == nil {
		r = rand.Reader
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateKeySize reports whether key is exactly size bytes long.
func ValidateKeySize(key []byte, size int) bool {
	return len(key) == size
}
