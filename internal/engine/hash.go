package engine

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// HashFile computes the BLAKE3 hash of the file at path, returning the hex-encoded digest.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	digest := h.Sum(nil)
	return hex.EncodeToString(digest), nil
}

// hashRange returns the BLAKE3 digest of length bytes of f starting at off.
func hashRange(f *os.File, off, length int64) ([]byte, error) {
	h := blake3.New()
	n, err := io.Copy(h, io.NewSectionReader(f, off, length))
	if err != nil {
		return nil, err
	}
	if n != length {
		return nil, io.ErrUnexpectedEOF
	}
	return h.Sum(nil), nil
}

// sameRange reports whether a and b hold identical bytes in [off, off+length).
func sameRange(a, b *os.File, off, length int64) (bool, error) {
	ha, err := hashRange(a, off, length)
	if err != nil {
		return false, err
	}
	hb, err := hashRange(b, off, length)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ha, hb), nil
}
