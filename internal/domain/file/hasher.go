package file

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Fingerprint streams r into w while hashing, so the payload is never held in
// memory and never read twice. Returns the SHA-256 digest as 64 lowercase hex
// characters plus the byte count.
func Fingerprint(r io.Reader, w io.Writer) (string, int64, error) {
	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(w, hasher), r)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrHashComputation, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}
