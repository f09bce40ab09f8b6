package capture

import (
	"crypto/sha256"
	"encoding/hex"
)

// truncateBytes caps in at maxBytes and reports the original size and a
// digest of the full input when it was cut.
func truncateBytes(in []byte, maxBytes int) ([]byte, bool, int, string) {
	if maxBytes <= 0 || len(in) <= maxBytes {
		return in, false, len(in), ""
	}
	sum := sha256.Sum256(in)
	return in[:maxBytes], true, len(in), hex.EncodeToString(sum[:])
}

// previewText returns a log-safe preview of captured text. Cuts land on
// byte boundaries.
func previewText(in string, maxBytes int) (string, bool, int, string) {
	out, truncated, origLen, hash := truncateBytes([]byte(in), maxBytes)
	return string(out), truncated, origLen, hash
}
