// Package sha256 derives stable hex keys from text.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key hashes parts joined by NUL separators, so ("ab", "c") and ("a", "bc")
// never collide.
func Key(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			_, _ = h.Write([]byte{0})
		}
		_, _ = h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
