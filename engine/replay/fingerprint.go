package replay

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"github.com/jason-s-yu/keepbreathing/engine"
)

// Fingerprint returns the hex blake2b-256 digest of g's canonical encoding.
// UI metadata is excluded, so observers that folded the same log agree.
func Fingerprint(g engine.GameState) (string, error) {
	b, err := g.MarshalCanonical()
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
