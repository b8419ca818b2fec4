package change

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the stable identity of one legislative action. It is a
// pure function of its inputs after case folding and whitespace collapsing,
// so cosmetic republication of the same action re-derives the same ID.
func Fingerprint(identifier, actionDate, actionText string) string {
	h := sha256.New()
	h.Write([]byte(canonical(identifier)))
	h.Write([]byte{0})
	h.Write([]byte(canonical(actionDate)))
	h.Write([]byte{0})
	h.Write([]byte(canonical(actionText)))
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash fingerprints just the action text, for detecting corrected or
// amended entries under the same identity.
func ContentHash(actionText string) string {
	sum := sha256.Sum256([]byte(canonical(actionText)))
	return hex.EncodeToString(sum[:])
}

func canonical(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
