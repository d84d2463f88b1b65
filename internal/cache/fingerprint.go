package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Fingerprint derives the cache key for one translation unit. Every
// input that can change the translation participates: the source text,
// the language pair, the model, and a digest of the prompt context.
// Fields are length-prefixed so distinct tuples can never collide by
// concatenation.
func Fingerprint(text, sourceLang, targetLang, model, contextDigest string) string {
	h := sha256.New()
	writeField(h, text)
	writeField(h, sourceLang)
	writeField(h, targetLang)
	writeField(h, model)
	writeField(h, contextDigest)
	return hex.EncodeToString(h.Sum(nil))
}

// ContextDigest condenses the rolling prompt context into a short stable
// token for fingerprinting.
func ContextDigest(context string) string {
	if context == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(context))
	return hex.EncodeToString(sum[:8])
}

func writeField(h hash.Hash, field string) {
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(field)))
	h.Write(size[:])
	h.Write([]byte(field))
}
