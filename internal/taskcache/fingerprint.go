package taskcache

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Fingerprint hashes the kind followed by the serialized input and returns
// the 256-bit digest as lowercase hex.
func Fingerprint(kind Kind, serialized string) string {
	h := blake3.New(32, nil)
	h.Write([]byte(kind))
	h.Write([]byte(serialized))
	return hex.EncodeToString(h.Sum(nil))
}

// fingerprints returns the comparison hash and the marker address hash for a
// description. Without an identity both are the same value.
func fingerprints(d Description) (hash, markerHash string) {
	hash = Fingerprint(d.Kind, d.HashInput)
	if d.Identity == "" {
		return hash, hash
	}
	return hash, Fingerprint(d.Kind, d.Identity)
}
