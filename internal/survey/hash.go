package survey

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/zeebo/xxh3"
)

// Fingerprint is the 256-bit content identity of a canonicalized submission.
// Two submissions with the same normalized entries and endpoints produce the
// same Fingerprint regardless of incidental formatting in the source text.
// Collisions are treated as cryptographically negligible, not handled.
type Fingerprint [32]byte

// ZeroFingerprint is the zero-value Fingerprint.
var ZeroFingerprint Fingerprint

// Hex returns the lowercase hex encoding of the fingerprint.
func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f[:])
}

// String implements fmt.Stringer.
func (f Fingerprint) String() string {
	return f.Hex()
}

// IsZero reports whether f is the zero fingerprint.
func (f Fingerprint) IsZero() bool {
	return f == ZeroFingerprint
}

// ParseFingerprintHex decodes a 64-character hex string into a Fingerprint.
func ParseFingerprintHex(s string) (Fingerprint, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ZeroFingerprint, fmt.Errorf("survey.ParseFingerprintHex: %w", err)
	}
	if len(b) != 32 {
		return ZeroFingerprint, fmt.Errorf("survey.ParseFingerprintHex: expected 32 bytes, got %d", len(b))
	}
	var f Fingerprint
	copy(f[:], b)
	return f, nil
}

// Signature is a 128-bit path-shape identity: xxh3 over the site sequence
// only, ignoring strand aliases, endpoints and attenuation. Two routes share
// a Signature iff they traverse the same splice-site sequence. It is an
// internal index key, not a durable content identity, so a fast
// non-cryptographic hash is sufficient.
type Signature [16]byte

// ZeroSignature is the zero-value Signature.
var ZeroSignature Signature

// Hex returns the lowercase hex encoding of the signature.
func (s Signature) Hex() string {
	return hex.EncodeToString(s[:])
}

// String implements fmt.Stringer.
func (s Signature) String() string {
	return s.Hex()
}

// IsZero reports whether s is the zero signature.
func (s Signature) IsZero() bool {
	return s == ZeroSignature
}

// Fingerprint computes the submission's content fingerprint: sha256 over a
// length-prefixed serialization of every normalized entry (site, strand
// alias, transit) followed by the endpoint markers. Attenuation and external
// refs are volatile measurement metadata and do not affect physical identity.
func (n Normalized) Fingerprint() Fingerprint {
	h := sha256.New()
	for _, e := range n.Entries {
		writeLenPrefixed(h, e.Site)
		writeLenPrefixed(h, e.StrandAlias)
		if e.Transit {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
	writeLenPrefixed(h, n.EndpointA.Site)
	writeLenPrefixed(h, n.EndpointA.Connector)
	writeLenPrefixed(h, n.EndpointB.Site)
	writeLenPrefixed(h, n.EndpointB.Connector)

	var f Fingerprint
	h.Sum(f[:0])
	return f
}

// PathSignature computes the strand-insensitive path signature over the site
// sequence. Consecutive duplicate sites (multiple strands surveyed through
// the same camera back to back) collapse to one step so that a multi-strand
// submission signs identically to its single-strand shape.
func (n Normalized) PathSignature() Signature {
	d := xxh3.New()
	prev := ""
	for _, e := range n.Entries {
		if e.Site == prev {
			continue
		}
		prev = e.Site
		writeLenPrefixed(d, e.Site)
	}
	h128 := d.Sum128()

	var s Signature
	binary.LittleEndian.PutUint64(s[:8], h128.Lo)
	binary.LittleEndian.PutUint64(s[8:], h128.Hi)
	return s
}

// writeLenPrefixed writes len(s) as a little-endian uint32 followed by s,
// keeping the serialization unambiguous under concatenation.
func writeLenPrefixed(w hash.Hash, s string) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(len(s)))
	w.Write(buf[:])
	io.WriteString(w, s)
}
