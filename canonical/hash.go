package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainBlob     = "continuum/blob/v1"
	DomainEvent    = "continuum/event/v1"
	DomainHead     = "continuum/head/v1"
	DomainManifest = "continuum/manifest/v1"
)

// Digest computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func Digest(domain string, data []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00}) // Null separator - CRITICAL for security
	h.Write(data)
	return h.Sum(nil)
}

// DigestHex is Digest with the result hex-encoded (64 lowercase characters).
func DigestHex(domain string, data []byte) string {
	return hex.EncodeToString(Digest(domain, data))
}

// Prefix returns the signing/hashing preamble for a domain: the domain
// string followed by the null separator. Used when a full message (rather
// than a digest) must carry domain separation, e.g. manifest signing bytes.
func Prefix(domain string) []byte {
	p := make([]byte, 0, len(domain)+1)
	p = append(p, domain...)
	return append(p, 0x00)
}

// EncodeHex hex-encodes bytes (lowercase).
func EncodeHex(data []byte) string {
	return hex.EncodeToString(data)
}

// DecodeHex decodes a lowercase or uppercase hex string.
func DecodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return b, nil
}
