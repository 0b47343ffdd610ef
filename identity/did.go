package identity

import (
	"crypto/ed25519"
	"math/big"
)

// did:key encoding constants. The multicodec prefix 0xED 0x01 marks an
// ed25519 public key; "z" is the multibase marker for base58btc.
const didKeyPrefix = "did:key:z"

var ed25519Multicodec = []byte{0xed, 0x01}

// DIDFromPublicKey derives the decentralized identifier for an ed25519
// public key: did:key:z + base58btc(multicodec-prefix || key).
// The DID is a pure function of the key, so any party holding the public
// key can recompute and check it.
func DIDFromPublicKey(pub ed25519.PublicKey) string {
	payload := make([]byte, 0, len(ed25519Multicodec)+len(pub))
	payload = append(payload, ed25519Multicodec...)
	payload = append(payload, pub...)
	return didKeyPrefix + base58Encode(payload)
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// base58Encode encodes bytes in Bitcoin-style base58, preserving leading
// zero bytes as leading '1' characters.
func base58Encode(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	num := new(big.Int).SetBytes(data)
	radix := big.NewInt(58)
	rem := new(big.Int)

	var out []byte
	for num.Sign() > 0 {
		num.DivMod(num, radix, rem)
		out = append(out, base58Alphabet[rem.Int64()])
	}

	// Preserve leading zeros.
	for _, b := range data {
		if b != 0 {
			break
		}
		out = append(out, base58Alphabet[0])
	}

	// Digits were produced least-significant first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
