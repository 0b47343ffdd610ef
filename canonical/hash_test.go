package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestDomainSeparation(t *testing.T) {
	payload := []byte("same payload")
	domains := []string{DomainBlob, DomainEvent, DomainHead, DomainManifest}

	seen := make(map[string]string, len(domains))
	for _, domain := range domains {
		d := string(Digest(domain, payload))
		prev, dup := seen[d]
		require.False(t, dup, "domains %q and %q collided", prev, domain)
		seen[d] = domain
	}
}

func TestDigestDeterministic(t *testing.T) {
	a := Digest(DomainEvent, []byte("x"))
	b := Digest(DomainEvent, []byte("x"))
	assert.Equal(t, a, b)

	c := Digest(DomainEvent, []byte("y"))
	assert.NotEqual(t, a, c)
}

func TestDigestHexLength(t *testing.T) {
	hex := DigestHex(DomainBlob, []byte("hello"))
	assert.Len(t, hex, 64)
	assert.Equal(t, "3ad04cc8ebebd0a4b0ae417826783fba7b8d09e0f89c41ca4f7e65e98f056122", hex)
}

func TestPrefixIncludesSeparator(t *testing.T) {
	p := Prefix(DomainManifest)
	require.NotEmpty(t, p)
	assert.Equal(t, byte(0), p[len(p)-1])
	assert.Equal(t, DomainManifest, string(p[:len(p)-1]))
}

func TestHexRoundTrip(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef}
	hex := EncodeHex(raw)
	assert.Equal(t, "deadbeef", hex)

	back, err := DecodeHex(hex)
	require.NoError(t, err)
	assert.Equal(t, raw, back)

	_, err = DecodeHex("not hex")
	assert.Error(t, err)
}

func TestDigestEmptyPayload(t *testing.T) {
	// Genesis head: the head domain over an empty payload.
	hex := DigestHex(DomainHead, nil)
	assert.Equal(t, "9cc0b42fd25276885f16188ea49d3c6359d3a489916004f0b8a0d00bc4ecd9d5", hex)
}
