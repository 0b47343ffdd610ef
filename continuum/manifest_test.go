package continuum

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpochIDFormat(t *testing.T) {
	assert.Equal(t, "epoch-0", EpochID(0))
	assert.Equal(t, "epoch-1755000000000", EpochID(1755000000000))
}

func TestSigningBytesGolden(t *testing.T) {
	message, err := SigningBytes(EpochManifest{
		EpochID:  "epoch-1000",
		HeadHash: "feedbeef",
		Metrics:  map[string]float64{"latency": 12.5, "x": 1},
		StartMS:  1000,
		EndMS:    2000,
		DID:      "did:key:zTestActor",
		SigHex:   "ignored by signing",
	})
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "manifest_signing_bytes", message)
}

func TestSigningBytesSensitivity(t *testing.T) {
	base := EpochManifest{
		EpochID:  "epoch-1000",
		ParentID: "epoch-500",
		HeadHash: "abcd",
		StartMS:  1000,
		EndMS:    2000,
		DID:      "did:key:zTestActor",
	}
	baseBytes, err := SigningBytes(base)
	require.NoError(t, err)

	// Nil and empty metrics encode identically.
	withEmpty := base
	withEmpty.Metrics = map[string]float64{}
	emptyBytes, err := SigningBytes(withEmpty)
	require.NoError(t, err)
	assert.Equal(t, baseBytes, emptyBytes)

	// The signature field never feeds the message.
	signed := base
	signed.SigHex = "cafe"
	signedBytes, err := SigningBytes(signed)
	require.NoError(t, err)
	assert.Equal(t, baseBytes, signedBytes)

	// Every other field does.
	tampered := base
	tampered.HeadHash = "abce"
	tamperedBytes, err := SigningBytes(tampered)
	require.NoError(t, err)
	assert.NotEqual(t, baseBytes, tamperedBytes)
}

func TestParseManifest(t *testing.T) {
	m := EpochManifest{
		EpochID:  "epoch-1000",
		ParentID: "epoch-500",
		HeadHash: "abcd",
		Metrics:  map[string]float64{"x": 1},
		StartMS:  1000,
		EndMS:    2000,
		DID:      "did:key:zTestActor",
		SigHex:   "cafe",
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)

	parsed, err := ParseManifest(data)
	require.NoError(t, err)
	assert.Equal(t, m, parsed)

	_, err = ParseManifest([]byte("not json"))
	assert.Error(t, err)

	_, err = ParseManifest([]byte(`{"epoch_id":"e","sig_hex":"not hex"}`))
	assert.Error(t, err)
}

func TestVerifyManifestTampering(t *testing.T) {
	f := newFixture(t)

	_, m, err := f.ct.WithEpoch(nil, nil, nil)
	require.NoError(t, err)
	pub := f.id.PublicKey()
	require.True(t, VerifyManifest(m, pub))

	tampered := m
	tampered.EndMS++
	assert.False(t, VerifyManifest(tampered, pub))

	tampered = m
	tampered.Metrics = map[string]float64{"injected": 1}
	assert.False(t, VerifyManifest(tampered, pub))

	tampered = m
	tampered.SigHex = "zz not hex"
	assert.False(t, VerifyManifest(tampered, pub))

	assert.False(t, VerifyManifest(m, nil), "missing key never verifies a signed manifest")
}

func TestVerifyManifestGenesisException(t *testing.T) {
	// Unsigned with no parent: the accepted genesis form.
	assert.True(t, VerifyManifest(EpochManifest{EpochID: "epoch-1"}, nil))

	// Unsigned with a parent claim is never acceptable.
	assert.False(t, VerifyManifest(EpochManifest{EpochID: "epoch-2", ParentID: "epoch-1"}, nil))
}

func TestManifestIsZero(t *testing.T) {
	assert.True(t, EpochManifest{}.IsZero())
	assert.False(t, EpochManifest{EpochID: "epoch-1"}.IsZero())
}
