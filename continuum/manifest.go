package continuum

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/driftline/continuum/canonical"
	"github.com/driftline/continuum/identity"
)

// Event types appended to the memory store by the epoch lifecycle.
const (
	EventEpochBegin = "epoch_begin"
	EventEpochEnd   = "epoch_end"
)

// EpochManifest is the signed checkpoint produced when an epoch ends: the
// store's head hash, the caller's metrics, and the parent link that
// chains manifests into a lineage. The signature covers every field
// except SigHex itself.
type EpochManifest struct {
	EpochID         string             `json:"epoch_id"`
	ParentID        string             `json:"parent_id"`
	HeadHash        string             `json:"head_hash"`
	ManifestoDigest string             `json:"manifesto_digest"`
	Metrics         map[string]float64 `json:"metrics"`
	StartMS         int64              `json:"start_ms"`
	EndMS           int64              `json:"end_ms"`
	DID             string             `json:"did"`
	SigHex          string             `json:"sig_hex"`
}

// IsZero reports whether the manifest is the zero value.
func (m EpochManifest) IsZero() bool {
	return m.EpochID == "" && m.SigHex == "" && m.HeadHash == ""
}

// EpochID derives the deterministic epoch identifier from its start time.
func EpochID(startMS int64) string {
	return "epoch-" + strconv.FormatInt(startMS, 10)
}

// SigningBytes builds the canonical byte encoding a manifest is signed
// over: a domain-separation prefix followed by the canonical JSON of
// every field except the signature. Any reordering or mutation of any
// field produces different bytes.
func SigningBytes(m EpochManifest) ([]byte, error) {
	metrics := m.Metrics
	if metrics == nil {
		metrics = map[string]float64{}
	}
	encoded, err := canonical.Marshal(map[string]any{
		"epoch_id":         m.EpochID,
		"parent_id":        m.ParentID,
		"head_hash":        m.HeadHash,
		"manifesto_digest": m.ManifestoDigest,
		"metrics":          metrics,
		"start_ms":         m.StartMS,
		"end_ms":           m.EndMS,
		"did":              m.DID,
	})
	if err != nil {
		return nil, fmt.Errorf("continuum: encode manifest: %w", err)
	}
	return append(canonical.Prefix(canonical.DomainManifest), encoded...), nil
}

// ParseManifest decodes the persisted wire form of a manifest.
func ParseManifest(data []byte) (EpochManifest, error) {
	var m EpochManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return EpochManifest{}, fmt.Errorf("continuum: parse manifest: %w", err)
	}
	if m.SigHex != "" {
		if _, err := canonical.DecodeHex(m.SigHex); err != nil {
			return EpochManifest{}, fmt.Errorf("continuum: parse manifest signature: %w", err)
		}
	}
	return m, nil
}

// VerifyManifest recomputes the canonical signing bytes and checks the
// signature against pub. A manifest with an empty signature AND an empty
// parent id is accepted as the valid genesis special case; any other
// empty signature or key is rejected. Never returns an error - signature
// problems are always a boolean here.
func VerifyManifest(m EpochManifest, pub ed25519.PublicKey) bool {
	if m.SigHex == "" {
		return m.ParentID == ""
	}
	if len(pub) == 0 {
		return false
	}

	sig, err := canonical.DecodeHex(m.SigHex)
	if err != nil {
		return false
	}
	message, err := SigningBytes(m)
	if err != nil {
		return false
	}
	return identity.Verify(pub, message, sig)
}

// beginRecord is the value payload of an epoch_begin event.
type beginRecord struct {
	EpochID         string `json:"epoch_id"`
	ManifestoDigest string `json:"manifesto_digest"`
	StartMS         int64  `json:"start_ms"`
}
