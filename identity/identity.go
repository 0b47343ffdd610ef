// Package identity owns the ledger's signing keypair and decentralized
// identifier. One Manager instance owns one persisted identity document;
// the secret key never leaves it.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Document is the persisted identity file:
// {did, public_key_hex, secret_key_hex}.
type Document struct {
	DID          string `json:"did"`
	PublicKeyHex string `json:"public_key_hex"`
	SecretKeyHex string `json:"secret_key_hex"`
}

// Manager holds an ed25519 keypair and its DID, persisted as a single
// JSON document. All mutation happens through LoadOrCreate and Rotate;
// the secret key is exclusively owned by the Manager and is never
// returned to callers.
type Manager struct {
	path        string
	doc         Document
	pub         ed25519.PublicKey
	priv        ed25519.PrivateKey
	regenerated bool
	log         *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for degraded-state warnings.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// LoadOrCreate loads a valid persisted identity document from path, or
// generates a new keypair and DID and persists it immediately.
//
// A corrupted document (unparsable JSON, bad hex, wrong key lengths, or a
// DID that does not match the public key) is NOT fatal: a fresh identity
// is generated in its place, a warning is logged, and Regenerated reports
// true so callers can observe the recovery instead of discovering it
// through missing history.
//
// Storage failures (path cannot be created or written) are fatal - no
// durable identity is possible without them.
func LoadOrCreate(path string, opts ...Option) (*Manager, error) {
	m := &Manager{path: path, log: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		loadErr := m.loadDocument(data)
		if loadErr == nil {
			return m, nil
		}
		m.log.Warn("identity document corrupt, generating replacement",
			"path", path, "error", loadErr)
		m.regenerated = true
	case errors.Is(err, os.ErrNotExist):
		// First run.
	default:
		return nil, fmt.Errorf("identity: read %s: %w", path, err)
	}

	if err := m.generate(); err != nil {
		return nil, err
	}
	return m, nil
}

// loadDocument parses and validates a persisted document, installing the
// keypair on success.
func (m *Manager) loadDocument(data []byte) error {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse document: %w", err)
	}

	pub, err := hex.DecodeString(doc.PublicKeyHex)
	if err != nil {
		return fmt.Errorf("decode public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("public key is %d bytes, want %d", len(pub), ed25519.PublicKeySize)
	}

	priv, err := hex.DecodeString(doc.SecretKeyHex)
	if err != nil {
		return fmt.Errorf("decode secret key: %w", err)
	}
	if len(priv) != ed25519.PrivateKeySize {
		return fmt.Errorf("secret key is %d bytes, want %d", len(priv), ed25519.PrivateKeySize)
	}

	privKey := ed25519.PrivateKey(priv)
	derived := privKey.Public().(ed25519.PublicKey)
	if !derived.Equal(ed25519.PublicKey(pub)) {
		return errors.New("public key does not match secret key")
	}
	if doc.DID != DIDFromPublicKey(derived) {
		return errors.New("did does not match public key")
	}

	m.doc = doc
	m.pub = derived
	m.priv = privKey
	return nil
}

// generate creates a fresh keypair and DID and persists it.
func (m *Manager) generate() error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("identity: generate keypair: %w", err)
	}

	m.pub = pub
	m.priv = priv
	m.doc = Document{
		DID:          DIDFromPublicKey(pub),
		PublicKeyHex: hex.EncodeToString(pub),
		SecretKeyHex: hex.EncodeToString(priv),
	}
	return m.persist()
}

// persist writes the document atomically: temp file in the same directory,
// then rename over the target.
func (m *Manager) persist() error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("identity: create %s: %w", dir, err)
	}

	data, err := json.Marshal(m.doc)
	if err != nil {
		return fmt.Errorf("identity: marshal document: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("identity: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("identity: rename %s: %w", tmp, err)
	}
	return nil
}

// Sign signs message with the current secret key. The signature is a
// deterministic function of (secret key, message) and is always
// ed25519.SignatureSize bytes.
func (m *Manager) Sign(message []byte) []byte {
	return ed25519.Sign(m.priv, message)
}

// Verify reports whether sig is a valid signature of message under pub.
// It is stateless and returns false - never panics - for malformed or
// empty keys and signatures.
func Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}

// Rotate generates a fresh keypair and DID, persists the new document, and
// discards the old secret key. The retired public key is returned so
// callers can archive it for verifying historical signatures; the Manager
// itself does not retain it.
//
// On a persistence failure the previous keypair stays installed, so the
// Manager never signs with a key the disk document does not hold.
func (m *Manager) Rotate() (retired ed25519.PublicKey, err error) {
	retired = m.PublicKey()
	prevDoc, prevPub, prevPriv := m.doc, m.pub, m.priv
	if err := m.generate(); err != nil {
		m.doc, m.pub, m.priv = prevDoc, prevPub, prevPriv
		return nil, err
	}
	m.log.Info("identity rotated", "did", m.doc.DID)
	return retired, nil
}

// DID returns the current decentralized identifier.
func (m *Manager) DID() string {
	return m.doc.DID
}

// PublicKey returns a copy of the current public key.
func (m *Manager) PublicKey() ed25519.PublicKey {
	pub := make(ed25519.PublicKey, len(m.pub))
	copy(pub, m.pub)
	return pub
}

// Regenerated reports whether LoadOrCreate discarded a corrupted document
// and generated a replacement identity.
func (m *Manager) Regenerated() bool {
	return m.regenerated
}

// Path returns the document's storage location.
func (m *Manager) Path() string {
	return m.path
}
