// Package identity provides the persistent signing keypair used to sign
// outbound command payloads. Signatures ride along on the persisted records;
// admission does not verify them against the claimed name (a known gap kept
// for compatibility with the reference behavior).
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const seedFileName = "identity.seed"

// Identity wraps an Ed25519 keypair derived from a persisted seed.
type Identity struct {
	priv ed25519.PrivateKey
}

// Load reads the seed from dataDir, generating and persisting a fresh one on
// first use. The same directory always yields the same keypair.
func Load(dataDir string) (*Identity, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dataDir, seedFileName)

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		seed, decErr := hex.DecodeString(strings.TrimSpace(string(raw)))
		if decErr != nil || len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("corrupt identity seed at %s", path)
		}
		return &Identity{priv: ed25519.NewKeyFromSeed(seed)}, nil
	case os.IsNotExist(err):
		seed := make([]byte, ed25519.SeedSize)
		if _, randErr := rand.Read(seed); randErr != nil {
			return nil, fmt.Errorf("generate identity seed: %w", randErr)
		}
		if writeErr := os.WriteFile(path, []byte(hex.EncodeToString(seed)), 0o600); writeErr != nil {
			return nil, fmt.Errorf("persist identity seed: %w", writeErr)
		}
		return &Identity{priv: ed25519.NewKeyFromSeed(seed)}, nil
	default:
		return nil, fmt.Errorf("read identity seed: %w", err)
	}
}

// Sign signs the BLAKE2b-256 digest of payload.
func (id *Identity) Sign(payload []byte) []byte {
	digest := blake2b.Sum256(payload)
	return ed25519.Sign(id.priv, digest[:])
}

// SignHex returns the hex-encoded signature of payload.
func (id *Identity) SignHex(payload []byte) string {
	return hex.EncodeToString(id.Sign(payload))
}

// PublicKey returns the public half of the keypair.
func (id *Identity) PublicKey() ed25519.PublicKey {
	return id.priv.Public().(ed25519.PublicKey)
}

// PublicKeyHex returns the hex-encoded public key.
func (id *Identity) PublicKeyHex() string {
	return hex.EncodeToString(id.PublicKey())
}

// Verify reports whether sigHex is a valid signature of payload under the
// hex-encoded public key.
func Verify(publicKeyHex string, payload []byte, sigHex string) bool {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	digest := blake2b.Sum256(payload)
	return ed25519.Verify(ed25519.PublicKey(pub), digest[:], sig)
}
