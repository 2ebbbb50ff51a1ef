package core

// keys.go – node identity. Validators are identified by the hex encoding of
// their ed25519 public key; the same secret also derives the libp2p host key
// so the overlay identity and the signing identity stay one and the same.

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
)

// GenerateKeypair creates a fresh ed25519 private key.
func GenerateKeypair() ed25519.PrivateKey {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(fmt.Sprintf("ed25519 keygen: %v", err))
	}
	return priv
}

// KeypairFromSecretHex rebuilds a private key from a 32-byte hex seed, the
// form the config file carries.
func KeypairFromSecretHex(secret string) (ed25519.PrivateKey, error) {
	seed, err := hex.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("secret must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// PublicKeyHex returns the hex-encoded public half of kp, the validator id
// used throughout consensus.
func PublicKeyHex(kp ed25519.PrivateKey) string {
	return hex.EncodeToString(kp.Public().(ed25519.PublicKey))
}

// SignPayload signs msg with kp.
func SignPayload(kp ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(kp, msg)
}

// VerifyFromHex checks sig over msg under a hex-encoded public key. Malformed
// keys and signatures simply fail verification; untrusted input never panics.
func VerifyFromHex(publicHex string, msg, sig []byte) bool {
	pub, err := hex.DecodeString(publicHex)
	if err != nil || len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// Libp2pIdentity converts the node key into the libp2p host identity.
func Libp2pIdentity(kp ed25519.PrivateKey) (p2pcrypto.PrivKey, error) {
	priv, err := p2pcrypto.UnmarshalEd25519PrivateKey(kp)
	if err != nil {
		return nil, fmt.Errorf("libp2p identity: %w", err)
	}
	return priv, nil
}
