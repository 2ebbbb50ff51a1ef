package core

// codec.go – canonical binary encoding and content addressing.
//
// Every structure that crosses the wire or lands on disk goes through the
// deterministic CBOR mode below. Hashing a value means hashing its canonical
// encoding, so two nodes always derive the same identity for the same record.

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/sha3"
)

// Hash is a SHA3-256 digest. It identifies transactions, blocks and Merkle
// roots across the chain.
type Hash [32]byte

// ZeroHash is the all-zero digest, used as the genesis predecessor and as the
// root of an empty proof map.
var ZeroHash = Hash{}

func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) String() string { return h.Hex() }

// HashFromHex parses a 64-character hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decode hash hex: %w", err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("hash must be %d bytes, got %d", len(h), len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encode mode: %v", err))
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor decode mode: %v", err))
	}
}

// Serialize encodes v with the canonical CBOR mode.
func Serialize(v interface{}) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	return data, nil
}

// Deserialize decodes canonical CBOR data into v.
func Deserialize(data []byte, v interface{}) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("deserialize: %w", err)
	}
	return nil
}

// Sum256 returns the SHA3-256 digest of data.
func Sum256(data []byte) Hash {
	return Hash(sha3.Sum256(data))
}

// ObjectHash returns the digest of a value's canonical encoding. Values built
// from the chain's own types cannot fail to encode; a failure yields the zero
// hash, which no valid record ever carries.
func ObjectHash(v interface{}) Hash {
	data, err := Serialize(v)
	if err != nil {
		return ZeroHash
	}
	return Sum256(data)
}
