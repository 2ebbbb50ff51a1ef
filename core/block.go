package core

// block.go – block and signed block records. The header commits to the state,
// storage and transaction tries; auth_headers carries consensus-specific
// metadata the engine decodes on its own.

import (
	"crypto/ed25519"
	"fmt"
	"strings"
)

// Positions of the three Merkle roots inside Block.Header.
const (
	HeaderStateTrie = iota
	HeaderStorageTrie
	HeaderTxnTrie
)

// Block is the unsigned block body.
type Block struct {
	ID          uint64  `cbor:"id"`
	PeerID      string  `cbor:"peer_id"`
	PrevHash    Hash    `cbor:"prev_hash"`
	TxnPool     []Hash  `cbor:"txn_pool"`
	Header      [3]Hash `cbor:"header"`
	AuthHeaders []byte  `cbor:"auth_headers"`
}

// SignedBlock binds a block to its proposer's signature over the block's
// canonical encoding.
type SignedBlock struct {
	Block     Block  `cbor:"block"`
	Signature []byte `cbor:"signature"`
}

// GenesisBlock builds the height-zero block: zero predecessor, no
// transactions, headers left for the caller to fill with the empty-trie
// roots.
func GenesisBlock(peerID string, authHeaders []byte) Block {
	return Block{
		ID:          0,
		PeerID:      peerID,
		PrevHash:    ZeroHash,
		TxnPool:     []Hash{},
		AuthHeaders: authHeaders,
	}
}

// NewBlock builds a block at the given height.
func NewBlock(id uint64, peerID string, prevHash Hash, txnPool []Hash, header [3]Hash, authHeaders []byte) Block {
	return Block{
		ID:          id,
		PeerID:      peerID,
		PrevHash:    prevHash,
		TxnPool:     txnPool,
		Header:      header,
		AuthHeaders: authHeaders,
	}
}

// Sign returns kp's signature over the block's canonical encoding.
func (b *Block) Sign(kp ed25519.PrivateKey) []byte {
	data, err := Serialize(b)
	if err != nil {
		return []byte{0}
	}
	return SignPayload(kp, data)
}

// Validate checks sig over the block under a hex-encoded public key.
func (b *Block) Validate(publicHex string, sig []byte) bool {
	data, err := Serialize(b)
	if err != nil {
		return false
	}
	return VerifyFromHex(publicHex, data, sig)
}

// StringFormat renders the block for human-facing queries.
func (b *Block) StringFormat() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "id: %d, peer_id: %s, prev_hash: %s, txn_pool: ", b.ID, b.PeerID, b.PrevHash.Hex())
	for _, h := range b.TxnPool {
		sb.WriteString(h.Hex())
		sb.WriteString(", ")
	}
	sb.WriteString("header: ")
	for _, h := range b.Header {
		sb.WriteString(h.Hex())
		sb.WriteString(", ")
	}
	return sb.String()
}

// CreateSignedBlock pairs a block with its signature.
func CreateSignedBlock(block Block, signature []byte) *SignedBlock {
	return &SignedBlock{Block: block, Signature: signature}
}

// Validate verifies the signature under the proposer key the block itself
// declares.
func (sb *SignedBlock) Validate() bool {
	return sb.Block.Validate(sb.Block.PeerID, sb.Signature)
}

// Hash is the block identity: the digest of the signed block's canonical
// encoding. Successor blocks reference it as prev_hash.
func (sb *SignedBlock) Hash() Hash {
	return ObjectHash(sb)
}

// StringFormat renders the signed block for human-facing queries.
func (sb *SignedBlock) StringFormat() string {
	return "Block: " + sb.Block.StringFormat()
}
