package core

// messages.go – the typed messages travelling over the overlay. Two module
// topics partition the traffic: "node" carries signed transactions and signed
// blocks, "consensus" carries the engine's control messages as opaque bytes
// the engine decodes on its own. Each concrete type also names a per-type
// subtopic used for addressing inside its module.

import (
	"crypto/ed25519"
	"time"
)

// Module topics.
const (
	TopicNode      = "node"
	TopicConsensus = "consensus"
)

// Per-type subtopics.
const (
	TopicSignedTransaction = "SignedTransaction"
	TopicSignedBlock       = "SignedBlock"
	TopicRoundOwner        = "RoundOwner"
	TopicBlockAcceptance   = "BlockAcceptance"
	TopicAuthorBlock       = "AuthorBlock"
)

// WireMessage is implemented by every type that travels over the overlay.
type WireMessage interface {
	Topic() string
	ModuleTopic() string
}

func (tx *SignedTransaction) Topic() string       { return TopicSignedTransaction }
func (tx *SignedTransaction) ModuleTopic() string { return TopicNode }

func (sb *SignedBlock) Topic() string       { return TopicSignedBlock }
func (sb *SignedBlock) ModuleTopic() string { return TopicNode }

// NodeMessage is the tagged union of node-topic payloads; exactly one field
// is set.
type NodeMessage struct {
	SignedTransaction *SignedTransaction `cbor:"signed_transaction,omitempty"`
	SignedBlock       *SignedBlock       `cbor:"signed_block,omitempty"`
}

// ---------------------------------------------------------------------------
// Consensus control messages
// ---------------------------------------------------------------------------

// RoundDetails is the signed body of a RoundOwner beacon.
type RoundDetails struct {
	UnixTime uint64 `cbor:"unix_time"`
}

// RoundOwner is the leader's end-of-round beacon. Peers accept it only while
// it is younger than one round.
type RoundOwner struct {
	RoundDetails RoundDetails `cbor:"round_details"`
	Signature    []byte       `cbor:"signature"`
	PublicKey    string       `cbor:"public_key"`
}

// CreateRoundOwner stamps and signs a beacon for the current wall clock.
func CreateRoundOwner(kp ed25519.PrivateKey) *RoundOwner {
	ro := &RoundOwner{
		RoundDetails: RoundDetails{UnixTime: uint64(time.Now().Unix())},
		PublicKey:    PublicKeyHex(kp),
	}
	ro.sign(kp)
	return ro
}

func (ro *RoundOwner) sign(kp ed25519.PrivateKey) {
	data, err := Serialize(&ro.RoundDetails)
	if err != nil {
		ro.Signature = []byte{0}
		return
	}
	ro.Signature = SignPayload(kp, data)
}

// Verify checks the signature and rejects beacons older than stepTime
// seconds, the replay/delay guard.
func (ro *RoundOwner) Verify(stepTime uint64) bool {
	now := uint64(time.Now().Unix())
	if now > ro.RoundDetails.UnixTime && now-ro.RoundDetails.UnixTime > stepTime {
		return false
	}
	data, err := Serialize(&ro.RoundDetails)
	if err != nil {
		return false
	}
	return VerifyFromHex(ro.PublicKey, data, ro.Signature)
}

func (ro *RoundOwner) Topic() string       { return TopicRoundOwner }
func (ro *RoundOwner) ModuleTopic() string { return TopicConsensus }

// BlockAcceptance is a validator's attestation: its signature over the
// pending block's hash.
type BlockAcceptance struct {
	Signature []byte `cbor:"signature"`
	BlockHash Hash   `cbor:"block_hash"`
	PublicKey string `cbor:"public_key"`
}

// CreateBlockAcceptance signs blockHash with kp.
func CreateBlockAcceptance(kp ed25519.PrivateKey, blockHash Hash) *BlockAcceptance {
	ba := &BlockAcceptance{
		BlockHash: blockHash,
		PublicKey: PublicKeyHex(kp),
	}
	ba.Signature = SignPayload(kp, blockHash[:])
	return ba
}

// Verify checks the attestation signature over the raw block hash.
func (ba *BlockAcceptance) Verify() bool {
	return VerifyFromHex(ba.PublicKey, ba.BlockHash[:], ba.Signature)
}

func (ba *BlockAcceptance) Topic() string       { return TopicBlockAcceptance }
func (ba *BlockAcceptance) ModuleTopic() string { return TopicConsensus }

// AuthorBlock is the leader's proposal.
type AuthorBlock struct {
	Block SignedBlock `cbor:"block"`
}

func CreateAuthorBlock(block *SignedBlock) *AuthorBlock {
	return &AuthorBlock{Block: *block}
}

// Verify checks the embedded block's signature.
func (ab *AuthorBlock) Verify() bool {
	return ab.Block.Validate()
}

func (ab *AuthorBlock) Topic() string       { return TopicAuthorBlock }
func (ab *AuthorBlock) ModuleTopic() string { return TopicConsensus }

// ConsensusMessage is the tagged union of consensus-topic payloads; exactly
// one field is set.
type ConsensusMessage struct {
	RoundOwner      *RoundOwner      `cbor:"round_owner,omitempty"`
	BlockAcceptance *BlockAcceptance `cbor:"block_acceptance,omitempty"`
	AuthorBlock     *AuthorBlock     `cbor:"author_block,omitempty"`
}
