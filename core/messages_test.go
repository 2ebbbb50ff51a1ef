package core

import (
	"testing"
	"time"
)

func TestRoundOwnerVerifyAndReplayGuard(t *testing.T) {
	kp := GenerateKeypair()
	ro := CreateRoundOwner(kp)
	if !ro.Verify(3) {
		t.Fatal("fresh beacon failed verification")
	}

	// a beacon older than step_time is a replay
	stale := CreateRoundOwner(kp)
	stale.RoundDetails.UnixTime = uint64(time.Now().Unix()) - 10
	stale.sign(kp)
	if stale.Verify(3) {
		t.Fatal("stale beacon accepted")
	}

	// tampering invalidates the signature
	ro.RoundDetails.UnixTime++
	if ro.Verify(3) {
		t.Fatal("tampered beacon accepted")
	}
}

func TestBlockAcceptanceVerify(t *testing.T) {
	kp := GenerateKeypair()
	blockHash := Sum256([]byte("block"))
	ba := CreateBlockAcceptance(kp, blockHash)
	if !ba.Verify() {
		t.Fatal("acceptance failed verification")
	}
	ba.BlockHash = Sum256([]byte("other"))
	if ba.Verify() {
		t.Fatal("acceptance for a different hash verified")
	}
}

func TestAuthorBlockVerify(t *testing.T) {
	kp := GenerateKeypair()
	block := NewBlock(1, PublicKeyHex(kp), ZeroHash, nil, [3]Hash{}, nil)
	signed := CreateSignedBlock(block, block.Sign(kp))
	ab := CreateAuthorBlock(signed)
	if !ab.Verify() {
		t.Fatal("author block failed verification")
	}
	ab.Block.Block.ID = 9
	if ab.Verify() {
		t.Fatal("tampered author block verified")
	}
}

func TestConsensusMessageUnionRoundTrip(t *testing.T) {
	kp := GenerateKeypair()
	ro := CreateRoundOwner(kp)
	data, err := Serialize(&ConsensusMessage{RoundOwner: ro})
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	var decoded ConsensusMessage
	if err := Deserialize(data, &decoded); err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}
	if decoded.RoundOwner == nil || decoded.AuthorBlock != nil || decoded.BlockAcceptance != nil {
		t.Fatal("union variant mangled")
	}
	if decoded.RoundOwner.PublicKey != ro.PublicKey {
		t.Fatal("payload mangled")
	}
}

func TestNodeMessageUnionRoundTrip(t *testing.T) {
	txn, _ := makeKVTxn(t, "a", []byte("1"), false)
	data, err := Serialize(&NodeMessage{SignedTransaction: txn})
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	var decoded NodeMessage
	if err := Deserialize(data, &decoded); err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}
	if decoded.SignedTransaction == nil || decoded.SignedBlock != nil {
		t.Fatal("union variant mangled")
	}
	if decoded.SignedTransaction.Hash() != txn.Hash() {
		t.Fatal("transaction identity changed across the wire")
	}
}

func TestDispatcherRouting(t *testing.T) {
	disp := NewMessageDispatcher()
	txn, _ := makeKVTxn(t, "a", []byte("1"), false)
	data, err := Serialize(&NodeMessage{SignedTransaction: txn})
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	disp.Dispatch(TopicNode, data)
	select {
	case msg := <-disp.NodeMsgCh:
		if msg.SignedTransaction == nil {
			t.Fatal("node message lost its payload")
		}
	default:
		t.Fatal("node message was not routed")
	}

	disp.Dispatch(TopicConsensus, []byte{0xa0})
	select {
	case raw := <-disp.ConsensusMsgCh:
		if len(raw) != 1 {
			t.Fatal("consensus payload mangled")
		}
	default:
		t.Fatal("consensus message was not routed")
	}

	// malformed node payloads are dropped, not delivered
	disp.Dispatch(TopicNode, []byte{0xff, 0x00})
	select {
	case <-disp.NodeMsgCh:
		t.Fatal("malformed message delivered")
	default:
	}
}
