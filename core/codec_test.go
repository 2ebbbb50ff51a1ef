package core

import (
	"testing"
)

func TestHashHexRoundTrip(t *testing.T) {
	h := Sum256([]byte("aurachain"))
	parsed, err := HashFromHex(h.Hex())
	if err != nil {
		t.Fatalf("HashFromHex failed: %v", err)
	}
	if parsed != h {
		t.Fatalf("round trip mismatch: %s vs %s", parsed, h)
	}
	if _, err := HashFromHex("zz"); err == nil {
		t.Fatal("expected error for invalid hex")
	}
	if _, err := HashFromHex("abcd"); err == nil {
		t.Fatal("expected error for short hex")
	}
}

func TestSerializeDeterministicMaps(t *testing.T) {
	a := map[string]string{"timestamp": "1", "alpha": "2", "zulu": "3"}
	b := map[string]string{"zulu": "3", "alpha": "2", "timestamp": "1"}
	dataA, err := Serialize(a)
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	dataB, err := Serialize(b)
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	if string(dataA) != string(dataB) {
		t.Fatal("map encoding is not deterministic")
	}
}

func TestObjectHashStable(t *testing.T) {
	tx1 := &SignedTransaction{
		Txn:       []byte("payload"),
		AppName:   "app",
		Header:    map[string]string{"timestamp": "42", "extra": "x"},
		Signature: []byte("sig"),
	}
	tx2 := &SignedTransaction{
		Txn:       []byte("payload"),
		AppName:   "app",
		Header:    map[string]string{"extra": "x", "timestamp": "42"},
		Signature: []byte("sig"),
	}
	if tx1.Hash() != tx2.Hash() {
		t.Fatal("identical transactions hash differently")
	}
	tx2.Txn = []byte("other")
	if tx1.Hash() == tx2.Hash() {
		t.Fatal("different payloads hash identically")
	}
}
