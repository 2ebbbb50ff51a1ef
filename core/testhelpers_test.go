package core

import (
	"strconv"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// kvCall is the payload of the in-test application.
type kvCall struct {
	Addr string `cbor:"addr"`
	Data []byte `cbor:"data"`
	Fail bool   `cbor:"fail"`
}

// kvApp writes opaque data under an address; it fails on demand to exercise
// the skip path.
type kvApp struct{}

func (kvApp) Name() string { return "kvapp" }

func (kvApp) Execute(txn *SignedTransaction, ctx StateContext) bool {
	var call kvCall
	if err := Deserialize(txn.Txn, &call); err != nil {
		return false
	}
	if call.Fail {
		return false
	}
	entry := NewState()
	entry.SetData(call.Data)
	ctx.Put(call.Addr, entry)
	ctx.PutTxn(txn.Hash(), txn)
	return true
}

func newTestRegistry(t *testing.T) *AppRegistry {
	t.Helper()
	registry := NewAppRegistry()
	if err := registry.Register(kvApp{}); err != nil {
		t.Fatalf("register kvapp: %v", err)
	}
	return registry
}

var testOrderKey TxnPoolKey = 1_700_000_000_000_000

// makeKVTxn builds a kvapp transaction with a distinct, increasing order
// key.
func makeKVTxn(t *testing.T, addr string, data []byte, fail bool) (*SignedTransaction, TxnPoolKey) {
	t.Helper()
	payload, err := Serialize(&kvCall{Addr: addr, Data: data, Fail: fail})
	if err != nil {
		t.Fatalf("serialize kv call: %v", err)
	}
	testOrderKey++
	txn := &SignedTransaction{
		Txn:       payload,
		AppName:   "kvapp",
		Header:    map[string]string{HeaderTimestamp: strconv.FormatUint(testOrderKey, 10)},
		Signature: []byte{0},
	}
	return txn, testOrderKey
}
