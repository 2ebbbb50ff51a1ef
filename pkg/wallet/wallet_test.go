package wallet

import (
	"testing"

	"aurachain/core"
)

// memContext is an in-memory StateContext for handler tests.
type memContext struct {
	state map[string]*core.State
	txns  map[core.Hash]*core.SignedTransaction
}

func newMemContext() *memContext {
	return &memContext{
		state: make(map[string]*core.State),
		txns:  make(map[core.Hash]*core.SignedTransaction),
	}
}

func (m *memContext) Put(addr string, entry *core.State) { m.state[addr] = entry }
func (m *memContext) Get(addr string) (*core.State, bool) {
	entry, ok := m.state[addr]
	return entry, ok
}
func (m *memContext) Contains(addr string) bool { _, ok := m.state[addr]; return ok }
func (m *memContext) PutTxn(h core.Hash, txn *core.SignedTransaction) { m.txns[h] = txn }
func (m *memContext) GetTxn(h core.Hash) (*core.SignedTransaction, bool) {
	txn, ok := m.txns[h]
	return txn, ok
}
func (m *memContext) ContainsTxn(h core.Hash) bool { _, ok := m.txns[h]; return ok }

func balanceOf(t *testing.T, ctx *memContext, addr string) CryptoState {
	t.Helper()
	entry, ok := ctx.Get(addr)
	if !ok {
		t.Fatalf("no wallet state for %s", addr)
	}
	var ws CryptoState
	if err := core.Deserialize(entry.GetData(), &ws); err != nil {
		t.Fatalf("decode wallet state: %v", err)
	}
	return ws
}

func TestMintCreatesWallet(t *testing.T) {
	app := New()
	ctx := newMemContext()
	kp := core.GenerateKeypair()
	to := core.PublicKeyHex(core.GenerateKeypair())

	txn, err := NewSignedMint(kp, to, 100, 0)
	if err != nil {
		t.Fatalf("NewSignedMint failed: %v", err)
	}
	if !app.Execute(txn, ctx) {
		t.Fatal("mint rejected")
	}
	if ws := balanceOf(t, ctx, to); ws.Balance != 100 {
		t.Fatalf("balance %d, want 100", ws.Balance)
	}
	if !ctx.ContainsTxn(txn.Hash()) {
		t.Fatal("applied mint not recorded in txn trie")
	}
}

func TestTransferMovesFunds(t *testing.T) {
	app := New()
	ctx := newMemContext()
	sender := core.GenerateKeypair()
	senderAddr := core.PublicKeyHex(sender)
	receiver := core.PublicKeyHex(core.GenerateKeypair())

	mint, err := NewSignedMint(sender, senderAddr, 100, 0)
	if err != nil {
		t.Fatalf("NewSignedMint failed: %v", err)
	}
	if !app.Execute(mint, ctx) {
		t.Fatal("funding mint rejected")
	}

	transfer, err := NewSignedTransfer(sender, receiver, 40, 1)
	if err != nil {
		t.Fatalf("NewSignedTransfer failed: %v", err)
	}
	if !app.Execute(transfer, ctx) {
		t.Fatal("transfer rejected")
	}

	from := balanceOf(t, ctx, senderAddr)
	to := balanceOf(t, ctx, receiver)
	if from.Balance != 60 || to.Balance != 40 {
		t.Fatalf("balances %d/%d, want 60/40", from.Balance, to.Balance)
	}
	if from.Nonce != 1 {
		t.Fatalf("sender nonce %d, want 1", from.Nonce)
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	app := New()
	ctx := newMemContext()
	sender := core.GenerateKeypair()
	senderAddr := core.PublicKeyHex(sender)
	receiver := core.PublicKeyHex(core.GenerateKeypair())

	mint, _ := NewSignedMint(sender, senderAddr, 10, 0)
	app.Execute(mint, ctx)

	transfer, _ := NewSignedTransfer(sender, receiver, 10, 1)
	if app.Execute(transfer, ctx) {
		t.Fatal("transfer above balance accepted")
	}
	if ws := balanceOf(t, ctx, senderAddr); ws.Balance != 10 {
		t.Fatalf("balance changed to %d on rejected transfer", ws.Balance)
	}
	if ctx.ContainsTxn(transfer.Hash()) {
		t.Fatal("rejected transfer recorded in txn trie")
	}
}

func TestTransferFromUnknownWallet(t *testing.T) {
	app := New()
	ctx := newMemContext()
	sender := core.GenerateKeypair()
	receiver := core.PublicKeyHex(core.GenerateKeypair())

	transfer, _ := NewSignedTransfer(sender, receiver, 1, 0)
	if app.Execute(transfer, ctx) {
		t.Fatal("transfer from unknown wallet accepted")
	}
}

func TestExecuteRejectsForgedSignature(t *testing.T) {
	app := New()
	ctx := newMemContext()
	sender := core.GenerateKeypair()
	thief := core.GenerateKeypair()
	receiver := core.PublicKeyHex(core.GenerateKeypair())

	// thief signs a payload claiming to come from sender
	call := CryptoTransaction{
		From:    core.PublicKeyHex(sender),
		To:      receiver,
		FxnCall: FxnTransfer,
		Amount:  5,
	}
	payload, err := core.Serialize(&call)
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	forged := core.NewSignedTransaction(AppName, payload, core.SignPayload(thief, payload))
	if app.Execute(forged, ctx) {
		t.Fatal("forged signature accepted")
	}
}

func TestExecuteRejectsUnknownFunction(t *testing.T) {
	app := New()
	ctx := newMemContext()
	kp := core.GenerateKeypair()

	call := CryptoTransaction{From: core.PublicKeyHex(kp), FxnCall: "burn"}
	payload, _ := core.Serialize(&call)
	txn := core.NewSignedTransaction(AppName, payload, core.SignPayload(kp, payload))
	if app.Execute(txn, ctx) {
		t.Fatal("unknown function accepted")
	}
}
