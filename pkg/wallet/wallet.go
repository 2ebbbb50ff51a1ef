package wallet

// Package wallet is the cryptocurrency example application: per-address
// balances with transfer and mint operations. It plugs into the core through
// the AppHandler capability and touches chain state only through the
// StateContext it is handed.

import (
	"crypto/ed25519"

	"github.com/sirupsen/logrus"

	"aurachain/core"
)

// AppName routes transactions to this handler.
const AppName = "Cryptocurrency"

// Function names accepted in CryptoTransaction.FxnCall.
const (
	FxnTransfer = "transfer"
	FxnMint     = "mint"
)

// CryptoTransaction is the wallet payload carried inside a signed
// transaction. Addresses are hex-encoded ed25519 public keys.
type CryptoTransaction struct {
	Nonce   uint64 `cbor:"nonce"`
	From    string `cbor:"from"`
	To      string `cbor:"to"`
	FxnCall string `cbor:"fxn_call"`
	Amount  uint64 `cbor:"amount"`
}

// CryptoState is the wallet's per-address record, stored as the opaque data
// of the chain's state entry.
type CryptoState struct {
	Nonce   uint64 `cbor:"nonce"`
	Balance uint64 `cbor:"balance"`
}

// App implements core.AppHandler.
type App struct{}

func New() *App { return &App{} }

func (a *App) Name() string { return AppName }

// Execute validates the signature against the sender address and applies the
// named operation. Applied transactions are recorded in the transaction
// trie.
func (a *App) Execute(txn *core.SignedTransaction, ctx core.StateContext) bool {
	var call CryptoTransaction
	if err := core.Deserialize(txn.Txn, &call); err != nil {
		logrus.Warnf("wallet payload could not be decoded: %v", err)
		return false
	}
	if !core.VerifyFromHex(call.From, txn.Txn, txn.Signature) {
		logrus.Warnf("wallet transaction signature invalid for %s", call.From)
		return false
	}

	var applied bool
	switch call.FxnCall {
	case FxnTransfer:
		applied = transfer(&call, ctx)
	case FxnMint:
		applied = mint(&call, ctx)
	default:
		logrus.Warnf("wallet does not implement %q", call.FxnCall)
	}
	if applied {
		ctx.PutTxn(txn.Hash(), txn)
	}
	return applied
}

func loadWallet(ctx core.StateContext, address string) (CryptoState, bool) {
	entry, ok := ctx.Get(address)
	if !ok {
		return CryptoState{}, false
	}
	var ws CryptoState
	if err := core.Deserialize(entry.GetData(), &ws); err != nil {
		return CryptoState{}, false
	}
	return ws, true
}

func storeWallet(ctx core.StateContext, address string, ws CryptoState) bool {
	data, err := core.Serialize(&ws)
	if err != nil {
		return false
	}
	entry := core.NewState()
	entry.SetData(data)
	ctx.Put(address, entry)
	return true
}

// transfer moves amount from the sender to the recipient, creating the
// recipient's wallet on first touch. The sender must exist and cover the
// amount.
func transfer(call *CryptoTransaction, ctx core.StateContext) bool {
	from, ok := loadWallet(ctx, call.From)
	if !ok {
		logrus.Warnf("transfer from unknown wallet %s", call.From)
		return false
	}
	if from.Balance <= call.Amount {
		logrus.Warnf("wallet %s balance %d cannot cover %d", call.From, from.Balance, call.Amount)
		return false
	}
	to, _ := loadWallet(ctx, call.To)
	to.Balance += call.Amount
	if !storeWallet(ctx, call.To, to) {
		return false
	}
	from.Balance -= call.Amount
	from.Nonce++
	return storeWallet(ctx, call.From, from)
}

// mint credits amount to the recipient, creating the wallet if needed.
func mint(call *CryptoTransaction, ctx core.StateContext) bool {
	to, _ := loadWallet(ctx, call.To)
	to.Balance += call.Amount
	return storeWallet(ctx, call.To, to)
}

// NewSignedTransfer builds and signs a transfer record ready for submission.
func NewSignedTransfer(kp ed25519.PrivateKey, to string, amount, nonce uint64) (*core.SignedTransaction, error) {
	return signCall(kp, CryptoTransaction{
		Nonce:   nonce,
		From:    core.PublicKeyHex(kp),
		To:      to,
		FxnCall: FxnTransfer,
		Amount:  amount,
	})
}

// NewSignedMint builds and signs a mint record ready for submission.
func NewSignedMint(kp ed25519.PrivateKey, to string, amount, nonce uint64) (*core.SignedTransaction, error) {
	return signCall(kp, CryptoTransaction{
		Nonce:   nonce,
		From:    core.PublicKeyHex(kp),
		To:      to,
		FxnCall: FxnMint,
		Amount:  amount,
	})
}

func signCall(kp ed25519.PrivateKey, call CryptoTransaction) (*core.SignedTransaction, error) {
	payload, err := core.Serialize(&call)
	if err != nil {
		return nil, err
	}
	return core.NewSignedTransaction(AppName, payload, core.SignPayload(kp, payload)), nil
}
