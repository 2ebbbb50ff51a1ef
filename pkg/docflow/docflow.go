package docflow

import (
	"crypto/ed25519"

	"github.com/sirupsen/logrus"

	"aurachain/core"
)

// AppName routes transactions to this handler.
const AppName = "DocumentWorkflow"

// stateAddress is the single state-trie key holding the workflow state.
const stateAddress = "docflow"

// Function names accepted in DocTransaction.FxnCall.
const (
	FxnSetHash           = "set_hash"
	FxnAddDoc            = "add_doc"
	FxnTransferSC        = "transfer_sc"
	FxnSetPkgNo          = "set_pkg_no"
	FxnTransferForReview = "transfer_for_review"
	FxnReviewDocs        = "review_docs"
	FxnPublishDocs       = "publish_docs"
)

// DocTransaction is the workflow payload carried inside a signed
// transaction.
type DocTransaction struct {
	Nonce    uint64      `cbor:"nonce"`
	From     string      `cbor:"from"`
	To       string      `cbor:"to"`
	FxnCall  string      `cbor:"fxn_call"`
	PkgNo    string      `cbor:"pkg_no"`
	Docs     []core.Hash `cbor:"docs"`
	Token    core.Hash   `cbor:"token"`
	FileHash core.Hash   `cbor:"file_hash"`
	Approve  bool        `cbor:"approve"`
}

// App implements core.AppHandler.
type App struct{}

func New() *App { return &App{} }

func (a *App) Name() string { return AppName }

// Execute validates the signature against the sender address and applies the
// named workflow operation.
func (a *App) Execute(txn *core.SignedTransaction, ctx core.StateContext) bool {
	var call DocTransaction
	if err := core.Deserialize(txn.Txn, &call); err != nil {
		logrus.Warnf("docflow payload could not be decoded: %v", err)
		return false
	}
	if !core.VerifyFromHex(call.From, txn.Txn, txn.Signature) {
		logrus.Warnf("docflow transaction signature invalid for %s", call.From)
		return false
	}

	state := loadState(ctx)
	var applied bool
	switch call.FxnCall {
	case FxnSetHash:
		applied = setHash(&call, state)
	case FxnAddDoc:
		applied = addDoc(&call, state)
	case FxnTransferSC:
		applied = transferSC(&call, state)
	case FxnSetPkgNo:
		applied = setPkgNo(&call, state)
	case FxnTransferForReview:
		applied = transferForReview(&call, state)
	case FxnReviewDocs:
		applied = reviewDocs(&call, state)
	case FxnPublishDocs:
		applied = publishDocs(&call, state)
	default:
		logrus.Warnf("docflow does not implement %q", call.FxnCall)
	}
	if applied && storeState(ctx, state) {
		ctx.PutTxn(txn.Hash(), txn)
		return true
	}
	return false
}

func loadState(ctx core.StateContext) *DocState {
	entry, ok := ctx.Get(stateAddress)
	if !ok {
		return NewDocState()
	}
	state := NewDocState()
	if err := core.Deserialize(entry.GetData(), state); err != nil {
		return NewDocState()
	}
	return state
}

func storeState(ctx core.StateContext, state *DocState) bool {
	data, err := core.Serialize(state)
	if err != nil {
		logrus.Errorf("docflow state could not be encoded: %v", err)
		return false
	}
	entry := core.NewState()
	entry.SetData(data)
	ctx.Put(stateAddress, entry)
	return true
}

// setHash binds the document's file hash; only the owner may bind it, and
// only once.
func setHash(call *DocTransaction, state *DocState) bool {
	token, ok := state.GetNFTToken(call.Token)
	if !ok || token.Owner != call.From {
		return false
	}
	return state.SetHash(call.Token, call.FileHash)
}

// addDoc creates one token per listed document, owned by the sender. A
// colliding token id rejects the whole batch.
func addDoc(call *DocTransaction, state *DocState) bool {
	if len(call.Docs) == 0 {
		return false
	}
	for _, hash := range call.Docs {
		ok := state.AddNFTToken(hash, NFTToken{
			SuperOwner: call.From,
			Owner:      call.From,
			Status:     StatusCreated,
		})
		if !ok {
			return false
		}
	}
	return true
}

// transferSC hands the listed documents over for packaging: they are queued
// on the recipient's confirmation list. Custody only — ownership does not
// move.
func transferSC(call *DocTransaction, state *DocState) bool {
	if len(call.Docs) == 0 {
		return false
	}
	for _, hash := range call.Docs {
		token, ok := state.GetNFTToken(hash)
		if !ok || token.Owner != call.From {
			return false
		}
	}
	state.AddToConfirmationList(call.To, call.Docs)
	return true
}

// setPkgNo groups documents from the caller's confirmation list under a
// fresh package number. Every document must still be in Created state;
// grouped documents flip to Submitted and leave the list.
func setPkgNo(call *DocTransaction, state *DocState) bool {
	if call.PkgNo == "" || len(call.Docs) == 0 {
		return false
	}
	waiting := state.GetConfirmationWaitingList(call.From)
	if waiting == nil {
		return false
	}
	queued := make(map[core.Hash]struct{}, len(waiting))
	for _, hash := range waiting {
		queued[hash] = struct{}{}
	}
	for _, hash := range call.Docs {
		if _, ok := queued[hash]; !ok {
			return false
		}
		token, ok := state.GetNFTToken(hash)
		if !ok || token.Status != StatusCreated {
			return false
		}
	}
	if !state.SetPkgList(call.PkgNo, call.Docs) {
		return false
	}
	inPkg := make(map[core.Hash]struct{}, len(call.Docs))
	for _, hash := range call.Docs {
		inPkg[hash] = struct{}{}
		token, _ := state.GetNFTToken(hash)
		token.Status = StatusSubmitted
		token.PkgNo = call.PkgNo
		state.ReplaceNFTToken(hash, token)
	}
	remaining := make([]core.Hash, 0, len(waiting))
	for _, hash := range waiting {
		if _, drop := inPkg[hash]; !drop {
			remaining = append(remaining, hash)
		}
	}
	state.UpdateConfirmationList(call.From, remaining)
	return true
}

// transferForReview hands a submitted package to a reviewer. The caller must
// own every document and all of them must be Submitted.
func transferForReview(call *DocTransaction, state *DocState) bool {
	docs, ok := state.GetPkgList(call.PkgNo)
	if !ok {
		return false
	}
	for _, hash := range docs {
		token, ok := state.GetNFTToken(hash)
		if !ok || token.Status != StatusSubmitted || token.Owner != call.From {
			return false
		}
	}
	state.AddPkgForReview(call.To, call.PkgNo)
	return true
}

// reviewDocs settles a package pending on the caller's review list: every
// document is still Submitted and flips to Approved or Rejected as one unit.
func reviewDocs(call *DocTransaction, state *DocState) bool {
	if !state.ReviewListContains(call.From, call.PkgNo) {
		return false
	}
	docs, ok := state.GetPkgList(call.PkgNo)
	if !ok {
		return false
	}
	for _, hash := range docs {
		token, ok := state.GetNFTToken(hash)
		if !ok || token.Status != StatusSubmitted {
			return false
		}
	}
	status := StatusRejected
	if call.Approve {
		status = StatusApproved
	}
	for _, hash := range docs {
		token, _ := state.GetNFTToken(hash)
		token.Status = status
		state.ReplaceNFTToken(hash, token)
	}
	state.RemovePkgFromReviewList(call.From, call.PkgNo)
	return true
}

// publishDocs flips an approved package to Published. The caller must own
// every document and all of them must be Approved.
func publishDocs(call *DocTransaction, state *DocState) bool {
	docs, ok := state.GetPkgList(call.PkgNo)
	if !ok {
		return false
	}
	for _, hash := range docs {
		token, ok := state.GetNFTToken(hash)
		if !ok || token.Status != StatusApproved || token.Owner != call.From {
			return false
		}
	}
	for _, hash := range docs {
		token, _ := state.GetNFTToken(hash)
		token.Status = StatusPublished
		state.ReplaceNFTToken(hash, token)
	}
	return true
}

// NewSignedCall builds and signs a workflow record ready for submission.
func NewSignedCall(kp ed25519.PrivateKey, call DocTransaction) (*core.SignedTransaction, error) {
	call.From = core.PublicKeyHex(kp)
	payload, err := core.Serialize(&call)
	if err != nil {
		return nil, err
	}
	return core.NewSignedTransaction(AppName, payload, core.SignPayload(kp, payload)), nil
}
