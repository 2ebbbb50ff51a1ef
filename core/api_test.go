package core

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestBridge(t *testing.T) (*Bridge, *Store, *TransactionPool, *httptest.Server) {
	t.Helper()
	store := newTestStore(t)
	pool := NewTransactionPool()
	sender := NewMessageSender(make(chan OutboundMessage, 64))
	bridge := NewBridge(store, pool, sender)
	srv := httptest.NewServer(bridge.Router())
	t.Cleanup(srv.Close)
	return bridge, store, pool, srv
}

func doRequest(t *testing.T, method, url string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var payload []byte
	if body != nil {
		data, err := Serialize(body)
		if err != nil {
			t.Fatalf("serialize request: %v", err)
		}
		payload = data
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, raw
}

func TestSubmitTransaction(t *testing.T) {
	_, _, pool, srv := newTestBridge(t)
	txn, _ := makeKVTxn(t, "a", []byte("1"), false)

	resp, body := doRequest(t, http.MethodPost, srv.URL+"/client/submit_transaction", txn)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit returned %d", resp.StatusCode)
	}
	if string(body) != "txn added in the pool" {
		t.Fatalf("unexpected ack %q", body)
	}
	if n := pool.LengthHashPool(); n != 1 {
		t.Fatalf("pool length %d after submit, want 1", n)
	}
}

func TestSubmitTransactionMalformed(t *testing.T) {
	_, _, pool, srv := newTestBridge(t)
	resp, err := http.Post(srv.URL+"/client/submit_transaction", "application/cbor", bytes.NewReader([]byte{0xff, 0x01}))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed submit returned %d, want 400", resp.StatusCode)
	}
	if n := pool.LengthHashPool(); n != 0 {
		t.Fatal("malformed submit reached the pool")
	}
}

func TestFetchPendingTransaction(t *testing.T) {
	_, _, pool, srv := newTestBridge(t)
	txn, key := makeKVTxn(t, "a", []byte("1"), false)
	pool.Insert(key, txn)

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/client/fetch_pending_transaction", txn.Hash())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fetch returned %d", resp.StatusCode)
	}
	var got SignedTransaction
	if err := Deserialize(body, &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Hash() != txn.Hash() {
		t.Fatal("fetched transaction differs")
	}

	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/client/fetch_pending_transaction", Sum256([]byte("unknown")))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown hash returned %d, want 400", resp.StatusCode)
	}
}

func TestFetchChainEndpoints(t *testing.T) {
	_, store, _, srv := newTestBridge(t)

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/client/fetch_blockchain_length", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("length returned %d", resp.StatusCode)
	}
	var length uint64
	if err := Deserialize(body, &length); err != nil {
		t.Fatalf("decode length: %v", err)
	}
	if length != 0 {
		t.Fatalf("fresh chain length %d, want 0", length)
	}

	kp := GenerateKeypair()
	fork := store.Fork()
	genesis := NewSchemaFork(fork).InitializeDB(kp, nil)
	if err := store.CommitFork(fork); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	_, body = doRequest(t, http.MethodGet, srv.URL+"/peer/fetch_blockchain_length", nil)
	if err := Deserialize(body, &length); err != nil {
		t.Fatalf("decode length: %v", err)
	}
	if length != 1 {
		t.Fatalf("chain length %d after genesis, want 1", length)
	}

	// peer endpoint returns the raw block
	resp, body = doRequest(t, http.MethodGet, srv.URL+"/peer/fetch_block", uint64(0))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("peer fetch_block returned %d", resp.StatusCode)
	}
	var got SignedBlock
	if err := Deserialize(body, &got); err != nil {
		t.Fatalf("decode block: %v", err)
	}
	if got.Hash() != genesis.Hash() {
		t.Fatal("peer block differs from committed genesis")
	}

	// client endpoint returns the rendering
	_, body = doRequest(t, http.MethodGet, srv.URL+"/client/fetch_block", uint64(0))
	var rendered string
	if err := Deserialize(body, &rendered); err != nil {
		t.Fatalf("decode rendering: %v", err)
	}
	if rendered == "" {
		t.Fatal("empty block rendering")
	}

	// latest-block endpoints agree with height zero
	_, body = doRequest(t, http.MethodGet, srv.URL+"/peer/fetch_latest_block", nil)
	var latest SignedBlock
	if err := Deserialize(body, &latest); err != nil {
		t.Fatalf("decode latest: %v", err)
	}
	if latest.Hash() != genesis.Hash() {
		t.Fatal("latest block differs from genesis")
	}

	// out-of-range height
	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/client/fetch_block", uint64(9))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing block returned %d, want 400", resp.StatusCode)
	}
}

func TestFetchConfirmTransactionAndState(t *testing.T) {
	_, store, _, srv := newTestBridge(t)

	txn, _ := makeKVTxn(t, "alice", []byte("data"), false)
	fork := store.Fork()
	schema := NewSchemaFork(fork)
	schema.PutTxn(txn.Hash(), txn)
	entry := NewState()
	entry.SetData([]byte("data"))
	schema.Put("alice", entry)
	if err := store.CommitFork(fork); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/client/fetch_confirm_transaction", txn.Hash())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fetch_confirm returned %d", resp.StatusCode)
	}
	var got SignedTransaction
	if err := Deserialize(body, &got); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	if got.Hash() != txn.Hash() {
		t.Fatal("confirmed transaction differs")
	}

	resp, body = doRequest(t, http.MethodGet, srv.URL+"/client/fetch_state", "alice")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fetch_state returned %d", resp.StatusCode)
	}
	var gotEntry State
	if err := Deserialize(body, &gotEntry); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if string(gotEntry.GetData()) != "data" {
		t.Fatal("state entry differs")
	}

	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/client/fetch_state", "nobody")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown address returned %d, want 400", resp.StatusCode)
	}
}

func TestFetchProof(t *testing.T) {
	_, store, _, srv := newTestBridge(t)

	// two confirmed transactions so the trie has a real tree
	tx1, _ := makeKVTxn(t, "a", []byte("1"), false)
	tx2, _ := makeKVTxn(t, "b", []byte("2"), false)
	fork := store.Fork()
	schema := NewSchemaFork(fork)
	schema.PutTxn(tx1.Hash(), tx1)
	schema.PutTxn(tx2.Hash(), tx2)
	if err := store.CommitFork(fork); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/client/fetch_proof", tx1.Hash())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fetch_proof returned %d", resp.StatusCode)
	}
	var proof InclusionProof
	if err := Deserialize(body, &proof); err != nil {
		t.Fatalf("decode proof: %v", err)
	}

	// the proof must tie the transaction to the committed trie root
	snap := store.Snapshot()
	defer snap.Discard()
	if proof.Root != NewSchemaSnapshot(snap).TxnTrieRoot() {
		t.Fatal("proof root differs from the committed txn trie root")
	}
	value, err := Serialize(tx1)
	if err != nil {
		t.Fatalf("serialize transaction: %v", err)
	}
	hash := tx1.Hash()
	leaf := ProofLeaf(hash[:], value)
	if !VerifyMerklePath(proof.Root, leaf, proof.Proof, proof.Index) {
		t.Fatal("inclusion proof failed to verify")
	}

	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/client/fetch_proof", Sum256([]byte("unknown")))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown hash returned %d, want 400", resp.StatusCode)
	}
}
