package core

// api.go – the HTTP validator bridge. Clients submit transactions and query
// chain state; peers fetch raw blocks for catch-up sync. Bodies and response
// bodies are canonical CBOR of the named types, except the human-facing
// block renderings.

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 4 << 20

// Bridge is the node's HTTP ingress.
type Bridge struct {
	store  *Store
	pool   *TransactionPool
	sender *MessageSender
}

func NewBridge(store *Store, pool *TransactionPool, sender *MessageSender) *Bridge {
	return &Bridge{store: store, pool: pool, sender: sender}
}

// Router assembles the bridge's route table.
func (b *Bridge) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)

	r.Post("/client/submit_transaction", b.submitTransaction)
	r.Get("/client/fetch_pending_transaction", b.fetchPendingTransaction)
	r.Get("/client/fetch_confirm_transaction", b.fetchConfirmTransaction)
	r.Get("/client/fetch_proof", b.fetchProof)
	r.Get("/client/fetch_state", b.fetchState)
	r.Get("/client/fetch_block", b.fetchBlock)
	r.Get("/client/fetch_latest_block", b.fetchLatestBlock)
	r.Get("/client/fetch_blockchain_length", b.fetchBlockchainLength)

	r.Get("/peer/fetch_block", b.fetchBlockPeer)
	r.Get("/peer/fetch_latest_block", b.fetchLatestBlockPeer)
	r.Get("/peer/fetch_blockchain_length", b.fetchBlockchainLength)

	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Serve blocks running the bridge on addr.
func (b *Bridge) Serve(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           b.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logrus.Infof("starting api service at %s", addr)
	return srv.ListenAndServe()
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		logrus.Debugf("request %s: %s %s from %s", id, r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func readBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "BadRequest", http.StatusBadRequest)
		return false
	}
	if err := Deserialize(data, v); err != nil {
		logrus.Warnf("malformed request body on %s: %v", r.URL.Path, err)
		http.Error(w, "BadRequest", http.StatusBadRequest)
		return false
	}
	return true
}

func writeBinary(w http.ResponseWriter, v interface{}) {
	data, err := Serialize(v)
	if err != nil {
		http.Error(w, "InternalError", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	_, _ = w.Write(data)
}

func (b *Bridge) submitTransaction(w http.ResponseWriter, r *http.Request) {
	var txn SignedTransaction
	if !readBody(w, r, &txn) {
		return
	}
	key, err := txn.OrderKey()
	if err != nil {
		logrus.Warnf("submitted transaction rejected: %v", err)
		http.Error(w, "BadRequest", http.StatusBadRequest)
		return
	}
	b.pool.Insert(key, &txn)
	ObservePool(b.pool)
	b.sender.SendTransaction(&txn)
	fmt.Fprint(w, "txn added in the pool")
}

func (b *Bridge) fetchPendingTransaction(w http.ResponseWriter, r *http.Request) {
	var hash Hash
	if !readBody(w, r, &hash) {
		return
	}
	txn, ok := b.pool.Get(hash)
	if !ok {
		http.Error(w, "BadRequest", http.StatusBadRequest)
		return
	}
	writeBinary(w, txn)
}

func (b *Bridge) fetchConfirmTransaction(w http.ResponseWriter, r *http.Request) {
	var hash Hash
	if !readBody(w, r, &hash) {
		return
	}
	snap := b.store.Snapshot()
	defer snap.Discard()
	txn, ok := NewSchemaSnapshot(snap).GetTransaction(hash)
	if !ok {
		http.Error(w, "BadRequest", http.StatusBadRequest)
		return
	}
	writeBinary(w, txn)
}

func (b *Bridge) fetchProof(w http.ResponseWriter, r *http.Request) {
	var hash Hash
	if !readBody(w, r, &hash) {
		return
	}
	snap := b.store.Snapshot()
	defer snap.Discard()
	proof, ok := snap.Proof(IndexTransactions, hash[:])
	if !ok {
		http.Error(w, "BadRequest", http.StatusBadRequest)
		return
	}
	writeBinary(w, &proof)
}

func (b *Bridge) fetchState(w http.ResponseWriter, r *http.Request) {
	var address string
	if !readBody(w, r, &address) {
		return
	}
	snap := b.store.Snapshot()
	defer snap.Discard()
	entry, ok := NewSchemaSnapshot(snap).GetState(address)
	if !ok {
		http.Error(w, "BadRequest", http.StatusBadRequest)
		return
	}
	writeBinary(w, entry)
}

func (b *Bridge) lookupBlock(w http.ResponseWriter, r *http.Request) (*SignedBlock, bool) {
	var height uint64
	if !readBody(w, r, &height) {
		return nil, false
	}
	snap := b.store.Snapshot()
	defer snap.Discard()
	block, ok := NewSchemaSnapshot(snap).GetBlock(height)
	if !ok {
		http.Error(w, "BadRequest", http.StatusBadRequest)
		return nil, false
	}
	return block, true
}

func (b *Bridge) fetchBlock(w http.ResponseWriter, r *http.Request) {
	block, ok := b.lookupBlock(w, r)
	if !ok {
		return
	}
	writeBinary(w, block.StringFormat())
}

func (b *Bridge) fetchBlockPeer(w http.ResponseWriter, r *http.Request) {
	block, ok := b.lookupBlock(w, r)
	if !ok {
		return
	}
	writeBinary(w, block)
}

func (b *Bridge) latestBlock(w http.ResponseWriter) (*SignedBlock, bool) {
	snap := b.store.Snapshot()
	defer snap.Discard()
	block, ok := NewSchemaSnapshot(snap).GetRootBlock()
	if !ok {
		http.Error(w, "BadRequest", http.StatusBadRequest)
		return nil, false
	}
	return block, true
}

func (b *Bridge) fetchLatestBlock(w http.ResponseWriter, r *http.Request) {
	block, ok := b.latestBlock(w)
	if !ok {
		return
	}
	writeBinary(w, block.StringFormat())
}

func (b *Bridge) fetchLatestBlockPeer(w http.ResponseWriter, r *http.Request) {
	block, ok := b.latestBlock(w)
	if !ok {
		return
	}
	writeBinary(w, block)
}

func (b *Bridge) fetchBlockchainLength(w http.ResponseWriter, r *http.Request) {
	snap := b.store.Snapshot()
	defer snap.Discard()
	writeBinary(w, NewSchemaSnapshot(snap).BlockchainLength())
}
