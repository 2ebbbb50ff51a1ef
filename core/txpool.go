package core

// txpool.go – the dual-indexed mempool. The same set of transactions is
// reachable by content hash and by arrival order (the timestamp header); the
// two indices move together under one mutex. Lock windows stay short: block
// execution copies the order view first and runs against the fork without
// holding the pool lock.

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// TxnPoolKey orders the pool: the transaction's microsecond timestamp header.
type TxnPoolKey = uint64

// DefaultTxnsPerBlock caps how many transactions one block may execute.
const DefaultTxnsPerBlock = 15

// TransactionPool holds pending transactions until their block commits.
type TransactionPool struct {
	mu        sync.Mutex
	hashPool  map[Hash]*SignedTransaction
	orderPool map[TxnPoolKey]*SignedTransaction
}

func NewTransactionPool() *TransactionPool {
	return &TransactionPool{
		hashPool:  make(map[Hash]*SignedTransaction),
		orderPool: make(map[TxnPoolKey]*SignedTransaction),
	}
}

// Insert adds a transaction under the given order key. Insertion is
// idempotent on the transaction hash; an occupied order key slides forward
// until a free slot keeps both indices covering the same set.
func (tp *TransactionPool) Insert(key TxnPoolKey, txn *SignedTransaction) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	hash := txn.Hash()
	if _, exists := tp.hashPool[hash]; exists {
		return
	}
	for {
		if _, occupied := tp.orderPool[key]; !occupied {
			break
		}
		key++
	}
	tp.hashPool[hash] = txn
	tp.orderPool[key] = txn
}

// DeleteByHash removes a transaction from the hash index.
func (tp *TransactionPool) DeleteByHash(hash Hash) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	delete(tp.hashPool, hash)
}

// DeleteByOrder removes a transaction from the order index.
func (tp *TransactionPool) DeleteByOrder(key TxnPoolKey) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	delete(tp.orderPool, key)
}

// Get returns the pooled transaction with the given hash.
func (tp *TransactionPool) Get(hash Hash) (*SignedTransaction, bool) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	txn, ok := tp.hashPool[hash]
	return txn, ok
}

// LengthHashPool returns the size of the hash index.
func (tp *TransactionPool) LengthHashPool() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return len(tp.hashPool)
}

// LengthOrderPool returns the size of the order index.
func (tp *TransactionPool) LengthOrderPool() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return len(tp.orderPool)
}

// SyncCommitted removes the listed hashes from both indices. Called once the
// block containing them has committed.
func (tp *TransactionPool) SyncCommitted(hashes []Hash) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	for _, hash := range hashes {
		txn, ok := tp.hashPool[hash]
		if !ok {
			continue
		}
		delete(tp.hashPool, hash)
		if key, err := txn.OrderKey(); err == nil {
			if cur, ok := tp.orderPool[key]; ok && cur.Hash() == hash {
				delete(tp.orderPool, key)
			} else {
				// key slid forward on insert; scan for the entry
				for k, t := range tp.orderPool {
					if t.Hash() == hash {
						delete(tp.orderPool, k)
						break
					}
				}
			}
		}
	}
}

// Resurrect restores the listed hashes into the order index after a proposed
// block was rejected, so the transactions become proposable again.
func (tp *TransactionPool) Resurrect(hashes []Hash) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	for _, hash := range hashes {
		txn, ok := tp.hashPool[hash]
		if !ok {
			continue
		}
		key, err := txn.OrderKey()
		if err != nil {
			continue
		}
		present := false
		for {
			cur, occupied := tp.orderPool[key]
			if !occupied {
				break
			}
			if cur.Hash() == hash {
				present = true
				break
			}
			key++
		}
		if !present {
			tp.orderPool[key] = txn
		}
	}
}

type orderedTxn struct {
	key TxnPoolKey
	txn *SignedTransaction
}

// orderedCopy snapshots the order index sorted by key, keeping the lock
// window short.
func (tp *TransactionPool) orderedCopy() []orderedTxn {
	tp.mu.Lock()
	out := make([]orderedTxn, 0, len(tp.orderPool))
	for key, txn := range tp.orderPool {
		out = append(out, orderedTxn{key: key, txn: txn})
	}
	tp.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// ExecuteTransactions walks the order index ascending and executes each
// transaction through the registry against ctx, up to limit applied
// transactions. Failed transactions are skipped but stay pooled; they may
// succeed once earlier state changes land. Returns the applied hashes in
// execution order.
func (tp *TransactionPool) ExecuteTransactions(ctx StateContext, registry *AppRegistry, limit int) []Hash {
	return tp.executeSkipping(ctx, registry, limit, nil)
}

func (tp *TransactionPool) executeSkipping(ctx StateContext, registry *AppRegistry, limit int, skip map[Hash]struct{}) []Hash {
	if limit <= 0 {
		limit = DefaultTxnsPerBlock
	}
	executed := make([]Hash, 0, limit)
	for _, entry := range tp.orderedCopy() {
		if len(executed) >= limit {
			break
		}
		hash := entry.txn.Hash()
		if skip != nil {
			if _, done := skip[hash]; done {
				continue
			}
		}
		handler, ok := registry.Lookup(entry.txn.AppName)
		if !ok {
			logrus.Warnf("no app registered for %q, transaction %s skipped", entry.txn.AppName, hash)
			continue
		}
		if handler.Execute(entry.txn, ctx) {
			executed = append(executed, hash)
		}
	}
	return executed
}

// UpdateTransactions re-executes a committed block's hash list, reading from
// the hash index. A missing transaction or a failed execution rejects the
// whole list.
func (tp *TransactionPool) UpdateTransactions(ctx StateContext, registry *AppRegistry, hashes []Hash) bool {
	for _, hash := range hashes {
		txn, ok := tp.Get(hash)
		if !ok {
			logrus.Errorf("transaction %s not found for block execution", hash)
			return false
		}
		handler, ok := registry.Lookup(txn.AppName)
		if !ok {
			logrus.Errorf("no app registered for %q during block execution", txn.AppName)
			return false
		}
		if !handler.Execute(txn, ctx) {
			logrus.Errorf("transaction %s failed during block execution", hash)
			return false
		}
	}
	return true
}
