package core

// sync.go – opportunistic catch-up over the HTTP bridge of an advertised
// peer. The node fetches the remote chain length, then walks the missing
// heights block by block, pulling each block's referenced transactions into
// the pool before validating and committing it. Sync stops at the first gap
// or verification failure; the overlay fills the rest in live operation.

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// SyncClient talks to peer bridges.
type SyncClient struct {
	http     *http.Client
	store    *Store
	pool     *TransactionPool
	registry *AppRegistry
}

func NewSyncClient(store *Store, pool *TransactionPool, registry *AppRegistry) *SyncClient {
	return &SyncClient{
		http:     &http.Client{Timeout: 10 * time.Second},
		store:    store,
		pool:     pool,
		registry: registry,
	}
}

func (sc *SyncClient) request(base, path string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		data, err := Serialize(body)
		if err != nil {
			return err
		}
		payload = data
	}
	req, err := http.NewRequest(http.MethodGet, base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	resp, err := sc.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %s", path, resp.Status)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	return Deserialize(raw, out)
}

func (sc *SyncClient) fetchLength(base string) (uint64, error) {
	var length uint64
	err := sc.request(base, "/peer/fetch_blockchain_length", nil, &length)
	return length, err
}

func (sc *SyncClient) fetchBlock(base string, height uint64) (*SignedBlock, error) {
	var block SignedBlock
	err := sc.request(base, "/peer/fetch_block", height, &block)
	return &block, err
}

func (sc *SyncClient) fetchConfirmTxn(base string, hash Hash) (*SignedTransaction, error) {
	var txn SignedTransaction
	err := sc.request(base, "/client/fetch_confirm_transaction", hash, &txn)
	return &txn, err
}

// SyncState catches the local chain up from the first reachable peer. A
// partial sync is not an error; the node resumes from wherever it stopped.
func (sc *SyncClient) SyncState(peerURLs []string) error {
	for _, base := range peerURLs {
		if err := sc.syncFrom(base); err != nil {
			logrus.Warnf("sync from %s stopped: %v", base, err)
			continue
		}
		return nil
	}
	if len(peerURLs) == 0 {
		logrus.Info("no peers advertised, skipping state sync")
		return nil
	}
	return fmt.Errorf("state sync failed against all %d peers", len(peerURLs))
}

func (sc *SyncClient) syncFrom(base string) error {
	target, err := sc.fetchLength(base)
	if err != nil {
		return fmt.Errorf("fetch blockchain length: %w", err)
	}

	snap := sc.store.Snapshot()
	local := NewSchemaSnapshot(snap).BlockchainLength()
	snap.Discard()

	if local >= target {
		logrus.Infof("local chain height %d is current with %s", local, base)
		return nil
	}
	logrus.Infof("syncing heights %d..%d from %s", local, target-1, base)

	for height := local; height < target; height++ {
		block, err := sc.fetchBlock(base, height)
		if err != nil {
			return fmt.Errorf("fetch block %d: %w", height, err)
		}
		for _, hash := range block.Block.TxnPool {
			if _, pooled := sc.pool.Get(hash); pooled {
				continue
			}
			txn, err := sc.fetchConfirmTxn(base, hash)
			if err != nil {
				return fmt.Errorf("fetch transaction %s of block %d: %w", hash, height, err)
			}
			key, err := txn.OrderKey()
			if err != nil {
				return fmt.Errorf("transaction %s of block %d: %w", hash, height, err)
			}
			sc.pool.Insert(key, txn)
		}

		fork := sc.store.Fork()
		schema := NewSchemaFork(fork)
		if !schema.UpdateBlock(block, sc.pool, sc.registry) {
			fork.Discard()
			return fmt.Errorf("block %d from %s failed validation", height, base)
		}
		if err := sc.store.CommitFork(fork); err != nil {
			return err
		}
		sc.pool.SyncCommitted(block.Block.TxnPool)
	}
	logrus.Infof("synced to height %d from %s", target, base)
	return nil
}
