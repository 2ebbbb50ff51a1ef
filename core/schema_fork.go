package core

// schema_fork.go – the typed view over a store fork: genesis, block forging,
// block validation, and the StateContext the applications mutate state
// through. Every write stays inside the fork until the caller patches it.

import (
	"crypto/ed25519"
	"time"

	"github.com/sirupsen/logrus"
)

// forgePollInterval paces the wait for late transactions while a forge's
// elapsed-time cutoff has not expired.
const forgePollInterval = 50 * time.Millisecond

// SchemaFork exposes the four indices of a fork under their chain types.
type SchemaFork struct {
	fork *Fork
}

func NewSchemaFork(f *Fork) *SchemaFork {
	return &SchemaFork{fork: f}
}

// ---------------------------------------------------------------------------
// Merkle roots
// ---------------------------------------------------------------------------

func (s *SchemaFork) StateTrieRoot() Hash   { return s.fork.Root(IndexStateTrie) }
func (s *SchemaFork) StorageTrieRoot() Hash { return s.fork.Root(IndexStorageTrie) }
func (s *SchemaFork) TxnTrieRoot() Hash     { return s.fork.Root(IndexTransactions) }

func (s *SchemaFork) headerRoots() [3]Hash {
	var header [3]Hash
	header[HeaderStateTrie] = s.StateTrieRoot()
	header[HeaderStorageTrie] = s.StorageTrieRoot()
	header[HeaderTxnTrie] = s.TxnTrieRoot()
	return header
}

// ---------------------------------------------------------------------------
// StateContext
// ---------------------------------------------------------------------------

// Put stores a state entry under address.
func (s *SchemaFork) Put(address string, entry *State) {
	data, err := Serialize(entry)
	if err != nil {
		logrus.Errorf("state entry for %s could not be encoded: %v", address, err)
		return
	}
	s.fork.Put(IndexStateTrie, []byte(address), data)
}

// Get returns the state entry stored under address.
func (s *SchemaFork) Get(address string) (*State, bool) {
	raw, ok := s.fork.Get(IndexStateTrie, []byte(address))
	if !ok {
		return nil, false
	}
	var entry State
	if err := Deserialize(raw, &entry); err != nil {
		return nil, false
	}
	return &entry, true
}

func (s *SchemaFork) Contains(address string) bool {
	return s.fork.Contains(IndexStateTrie, []byte(address))
}

// PutTxn records a confirmed transaction in the transaction trie.
func (s *SchemaFork) PutTxn(hash Hash, txn *SignedTransaction) {
	data, err := Serialize(txn)
	if err != nil {
		logrus.Errorf("transaction %s could not be encoded: %v", hash, err)
		return
	}
	s.fork.Put(IndexTransactions, hash[:], data)
}

func (s *SchemaFork) GetTxn(hash Hash) (*SignedTransaction, bool) {
	raw, ok := s.fork.Get(IndexTransactions, hash[:])
	if !ok {
		return nil, false
	}
	var txn SignedTransaction
	if err := Deserialize(raw, &txn); err != nil {
		return nil, false
	}
	return &txn, true
}

func (s *SchemaFork) ContainsTxn(hash Hash) bool {
	return s.fork.Contains(IndexTransactions, hash[:])
}

var _ StateContext = (*SchemaFork)(nil)

// ---------------------------------------------------------------------------
// Block list
// ---------------------------------------------------------------------------

// BlockchainLength returns the number of blocks through the fork's overlay.
func (s *SchemaFork) BlockchainLength() uint64 {
	return s.fork.ListLen(IndexBlocks)
}

// BlockAt returns the signed block at the given height.
func (s *SchemaFork) BlockAt(height uint64) (*SignedBlock, bool) {
	raw, ok := s.fork.ListGet(IndexBlocks, height)
	if !ok {
		return nil, false
	}
	var sb SignedBlock
	if err := Deserialize(raw, &sb); err != nil {
		return nil, false
	}
	return &sb, true
}

func (s *SchemaFork) pushBlock(sb *SignedBlock) {
	data, err := Serialize(sb)
	if err != nil {
		logrus.Errorf("block %d could not be encoded: %v", sb.Block.ID, err)
		return
	}
	s.fork.ListPush(IndexBlocks, data)
}

// ---------------------------------------------------------------------------
// Genesis
// ---------------------------------------------------------------------------

// InitializeDB clears every index and installs the signed genesis block:
// height zero, zero predecessor, no transactions, headers equal to the
// empty-trie roots.
func (s *SchemaFork) InitializeDB(kp ed25519.PrivateKey, authHeaders []byte) *SignedBlock {
	s.fork.Clear(IndexStateTrie)
	s.fork.Clear(IndexTransactions)
	s.fork.Clear(IndexStorageTrie)
	s.fork.Clear(IndexBlocks)

	block := GenesisBlock(PublicKeyHex(kp), authHeaders)
	block.Header = s.headerRoots()
	signed := CreateSignedBlock(block, block.Sign(kp))
	s.pushBlock(signed)
	return signed
}

// ---------------------------------------------------------------------------
// Propose
// ---------------------------------------------------------------------------

// CreateBlock force-seals a block: it executes whatever the pool holds right
// now (up to the per-block cap) and seals immediately, even empty.
func (s *SchemaFork) CreateBlock(kp ed25519.PrivateKey, pool *TransactionPool, registry *AppRegistry, authHeaders []byte) *SignedBlock {
	executed := pool.ExecuteTransactions(s, registry, DefaultTxnsPerBlock)
	return s.sealBlock(kp, executed, authHeaders)
}

// ForgeNewBlock executes pool transactions until the per-block cap or the
// elapsed-time cutoff, whichever comes first, then seals. With an empty pool
// it waits out the full cutoff before sealing.
func (s *SchemaFork) ForgeNewBlock(kp ed25519.PrivateKey, pool *TransactionPool, registry *AppRegistry, authHeaders []byte, timeLimit time.Duration) *SignedBlock {
	deadline := time.Now().Add(timeLimit)
	executed := make([]Hash, 0, DefaultTxnsPerBlock)
	done := make(map[Hash]struct{})
	for {
		batch := pool.executeSkipping(s, registry, DefaultTxnsPerBlock-len(executed), done)
		for _, hash := range batch {
			done[hash] = struct{}{}
		}
		executed = append(executed, batch...)
		if len(executed) >= DefaultTxnsPerBlock || !time.Now().Before(deadline) {
			break
		}
		time.Sleep(forgePollInterval)
	}
	return s.sealBlock(kp, executed, authHeaders)
}

func (s *SchemaFork) sealBlock(kp ed25519.PrivateKey, executed []Hash, authHeaders []byte) *SignedBlock {
	logrus.Debugf("txn count in proposed block %d", len(executed))
	length := s.BlockchainLength()
	last, ok := s.BlockAt(length - 1)
	if !ok {
		logrus.Errorf("block list empty, cannot seal on top of nothing")
		return nil
	}
	block := NewBlock(length, PublicKeyHex(kp), last.Hash(), executed, s.headerRoots(), authHeaders)
	signed := CreateSignedBlock(block, block.Sign(kp))
	s.pushBlock(signed)
	return signed
}

// ---------------------------------------------------------------------------
// Validate and append
// ---------------------------------------------------------------------------

// UpdateBlock verifies a foreign block against the fork and, on success,
// appends it: height must equal the current length, the signature must
// verify under the declared proposer, prev_hash must reference the stored
// tail, the transaction list must re-execute from the pool, and the three
// recomputed roots must equal the header. Any mismatch rejects the block.
func (s *SchemaFork) UpdateBlock(signed *SignedBlock, pool *TransactionPool, registry *AppRegistry) bool {
	length := s.BlockchainLength()
	block := &signed.Block

	if block.ID != length {
		logrus.Warnf("block height %d does not match blockchain height %d", block.ID, length)
		return false
	}
	if !signed.Validate() {
		logrus.Warnf("block %d signature could not be verified for proposer %s", block.ID, block.PeerID)
		return false
	}

	if block.ID == 0 {
		if !block.PrevHash.IsZero() {
			logrus.Warn("genesis block must reference the zero predecessor")
			return false
		}
	} else {
		last, ok := s.BlockAt(length - 1)
		if !ok {
			logrus.Errorf("stored tail at height %d missing", length-1)
			return false
		}
		if prev := last.Hash(); prev != block.PrevHash {
			logrus.Warnf("block prev_hash %s does not match chain root %s", block.PrevHash, prev)
			return false
		}
		if !pool.UpdateTransactions(s, registry, block.TxnPool) {
			logrus.Warn("block txn_pool could not be executed, block declined")
			return false
		}
	}

	header := s.headerRoots()
	if header[HeaderStateTrie] != block.Header[HeaderStateTrie] {
		logrus.Warn("block header state_trie merkle root mismatch")
		return false
	}
	if header[HeaderStorageTrie] != block.Header[HeaderStorageTrie] {
		logrus.Warn("block header storage_trie merkle root mismatch")
		return false
	}
	if header[HeaderTxnTrie] != block.Header[HeaderTxnTrie] {
		logrus.Warn("block header txn_trie merkle root mismatch")
		return false
	}

	s.pushBlock(signed)
	return true
}
