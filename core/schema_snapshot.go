package core

// schema_snapshot.go – the typed read-only view over a store snapshot, used
// by the bridge, by chain sync and by consensus checks against committed
// state.

// SchemaSnapshot exposes the four indices of a snapshot under their chain
// types.
type SchemaSnapshot struct {
	snap *Snapshot
}

func NewSchemaSnapshot(sn *Snapshot) *SchemaSnapshot {
	return &SchemaSnapshot{snap: sn}
}

// IsDBInitialized reports whether genesis has been written.
func (s *SchemaSnapshot) IsDBInitialized() bool {
	return s.BlockchainLength() > 0
}

func (s *SchemaSnapshot) StateTrieRoot() Hash   { return s.snap.Root(IndexStateTrie) }
func (s *SchemaSnapshot) StorageTrieRoot() Hash { return s.snap.Root(IndexStorageTrie) }
func (s *SchemaSnapshot) TxnTrieRoot() Hash     { return s.snap.Root(IndexTransactions) }

// GetTransaction returns a confirmed transaction from the transaction trie.
func (s *SchemaSnapshot) GetTransaction(hash Hash) (*SignedTransaction, bool) {
	raw, ok := s.snap.Get(IndexTransactions, hash[:])
	if !ok {
		return nil, false
	}
	var txn SignedTransaction
	if err := Deserialize(raw, &txn); err != nil {
		return nil, false
	}
	return &txn, true
}

// GetState returns the state entry stored under address.
func (s *SchemaSnapshot) GetState(address string) (*State, bool) {
	raw, ok := s.snap.Get(IndexStateTrie, []byte(address))
	if !ok {
		return nil, false
	}
	var entry State
	if err := Deserialize(raw, &entry); err != nil {
		return nil, false
	}
	return &entry, true
}

// BlockchainLength returns the number of committed blocks.
func (s *SchemaSnapshot) BlockchainLength() uint64 {
	return s.snap.ListLen(IndexBlocks)
}

// GetBlock returns the committed block at the given height.
func (s *SchemaSnapshot) GetBlock(height uint64) (*SignedBlock, bool) {
	raw, ok := s.snap.ListGet(IndexBlocks, height)
	if !ok {
		return nil, false
	}
	var sb SignedBlock
	if err := Deserialize(raw, &sb); err != nil {
		return nil, false
	}
	return &sb, true
}

// GetRootBlock returns the committed tail block.
func (s *SchemaSnapshot) GetRootBlock() (*SignedBlock, bool) {
	length := s.BlockchainLength()
	if length == 0 {
		return nil, false
	}
	return s.GetBlock(length - 1)
}

// GetRootBlockHash returns the tail block's hash, or the zero hash for an
// empty chain.
func (s *SchemaSnapshot) GetRootBlockHash() Hash {
	root, ok := s.GetRootBlock()
	if !ok {
		return ZeroHash
	}
	return root.Hash()
}
