package core

// store.go – the persistent, Merkleized store. Badger supplies the raw
// key/value layer; on top of it the store exposes four named indices (three
// proof maps and the append-only block list) through three views:
//
//   Snapshot – read-only, consistent view of the committed state.
//   Fork     – mutable overlay over a snapshot; invisible until patched.
//   Patch    – the overlay detached from its fork, applied atomically.
//
// Patches are serialized by the store's commit mutex; forks and snapshots may
// be taken concurrently without further locking.

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// Names of the persisted indices.
const (
	IndexTransactions = "transactions"
	IndexBlocks       = "blocks"
	IndexStateTrie    = "state_trie"
	IndexStorageTrie  = "storage_trie"
)

// proofMapIndices are the indices whose contents roll up into a Merkle root.
var proofMapIndices = []string{IndexTransactions, IndexStateTrie, IndexStorageTrie}

const listLenKey = "len"

// Store owns the on-disk mapping exclusively.
type Store struct {
	db       *badger.DB
	commitMu sync.Mutex
}

// OpenStore opens (or creates) the store at path.
func OpenStore(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func physicalKey(index string, key []byte) []byte {
	out := make([]byte, 0, len(index)+1+len(key))
	out = append(out, index...)
	out = append(out, '/')
	return append(out, key...)
}

func indexPrefix(index string) []byte {
	return append([]byte(index), '/')
}

func listEntryKey(i uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], i)
	return buf[:]
}

// ---------------------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------------------

// Snapshot is a read-only consistent view of the committed store. Callers
// must Discard it when done.
type Snapshot struct {
	txn *badger.Txn
}

// Snapshot opens a read view over the committed state.
func (s *Store) Snapshot() *Snapshot {
	return &Snapshot{txn: s.db.NewTransaction(false)}
}

func (sn *Snapshot) Discard() {
	sn.txn.Discard()
}

func (sn *Snapshot) get(index string, key []byte) ([]byte, bool) {
	item, err := sn.txn.Get(physicalKey(index, key))
	if err != nil {
		return nil, false
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false
	}
	return val, true
}

// indexPairs returns every key/value of an index, keys relative to the index
// prefix, sorted by key.
func (sn *Snapshot) indexPairs(index string) []kvPair {
	prefix := indexPrefix(index)
	var pairs []kvPair
	it := sn.txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := append([]byte(nil), item.Key()[len(prefix):]...)
		val, err := item.ValueCopy(nil)
		if err != nil {
			continue
		}
		pairs = append(pairs, kvPair{key: key, value: val})
	}
	sort.Slice(pairs, func(i, j int) bool { return bytes.Compare(pairs[i].key, pairs[j].key) < 0 })
	return pairs
}

// Root returns the Merkle root of a proof-map index.
func (sn *Snapshot) Root(index string) Hash {
	return rootOfPairs(sn.indexPairs(index))
}

// Proof returns the Merkle inclusion proof for key in a proof-map index,
// along with the index root and the key's leaf position. Clients rebuild the
// leaf with ProofLeaf and check it with VerifyMerklePath.
func (sn *Snapshot) Proof(index string, key []byte) (InclusionProof, bool) {
	pairs := sn.indexPairs(index)
	position := -1
	for i, p := range pairs {
		if bytes.Equal(p.key, key) {
			position = i
			break
		}
	}
	if position < 0 {
		return InclusionProof{}, false
	}
	proof, root, err := MerkleProof(leavesOfPairs(pairs), uint32(position))
	if err != nil {
		return InclusionProof{}, false
	}
	return InclusionProof{Index: uint32(position), Proof: proof, Root: root}, true
}

// ListLen returns the length of a list index.
func (sn *Snapshot) ListLen(index string) uint64 {
	raw, ok := sn.get(index, []byte(listLenKey))
	if !ok || len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

// ListGet returns entry i of a list index.
func (sn *Snapshot) ListGet(index string, i uint64) ([]byte, bool) {
	return sn.get(index, listEntryKey(i))
}

// Get returns the value stored under key in a proof-map index.
func (sn *Snapshot) Get(index string, key []byte) ([]byte, bool) {
	return sn.get(index, key)
}

// ---------------------------------------------------------------------------
// Fork
// ---------------------------------------------------------------------------

type kvPair struct {
	key   []byte
	value []byte
}

// Fork is a mutable staging view over the committed state. A fork discarded
// without patching has no effect.
type Fork struct {
	base    *Snapshot
	writes  map[string][]byte
	deletes map[string]struct{}
	cleared map[string]bool

	rootCache map[string]Hash
	rootDirty map[string]bool
}

// Fork opens a staging view derived from the current committed state.
func (s *Store) Fork() *Fork {
	return &Fork{
		base:      s.Snapshot(),
		writes:    make(map[string][]byte),
		deletes:   make(map[string]struct{}),
		cleared:   make(map[string]bool),
		rootCache: make(map[string]Hash),
		rootDirty: make(map[string]bool),
	}
}

// Discard drops the fork without touching the committed state.
func (f *Fork) Discard() {
	f.base.Discard()
}

func (f *Fork) markDirty(index string) {
	for _, name := range proofMapIndices {
		if name == index {
			f.rootDirty[index] = true
			return
		}
	}
}

// Put stages a write into an index.
func (f *Fork) Put(index string, key, value []byte) {
	pk := string(physicalKey(index, key))
	f.writes[pk] = append([]byte(nil), value...)
	delete(f.deletes, pk)
	f.markDirty(index)
}

// Delete stages a removal from an index.
func (f *Fork) Delete(index string, key []byte) {
	pk := string(physicalKey(index, key))
	delete(f.writes, pk)
	f.deletes[pk] = struct{}{}
	f.markDirty(index)
}

// Clear stages the removal of every entry of an index.
func (f *Fork) Clear(index string) {
	f.cleared[index] = true
	prefix := string(indexPrefix(index))
	for pk := range f.writes {
		if len(pk) >= len(prefix) && pk[:len(prefix)] == prefix {
			delete(f.writes, pk)
		}
	}
	f.markDirty(index)
}

// Get reads through the overlay into the base snapshot.
func (f *Fork) Get(index string, key []byte) ([]byte, bool) {
	pk := string(physicalKey(index, key))
	if val, ok := f.writes[pk]; ok {
		return val, true
	}
	if _, ok := f.deletes[pk]; ok {
		return nil, false
	}
	if f.cleared[index] {
		return nil, false
	}
	return f.base.get(index, key)
}

// Contains reports whether key is present in index through the overlay.
func (f *Fork) Contains(index string, key []byte) bool {
	_, ok := f.Get(index, key)
	return ok
}

// indexPairs merges the base contents with the overlay, sorted by key.
func (f *Fork) indexPairs(index string) []kvPair {
	merged := make(map[string][]byte)
	if !f.cleared[index] {
		for _, p := range f.base.indexPairs(index) {
			merged[string(p.key)] = p.value
		}
	}
	prefix := string(indexPrefix(index))
	for pk, val := range f.writes {
		if len(pk) >= len(prefix) && pk[:len(prefix)] == prefix {
			merged[pk[len(prefix):]] = val
		}
	}
	for pk := range f.deletes {
		if len(pk) >= len(prefix) && pk[:len(prefix)] == prefix {
			delete(merged, pk[len(prefix):])
		}
	}
	pairs := make([]kvPair, 0, len(merged))
	for k, v := range merged {
		pairs = append(pairs, kvPair{key: []byte(k), value: v})
	}
	sort.Slice(pairs, func(i, j int) bool { return bytes.Compare(pairs[i].key, pairs[j].key) < 0 })
	return pairs
}

// Root returns the Merkle root of a proof-map index as seen through the
// overlay. Roots are recomputed after any staged mutation of the index.
func (f *Fork) Root(index string) Hash {
	if !f.rootDirty[index] {
		if root, ok := f.rootCache[index]; ok {
			return root
		}
	}
	root := rootOfPairs(f.indexPairs(index))
	f.rootCache[index] = root
	f.rootDirty[index] = false
	return root
}

// ListLen returns the overlay-aware length of a list index.
func (f *Fork) ListLen(index string) uint64 {
	raw, ok := f.Get(index, []byte(listLenKey))
	if !ok || len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

// ListGet returns entry i of a list index through the overlay.
func (f *Fork) ListGet(index string, i uint64) ([]byte, bool) {
	return f.Get(index, listEntryKey(i))
}

// ListPush appends value to a list index.
func (f *Fork) ListPush(index string, value []byte) {
	n := f.ListLen(index)
	f.Put(index, listEntryKey(n), value)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n+1)
	f.Put(index, []byte(listLenKey), buf[:])
}

// IntoPatch detaches the staged mutations from the fork. The fork's base view
// is released; the fork must not be used afterwards.
func (f *Fork) IntoPatch() *Patch {
	f.base.Discard()
	return &Patch{
		writes:  f.writes,
		deletes: f.deletes,
		cleared: f.cleared,
	}
}

// ---------------------------------------------------------------------------
// Patch
// ---------------------------------------------------------------------------

// Patch is an atomic set of mutations ready to merge into the committed
// state.
type Patch struct {
	writes  map[string][]byte
	deletes map[string]struct{}
	cleared map[string]bool
}

// Commit merges a patch into the committed store. Only one patch at a time
// may advance the committed state.
func (s *Store) Commit(p *Patch) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		for index := range p.cleared {
			prefix := indexPrefix(index)
			it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
			var stale [][]byte
			for it.Rewind(); it.Valid(); it.Next() {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
			it.Close()
			for _, key := range stale {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
		}
		for pk := range p.deletes {
			if err := txn.Delete([]byte(pk)); err != nil {
				return err
			}
		}
		for pk, val := range p.writes {
			if err := txn.Set([]byte(pk), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logrus.Errorf("store patch failed: %v", err)
		return fmt.Errorf("commit patch: %w", err)
	}
	return nil
}

// CommitFork is the common fork-then-patch tail: it converts the fork and
// commits it in one step.
func (s *Store) CommitFork(f *Fork) error {
	return s.Commit(f.IntoPatch())
}

// InclusionProof carries everything but the value needed to check a
// proof-map entry against its root.
type InclusionProof struct {
	Index uint32 `cbor:"index"`
	Proof []Hash `cbor:"proof"`
	Root  Hash   `cbor:"root"`
}

// ProofLeaf builds the Merkle leaf of one proof-map entry: the key followed
// by the value digest.
func ProofLeaf(key, value []byte) []byte {
	vh := Sum256(value)
	leaf := make([]byte, 0, len(key)+len(vh))
	leaf = append(leaf, key...)
	return append(leaf, vh[:]...)
}

func leavesOfPairs(pairs []kvPair) [][]byte {
	leaves := make([][]byte, len(pairs))
	for i, p := range pairs {
		leaves[i] = ProofLeaf(p.key, p.value)
	}
	return leaves
}

// rootOfPairs folds sorted key/value pairs into the proof-map root. An empty
// map has the zero root.
func rootOfPairs(pairs []kvPair) Hash {
	if len(pairs) == 0 {
		return ZeroHash
	}
	root, err := MerkleRoot(leavesOfPairs(pairs))
	if err != nil {
		return ZeroHash
	}
	return root
}
