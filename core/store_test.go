package core

import (
	"testing"
)

func TestForkInvisibleUntilPatched(t *testing.T) {
	store := newTestStore(t)

	fork := store.Fork()
	fork.Put(IndexStateTrie, []byte("alice"), []byte("v1"))

	snap := store.Snapshot()
	if _, ok := snap.Get(IndexStateTrie, []byte("alice")); ok {
		t.Fatal("fork write visible before patch")
	}
	snap.Discard()

	if err := store.CommitFork(fork); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	snap = store.Snapshot()
	defer snap.Discard()
	val, ok := snap.Get(IndexStateTrie, []byte("alice"))
	if !ok || string(val) != "v1" {
		t.Fatalf("committed value missing, got %q ok=%v", val, ok)
	}
}

func TestForkDiscardHasNoEffect(t *testing.T) {
	store := newTestStore(t)

	fork := store.Fork()
	fork.Put(IndexStateTrie, []byte("bob"), []byte("v"))
	fork.Discard()

	snap := store.Snapshot()
	defer snap.Discard()
	if _, ok := snap.Get(IndexStateTrie, []byte("bob")); ok {
		t.Fatal("discarded fork leaked into committed state")
	}
}

func TestForkReadsOwnWrites(t *testing.T) {
	store := newTestStore(t)

	fork := store.Fork()
	defer fork.Discard()
	fork.Put(IndexStateTrie, []byte("carol"), []byte("v"))
	if val, ok := fork.Get(IndexStateTrie, []byte("carol")); !ok || string(val) != "v" {
		t.Fatal("fork cannot read its own write")
	}
	fork.Delete(IndexStateTrie, []byte("carol"))
	if _, ok := fork.Get(IndexStateTrie, []byte("carol")); ok {
		t.Fatal("deleted key still readable")
	}
}

func TestClearIndex(t *testing.T) {
	store := newTestStore(t)

	fork := store.Fork()
	fork.Put(IndexStateTrie, []byte("a"), []byte("1"))
	fork.Put(IndexStorageTrie, []byte("b"), []byte("2"))
	if err := store.CommitFork(fork); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	fork = store.Fork()
	fork.Clear(IndexStateTrie)
	if _, ok := fork.Get(IndexStateTrie, []byte("a")); ok {
		t.Fatal("cleared index still serves base data")
	}
	if err := store.CommitFork(fork); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	snap := store.Snapshot()
	defer snap.Discard()
	if _, ok := snap.Get(IndexStateTrie, []byte("a")); ok {
		t.Fatal("clear did not persist")
	}
	if _, ok := snap.Get(IndexStorageTrie, []byte("b")); !ok {
		t.Fatal("clear wiped an unrelated index")
	}
}

func TestRootChangesOnMutation(t *testing.T) {
	store := newTestStore(t)

	fork := store.Fork()
	defer fork.Discard()
	if root := fork.Root(IndexStateTrie); root != ZeroHash {
		t.Fatalf("empty index must have the zero root, got %s", root)
	}
	fork.Put(IndexStateTrie, []byte("a"), []byte("1"))
	rootOne := fork.Root(IndexStateTrie)
	if rootOne == ZeroHash {
		t.Fatal("root unchanged after write")
	}
	fork.Put(IndexStateTrie, []byte("b"), []byte("2"))
	rootTwo := fork.Root(IndexStateTrie)
	if rootTwo == rootOne {
		t.Fatal("root unchanged after second write")
	}
	fork.Delete(IndexStateTrie, []byte("b"))
	if root := fork.Root(IndexStateTrie); root != rootOne {
		t.Fatal("root did not return to prior value after delete")
	}
}

func TestRootMatchesAcrossViews(t *testing.T) {
	store := newTestStore(t)

	fork := store.Fork()
	fork.Put(IndexStateTrie, []byte("x"), []byte("1"))
	fork.Put(IndexStateTrie, []byte("y"), []byte("2"))
	forkRoot := fork.Root(IndexStateTrie)
	if err := store.CommitFork(fork); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	snap := store.Snapshot()
	defer snap.Discard()
	if snapRoot := snap.Root(IndexStateTrie); snapRoot != forkRoot {
		t.Fatalf("snapshot root %s differs from fork root %s", snapRoot, forkRoot)
	}
}

func TestListPushAndGet(t *testing.T) {
	store := newTestStore(t)

	fork := store.Fork()
	if n := fork.ListLen(IndexBlocks); n != 0 {
		t.Fatalf("fresh list length %d", n)
	}
	fork.ListPush(IndexBlocks, []byte("block-0"))
	fork.ListPush(IndexBlocks, []byte("block-1"))
	if n := fork.ListLen(IndexBlocks); n != 2 {
		t.Fatalf("list length %d, want 2", n)
	}
	if val, ok := fork.ListGet(IndexBlocks, 1); !ok || string(val) != "block-1" {
		t.Fatalf("entry 1 = %q ok=%v", val, ok)
	}
	if err := store.CommitFork(fork); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	snap := store.Snapshot()
	defer snap.Discard()
	if n := snap.ListLen(IndexBlocks); n != 2 {
		t.Fatalf("committed list length %d, want 2", n)
	}
	if val, ok := snap.ListGet(IndexBlocks, 0); !ok || string(val) != "block-0" {
		t.Fatalf("committed entry 0 = %q ok=%v", val, ok)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	fork := store.Fork()
	fork.ListPush(IndexBlocks, []byte("persisted"))
	if err := store.CommitFork(fork); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()
	snap := reopened.Snapshot()
	defer snap.Discard()
	if val, ok := snap.ListGet(IndexBlocks, 0); !ok || string(val) != "persisted" {
		t.Fatalf("data lost across reopen, got %q ok=%v", val, ok)
	}
}
