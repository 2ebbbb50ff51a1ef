package core

import (
	"errors"
)

// BuildMerkleTree returns the level-by-level nodes of a Merkle tree built from
// the provided leaves. Each leaf is hashed with SHA3-256. The last slice
// contains the single root hash.
func BuildMerkleTree(leaves [][]byte) ([][]Hash, error) {
	if len(leaves) == 0 {
		return nil, errors.New("no leaves")
	}

	// first level: hashed leaves
	level := make([]Hash, len(leaves))
	for i, l := range leaves {
		level[i] = Sum256(l)
	}

	tree := [][]Hash{level}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = Sum256(append(level[i][:], level[i+1][:]...))
		}
		tree = append(tree, next)
		level = next
	}

	return tree, nil
}

// MerkleRoot folds the leaves and returns only the root hash.
func MerkleRoot(leaves [][]byte) (Hash, error) {
	tree, err := BuildMerkleTree(leaves)
	if err != nil {
		return ZeroHash, err
	}
	return tree[len(tree)-1][0], nil
}

// MerkleProof returns a Merkle proof for the leaf at the given index along
// with the tree's root hash. The proof slice is ordered from leaf level
// upwards.
func MerkleProof(leaves [][]byte, index uint32) ([]Hash, Hash, error) {
	if len(leaves) == 0 {
		return nil, ZeroHash, errors.New("no leaves")
	}
	if int(index) >= len(leaves) {
		return nil, ZeroHash, errors.New("index out of range")
	}

	tree, err := BuildMerkleTree(leaves)
	if err != nil {
		return nil, ZeroHash, err
	}

	proof := make([]Hash, 0, len(tree)-1)
	idx := int(index)
	for i := 0; i < len(tree)-1; i++ {
		level := tree[i]
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		if idx%2 == 0 {
			proof = append(proof, level[idx+1])
		} else {
			proof = append(proof, level[idx-1])
		}
		idx /= 2
	}

	root := tree[len(tree)-1][0]
	return proof, root, nil
}

// VerifyMerklePath checks whether the supplied proof reconstructs the provided
// root for the given leaf and index. Proof hashes must be ordered from leaf
// upwards.
func VerifyMerklePath(root Hash, leaf []byte, proof []Hash, index uint32) bool {
	hash := Sum256(leaf)
	for _, p := range proof {
		if index%2 == 0 {
			hash = Sum256(append(hash[:], p[:]...))
		} else {
			hash = Sum256(append(p[:], hash[:]...))
		}
		index /= 2
	}
	return hash == root
}
