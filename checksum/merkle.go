package checksum

import (
	"crypto/sha256"

	"github.com/libsv/go-bt/v2/chainhash"
	"github.com/opnet-chain/opnetd/model"
)

// BuildTree builds a binary merkle tree over leaves, duplicating the last
// node at any level with an odd count (the same convention Bitcoin's own
// block merkle tree uses), and returns the root plus, for each leaf, the
// sibling path needed to recompute the root.
func BuildTree(leaves []chainhash.Hash) (root chainhash.Hash, proofs []model.ChecksumProof) {
	if len(leaves) == 0 {
		return chainhash.Hash{}, nil
	}

	level := make([]chainhash.Hash, len(leaves))
	copy(level, leaves)

	paths := make([][]chainhash.Hash, len(leaves))
	indices := make([]int, len(leaves))
	for i := range indices {
		indices[i] = i
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}

		next := make([]chainhash.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = hashPair(level[i], level[i+1])
		}

		for leafIdx := range paths {
			idx := indices[leafIdx]
			siblingIdx := idx ^ 1
			if siblingIdx < len(level) {
				paths[leafIdx] = append(paths[leafIdx], level[siblingIdx])
			}
			indices[leafIdx] = idx / 2
		}

		level = next
	}

	proofs = make([]model.ChecksumProof, len(leaves))
	for i := range leaves {
		proofs[i] = model.ChecksumProof{LeafIndex: i, Path: paths[i]}
	}

	return level[0], proofs
}

// VerifyProof recomputes the root from a leaf and its proof path, using
// the leaf's original index to determine left/right ordering at each
// level, and reports whether it matches root.
func VerifyProof(leaf chainhash.Hash, leafIndex int, proof model.ChecksumProof, root chainhash.Hash) bool {
	current := leaf
	idx := leafIndex

	for _, sibling := range proof.Path {
		if idx%2 == 0 {
			current = hashPair(current, sibling)
		} else {
			current = hashPair(sibling, current)
		}
		idx /= 2
	}

	return current == root
}

func hashPair(a, b chainhash.Hash) chainhash.Hash {
	h := sha256.New()
	h.Write(a[:])
	h.Write(b[:])
	first := h.Sum(nil)

	h2 := sha256.New()
	h2.Write(first)
	second := h2.Sum(nil)

	var out chainhash.Hash
	copy(out[:], second)
	return out
}
