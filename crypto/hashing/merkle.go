// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hashing

// leafPrefix distinguishes leaf hashes from inner-node hashes; inner nodes
// are additionally keyed, so a leaf can never collide with an inner node
// (second-preimage resistance).
const leafPrefix = 0x00

// MerkleLeaf computes the leaf hash Hash(0x00 || data).
func MerkleLeaf(data []byte) [HashLen]byte {
	buf := make([]byte, 1+len(data))
	buf[0] = leafPrefix
	copy(buf[1:], data)
	return Hash(buf)
}

// MerkleInner computes the inner-node hash KeyedHash(kInner, left || right)
// where kInner = DeriveKey("Ochra v1 merkle-inner-node", "").
func MerkleInner(left, right [HashLen]byte) [HashLen]byte {
	kInner := DeriveKey(ContextMerkleInnerNode, nil)
	var msg [2 * HashLen]byte
	copy(msg[:HashLen], left[:])
	copy(msg[HashLen:], right[:])
	return KeyedHash(kInner, msg[:])
}

// ProofStep is one step of a Merkle inclusion proof: the sibling hash at
// this level and whether the sibling sits on the left.
type ProofStep struct {
	Sibling [HashLen]byte
	IsLeft  bool
}

// ComputeRoot walks an inclusion proof from a leaf hash to the root.
func ComputeRoot(leaf [HashLen]byte, proof []ProofStep) [HashLen]byte {
	node := leaf
	for _, step := range proof {
		if step.IsLeft {
			node = MerkleInner(step.Sibling, node)
		} else {
			node = MerkleInner(node, step.Sibling)
		}
	}
	return node
}

// VerifyInclusion reports whether the proof links the leaf hash to root.
func VerifyInclusion(leaf [HashLen]byte, proof []ProofStep, root [HashLen]byte) bool {
	return ComputeRoot(leaf, proof) == root
}
