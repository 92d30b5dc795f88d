package merkle

import "github.com/Layr-Labs/lamport-merkle-go/pkg/crypto"

// NoChild marks an absent child index on a leaf node
const NoChild = -1

// MerkleNode is one entry of the tree's node arena.
// Children are referenced by arena index; a parent built from a duplicated
// odd node has Left == Right.
type MerkleNode struct {
	// Hash is the lowercase hex digest of the node
	Hash string

	// Left and Right are arena indices of the children, NoChild for leaves
	Left  int
	Right int

	// value is only stored on leaves; parent values are materialized from children
	value []byte
}

// IsLeaf reports whether the node has no children.
func (n *MerkleNode) IsLeaf() bool {
	return n.Left == NoChild
}

// MerkleTree is a binary hash tree built once from an ordered leaf list.
// It is immutable after construction.
type MerkleTree struct {
	hasher crypto.Hasher

	// nodes is the arena; leaves occupy indices [0, leafCount)
	nodes     []MerkleNode
	leafCount int
	root      int

	// levels stores node indices per level for proof generation
	// levels[0] = leaves, levels[len-1] = [root]
	levels [][]int
}

// MerkleProof represents a proof that a leaf is included in the tree.
type MerkleProof struct {
	// LeafIndex is the position of the leaf in the input order
	LeafIndex int `json:"leafIndex"`

	// Leaf is the hash of the leaf being proven
	Leaf string `json:"leaf"`

	// Proof contains the sibling hashes from leaf to root.
	// proof[0] is the sibling of the leaf; a duplicated odd node is its own sibling
	Proof []string `json:"proof"`
}
