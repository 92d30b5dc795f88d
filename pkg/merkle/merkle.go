package merkle

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/crypto"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/metrics"
)

var (
	// ErrInvalidInput is the base error for rejected tree inputs
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyInput is returned when building a tree from zero leaves
	ErrEmptyInput = fmt.Errorf("%w: cannot build merkle tree from empty leaf list", ErrInvalidInput)
)

// BuilderConfig configures a Builder. Zero values select the defaults.
type BuilderConfig struct {
	Hasher  crypto.Hasher
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Builder builds trees with a fixed hash function.
type Builder struct {
	hasher  crypto.Hasher
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewBuilder(cfg *BuilderConfig) *Builder {
	b := &Builder{
		hasher: crypto.DefaultHasher,
		logger: zap.NewNop(),
	}
	if cfg == nil {
		return b
	}
	if cfg.Hasher != nil {
		b.hasher = cfg.Hasher
	}
	if cfg.Logger != nil {
		b.logger = cfg.Logger
	}
	b.metrics = cfg.Metrics
	return b
}

var defaultBuilder = NewBuilder(nil)

// BuildMerkleTree builds a SHA-256 tree over values, in order.
func BuildMerkleTree(values [][]byte) (*MerkleTree, error) {
	return defaultBuilder.Build(values)
}

// BuildMerkleTreeFromStrings builds a tree whose leaf values are the UTF-8 bytes of values.
func BuildMerkleTreeFromStrings(values []string) (*MerkleTree, error) {
	raw := make([][]byte, len(values))
	for i, v := range values {
		raw[i] = []byte(v)
	}
	return defaultBuilder.Build(raw)
}

// Build creates a binary merkle tree from the leaf values.
//
// Every leaf hash is Hash(value). Levels are reduced left to right in
// pairs; each parent hash is Hash(left.Hash || right.Hash) over the hex
// text of the child digests. If a level has an odd number of nodes, the
// last node is paired with itself. A single leaf is its own root.
func (b *Builder) Build(values [][]byte) (*MerkleTree, error) {
	if len(values) == 0 {
		return nil, ErrEmptyInput
	}
	start := time.Now()

	// n leaves produce fewer than 2n nodes in total
	nodes := make([]MerkleNode, 0, 2*len(values))
	leaves := make([]int, len(values))
	for i, v := range values {
		value := append([]byte(nil), v...)
		nodes = append(nodes, MerkleNode{
			Hash:  b.hasher.Hash(value),
			Left:  NoChild,
			Right: NoChild,
			value: value,
		})
		leaves[i] = i
	}

	levels := make([][]int, 0)
	levels = append(levels, leaves)

	currentLevel := leaves
	for len(currentLevel) > 1 {
		nextLevel := make([]int, 0, (len(currentLevel)+1)/2)

		for i := 0; i < len(currentLevel); i += 2 {
			left := currentLevel[i]

			// If odd number of nodes, duplicate the last one
			right := left
			if i+1 < len(currentLevel) {
				right = currentLevel[i+1]
			}

			nodes = append(nodes, MerkleNode{
				Hash:  hashPair(b.hasher, nodes[left].Hash, nodes[right].Hash),
				Left:  left,
				Right: right,
			})
			nextLevel = append(nextLevel, len(nodes)-1)
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	tree := &MerkleTree{
		hasher:    b.hasher,
		nodes:     nodes,
		leafCount: len(values),
		root:      currentLevel[0],
		levels:    levels,
	}

	b.metrics.TreeBuilt(len(values), start)
	b.logger.Debug("Built merkle tree",
		zap.Int("leaves", len(values)),
		zap.Int("nodes", len(nodes)),
		zap.String("root", tree.RootHash()),
	)
	return tree, nil
}

// Root returns the root node.
func (mt *MerkleTree) Root() *MerkleNode {
	return &mt.nodes[mt.root]
}

// RootHash returns the hex digest committing to every leaf.
func (mt *MerkleTree) RootHash() string {
	return mt.nodes[mt.root].Hash
}

// RootIndex returns the arena index of the root node.
func (mt *MerkleTree) RootIndex() int {
	return mt.root
}

// Node returns the node at arena index i, or nil when i is out of range.
func (mt *MerkleTree) Node(i int) *MerkleNode {
	if i < 0 || i >= len(mt.nodes) {
		return nil
	}
	return &mt.nodes[i]
}

// Size is the number of nodes in the arena.
func (mt *MerkleTree) Size() int {
	return len(mt.nodes)
}

// LeafCount is the number of input values.
func (mt *MerkleTree) LeafCount() int {
	return mt.leafCount
}

// Leaves returns the leaf hashes in input order.
func (mt *MerkleTree) Leaves() []string {
	out := make([]string, mt.leafCount)
	for i := 0; i < mt.leafCount; i++ {
		out[i] = mt.nodes[i].Hash
	}
	return out
}

// Depth is the number of levels above the leaves.
func (mt *MerkleTree) Depth() int {
	return len(mt.levels) - 1
}

// Value returns the value of the node at arena index i. For a parent this is
// the concatenation of its children's values, built on request since it
// grows with the subtree.
func (mt *MerkleTree) Value(i int) []byte {
	n := mt.Node(i)
	if n == nil {
		return nil
	}
	if n.IsLeaf() {
		return append([]byte(nil), n.value...)
	}
	return append(mt.Value(n.Left), mt.Value(n.Right)...)
}

// GenerateProof creates a merkle proof for the leaf at the given index.
// The proof consists of sibling hashes along the path from leaf to root.
func (mt *MerkleTree) GenerateProof(leafIndex int) (*MerkleProof, error) {
	if leafIndex < 0 || leafIndex >= mt.leafCount {
		return nil, fmt.Errorf("leaf index %d out of bounds (tree has %d leaves)", leafIndex, mt.leafCount)
	}

	proof := make([]string, 0, mt.Depth())
	index := leafIndex

	for level := 0; level < len(mt.levels)-1; level++ {
		currentLevel := mt.levels[level]

		siblingIndex := index + 1
		if index%2 == 1 {
			siblingIndex = index - 1
		}
		// last node of an odd level was paired with itself
		if siblingIndex >= len(currentLevel) {
			siblingIndex = index
		}

		proof = append(proof, mt.nodes[currentLevel[siblingIndex]].Hash)
		index = index / 2
	}

	return &MerkleProof{
		LeafIndex: leafIndex,
		Leaf:      mt.nodes[leafIndex].Hash,
		Proof:     proof,
	}, nil
}

// VerifyProof checks a SHA-256 proof against root.
// Without the tree it cannot bound LeafIndex: on a level with a duplicated
// trailing node, a proof for the last leaf also verifies one index past the
// end. Use (*MerkleTree).VerifyProof when the tree is at hand.
func VerifyProof(proof *MerkleProof, root string) bool {
	return VerifyProofWithHasher(crypto.DefaultHasher, proof, root)
}

// VerifyProof checks a proof against root using the tree's own hash function.
// The leaf index must name an existing leaf and the path must span every level.
func (mt *MerkleTree) VerifyProof(proof *MerkleProof) bool {
	if proof == nil || proof.LeafIndex >= mt.leafCount || len(proof.Proof) != mt.Depth() {
		return false
	}
	return VerifyProofWithHasher(mt.hasher, proof, mt.RootHash())
}

// VerifyProofWithHasher recomputes the root from the leaf and its siblings
// and compares it with root.
func VerifyProofWithHasher(h crypto.Hasher, proof *MerkleProof, root string) bool {
	if proof == nil || proof.LeafIndex < 0 {
		return false
	}

	currentHash := proof.Leaf
	index := proof.LeafIndex

	for _, siblingHash := range proof.Proof {
		if index%2 == 0 {
			currentHash = hashPair(h, currentHash, siblingHash)
		} else {
			currentHash = hashPair(h, siblingHash, currentHash)
		}
		index = index / 2
	}

	return currentHash == root
}

// hashPair computes Hash(left || right) over the hex text of two digests.
func hashPair(h crypto.Hasher, left, right string) string {
	data := make([]byte, 0, len(left)+len(right))
	data = append(data, left...)
	data = append(data, right...)
	return h.Hash(data)
}
