package merkle

import (
	"errors"
	"fmt"

	"github.com/colorfulnotion/zytherion/common"
	"github.com/xlab/treeprint"
)

var ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")

// EmptyRoot is the root of an empty leaf list: the hash of no bytes.
var EmptyRoot = common.HashData(nil)

// hashPair joins two nodes by hashing the concatenation of their hex strings.
func hashPair(left, right common.Hash) common.Hash {
	return common.HashData([]byte(left.Hex() + right.Hex()))
}

// Tree keeps every level of a merkle reduction, leaves first.
type Tree struct {
	levels [][]common.Hash
}

// NewTree builds the tree over leaves in order. An odd level pairs its last
// node with itself.
func NewTree(leaves []common.Hash) *Tree {
	t := &Tree{}
	if len(leaves) == 0 {
		return t
	}
	level := make([]common.Hash, len(leaves))
	copy(level, leaves)
	t.levels = append(t.levels, level)
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t
}

// Root returns the merkle root of leaves.
func Root(leaves []common.Hash) common.Hash {
	return NewTree(leaves).Root()
}

func (t *Tree) Root() common.Hash {
	if len(t.levels) == 0 {
		return EmptyRoot
	}
	return t.levels[len(t.levels)-1][0]
}

// Levels returns the number of levels including the leaves.
func (t *Tree) Levels() int {
	return len(t.levels)
}

func (t *Tree) Leaves() []common.Hash {
	if len(t.levels) == 0 {
		return nil
	}
	out := make([]common.Hash, len(t.levels[0]))
	copy(out, t.levels[0])
	return out
}

// Justify returns the sibling path from leaf index up to the root.
func (t *Tree) Justify(index int) ([]common.Hash, error) {
	if len(t.levels) == 0 || index < 0 || index >= len(t.levels[0]) {
		return nil, ErrIndexOutOfRange
	}
	path := make([]common.Hash, 0, len(t.levels)-1)
	for d := 0; d < len(t.levels)-1; d++ {
		level := t.levels[d]
		sibling := index ^ 1
		if sibling < len(level) {
			path = append(path, level[sibling])
		} else {
			path = append(path, level[index])
		}
		index /= 2
	}
	return path, nil
}

// VerifyJustification recomputes the root from a leaf and its sibling path.
func VerifyJustification(leaf common.Hash, index int, path []common.Hash, root common.Hash) bool {
	if index < 0 {
		return false
	}
	cur := leaf
	for _, sibling := range path {
		if index%2 == 0 {
			cur = hashPair(cur, sibling)
		} else {
			cur = hashPair(sibling, cur)
		}
		index /= 2
	}
	return index == 0 && cur == root
}

// Print renders the tree from the root down.
func (t *Tree) Print() string {
	if len(t.levels) == 0 {
		tree := treeprint.New()
		tree.SetValue(fmt.Sprintf("root %s (empty)", EmptyRoot.Short()))
		return tree.String()
	}
	top := len(t.levels) - 1
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("root %s", t.Root().Short()))
	t.addChildren(tree, top, 0)
	return tree.String()
}

func (t *Tree) addChildren(branch treeprint.Tree, depth, index int) {
	if depth == 0 {
		return
	}
	below := t.levels[depth-1]
	for _, child := range []int{2 * index, 2*index + 1} {
		if child >= len(below) {
			branch.AddNode(fmt.Sprintf("%s (dup)", below[2*index].Short()))
			continue
		}
		if depth-1 == 0 {
			branch.AddNode(fmt.Sprintf("leaf %d %s", child, below[child].Short()))
			continue
		}
		sub := branch.AddBranch(below[child].Short())
		t.addChildren(sub, depth-1, child)
	}
}
