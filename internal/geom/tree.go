package geom

import (
	"sort"

	"github.com/tidwall/rtree"
)

// Tree is a 2D R-tree over bounding boxes keyed by ordinal.
// Ordinals are chosen by the caller and usually index a parallel table.
type Tree struct {
	tree rtree.RTreeG[int]
}

// NewTree creates an empty tree
func NewTree() *Tree {
	return &Tree{}
}

// BuildTree indexes boxes[i] under ordinal i
func BuildTree(boxes []BBox) *Tree {
	t := NewTree()
	for i, b := range boxes {
		t.Insert(i, b)
	}
	return t
}

// Insert adds a box under the given ordinal
func (t *Tree) Insert(ordinal int, b BBox) {
	t.tree.Insert(b.Min(), b.Max(), ordinal)
}

// Search returns the ordinals of all boxes overlapping q in ascending order
func (t *Tree) Search(q BBox) []int {
	result := make([]int, 0)
	t.SearchFunc(q, func(ordinal int) bool {
		result = append(result, ordinal)
		return true
	})
	sort.Ints(result)
	return result
}

// SearchFunc calls fn for every box overlapping q until fn returns false.
// Visit order is unspecified.
func (t *Tree) SearchFunc(q BBox, fn func(ordinal int) bool) {
	t.tree.Search(q.Min(), q.Max(), func(_, _ [2]float64, ordinal int) bool {
		return fn(ordinal)
	})
}

// Len returns the number of indexed boxes
func (t *Tree) Len() int {
	return t.tree.Len()
}
