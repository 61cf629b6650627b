package btree

import (
	"fmt"

	"github.com/intellect4all/kvbtree/common"
)

// BTree is the on-disk B+-tree engine: fixed 4-byte keys, fixed ROW_SIZE
// values, single-threaded (no latching — callers serialize their own
// access).
type BTree struct {
	pager *Pager
}

// Open opens or creates the database file at path and returns a ready
// engine rooted at whatever root_page the file header names.
func Open(path string) (*BTree, error) {
	pager, err := OpenWithCache(path, CacheCap)
	if err != nil {
		return nil, err
	}
	return &BTree{pager: pager}, nil
}

// Close flushes and releases the underlying file.
func (t *BTree) Close() error { return t.pager.Close() }

// Sync flushes all dirty pages and the file header without closing.
func (t *BTree) Sync() error { return t.pager.Sync() }

// Stats reports pager bookkeeping plus the number of stored keys.
func (t *BTree) Stats() common.Stats {
	s := t.pager.Stats()
	c, err := t.start()
	for err == nil && !c.atEnd {
		s.NumKeys++
		c, err = t.advance(c)
	}
	return s
}

// cursor names a position: a leaf page and a cell index within it. atEnd
// is set once advance() walks past the last leaf's last cell.
type cursor struct {
	pageID uint32
	cell   uint32
	atEnd  bool
}

// descendToLeaf walks from the root to the leaf that would contain key.
func (t *BTree) descendToLeaf(key uint32) (uint32, error) {
	id := t.pager.RootPageID()
	for {
		p, err := t.pager.GetPage(id)
		if err != nil {
			return 0, err
		}
		if p.IsLeaf() {
			return id, nil
		}
		id = childFor(p, key)
	}
}

// find locates key, returning a cursor at its cell (found=true) or at the
// position it would occupy if inserted (found=false).
func (t *BTree) find(key uint32) (cursor, bool, error) {
	leafID, err := t.descendToLeaf(key)
	if err != nil {
		return cursor{}, false, err
	}
	leaf, err := t.pager.GetPage(leafID)
	if err != nil {
		return cursor{}, false, err
	}
	idx, found := searchLeaf(leaf, key)
	return cursor{pageID: leafID, cell: idx}, found, nil
}

// start returns a cursor at the first record in key order, or an atEnd
// cursor if the table is empty.
func (t *BTree) start() (cursor, error) {
	id := t.pager.RootPageID()
	for {
		p, err := t.pager.GetPage(id)
		if err != nil {
			return cursor{}, err
		}
		if p.IsLeaf() {
			if p.NumCells() == 0 {
				return cursor{pageID: id, cell: 0, atEnd: true}, nil
			}
			return cursor{pageID: id, cell: 0}, nil
		}
		if p.NumKeys() == 0 {
			id = p.RightChild()
			continue
		}
		id = p.InternalChild(0)
	}
}

// advance moves c to the next record, following next_leaf when a leaf is
// exhausted, returning an atEnd cursor once the last leaf is exhausted.
func (t *BTree) advance(c cursor) (cursor, error) {
	leaf, err := t.pager.GetPage(c.pageID)
	if err != nil {
		return cursor{}, err
	}
	if c.cell+1 < leaf.NumCells() {
		return cursor{pageID: c.pageID, cell: c.cell + 1}, nil
	}
	next := leaf.NextLeaf()
	if next == 0 {
		return cursor{pageID: c.pageID, cell: leaf.NumCells(), atEnd: true}, nil
	}
	return cursor{pageID: next, cell: 0}, nil
}

// Find looks up key and returns a copy of its ROW_SIZE row.
func (t *BTree) Find(key uint32) ([]byte, error) {
	c, found, err := t.find(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, common.ErrNotFound
	}
	leaf, err := t.pager.GetPage(c.pageID)
	if err != nil {
		return nil, err
	}
	return leaf.LeafRow(c.cell), nil
}

// Insert adds a new (key, row) pair. row must be exactly RowSize bytes.
func (t *BTree) Insert(key uint32, row []byte) error {
	if len(row) != RowSize {
		return fmt.Errorf("%w: row must be %d bytes, got %d", common.ErrCorrupt, RowSize, len(row))
	}
	c, found, err := t.find(key)
	if err != nil {
		return err
	}
	if found {
		return common.ErrDuplicateKey
	}

	leaf, err := t.pager.GetPage(c.pageID)
	if err != nil {
		return err
	}

	if leaf.NumCells() < LeafMaxCells {
		leaf.insertLeafCellAt(c.cell, key, row)
		t.pager.MarkDirty(c.pageID)
		t.pager.InvalidateIterators()
		return nil
	}

	if err := t.splitLeafAndInsert(leaf, c.cell, key, row); err != nil {
		return err
	}
	t.pager.InvalidateIterators()
	return nil
}

// Update overwrites the row stored at key in place; it never restructures
// the tree.
func (t *BTree) Update(key uint32, row []byte) error {
	if len(row) != RowSize {
		return fmt.Errorf("%w: row must be %d bytes, got %d", common.ErrCorrupt, RowSize, len(row))
	}
	c, found, err := t.find(key)
	if err != nil {
		return err
	}
	if !found {
		return common.ErrNotFound
	}
	leaf, err := t.pager.GetPage(c.pageID)
	if err != nil {
		return err
	}
	leaf.setLeafRow(c.cell, row)
	t.pager.MarkDirty(c.pageID)
	t.pager.InvalidateIterators()
	return nil
}

// Delete removes key, rebalancing underflowing nodes by borrow or merge.
func (t *BTree) Delete(key uint32) error {
	c, found, err := t.find(key)
	if err != nil {
		return err
	}
	if !found {
		return common.ErrNotFound
	}
	if err := t.deleteFromLeaf(c.pageID, c.cell); err != nil {
		return err
	}
	t.pager.InvalidateIterators()
	return nil
}

// Validate walks the whole tree checking structural invariants. It
// returns the first violation found, wrapped in common.ErrCorrupt.
func (t *BTree) Validate() error {
	if err := t.pager.CheckFreelist(); err != nil {
		return err
	}
	root := t.pager.RootPageID()
	p, err := t.pager.GetPage(root)
	if err != nil {
		return err
	}
	if !p.IsRoot() {
		return fmt.Errorf("%w: root page %d missing is_root flag", common.ErrCorrupt, root)
	}
	_, _, err = t.validateSubtree(root, true, nil, nil)
	return err
}

// validateSubtree checks occupancy, key ordering, separator correctness
// and parent pointers recursively, returning the subtree's minimum key
// and its leaf depth so the caller can confirm uniform leaf depth.
func (t *BTree) validateSubtree(pageID uint32, isRoot bool, lo, hi *uint32) (minKey, depth uint32, err error) {
	p, err := t.pager.GetPage(pageID)
	if err != nil {
		return 0, 0, err
	}

	if p.IsLeaf() {
		n := p.NumCells()
		if !isRoot && n < LeafMinFill {
			return 0, 0, fmt.Errorf("%w: leaf %d underfull: %d cells", common.ErrCorrupt, pageID, n)
		}
		var prev uint32
		for i := uint32(0); i < n; i++ {
			k := p.LeafKey(i)
			if i > 0 && k <= prev {
				return 0, 0, fmt.Errorf("%w: leaf %d keys not strictly ascending at %d", common.ErrCorrupt, pageID, i)
			}
			if lo != nil && k < *lo {
				return 0, 0, fmt.Errorf("%w: leaf %d key %d below lower bound %d", common.ErrCorrupt, pageID, k, *lo)
			}
			if hi != nil && k > *hi {
				return 0, 0, fmt.Errorf("%w: leaf %d key %d above upper bound %d", common.ErrCorrupt, pageID, k, *hi)
			}
			prev = k
		}
		if n == 0 {
			return 0, 1, nil
		}
		return p.LeafKey(0), 1, nil
	}

	n := p.NumKeys()
	if !isRoot && n < InternalMinFill {
		return 0, 0, fmt.Errorf("%w: internal %d underfull: %d keys", common.ErrCorrupt, pageID, n)
	}
	if isRoot && n == 0 && p.RightChild() == 0 {
		return 0, 0, fmt.Errorf("%w: root %d has no children", common.ErrCorrupt, pageID)
	}

	var prevSep uint32
	var subtreeDepth uint32
	var firstMin uint32
	haveFirst := false

	childBoundLo := lo
	for i := uint32(0); i < n; i++ {
		child := p.InternalChild(i)
		sep := p.InternalKey(i)
		if i > 0 && sep <= prevSep {
			return 0, 0, fmt.Errorf("%w: internal %d separators not strictly ascending at %d", common.ErrCorrupt, pageID, i)
		}
		cp, err := t.pager.GetPage(child)
		if err != nil {
			return 0, 0, err
		}
		if cp.ParentPage() != pageID {
			return 0, 0, fmt.Errorf("%w: page %d parent_page %d != actual parent %d", common.ErrCorrupt, child, cp.ParentPage(), pageID)
		}
		gotMax, err := t.maxKey(child)
		if err != nil {
			return 0, 0, err
		}
		if gotMax != sep {
			return 0, 0, fmt.Errorf("%w: separator[%d]=%d on page %d but child %d max is %d", common.ErrCorrupt, i, sep, pageID, child, gotMax)
		}
		cmin, cdepth, err := t.validateSubtree(child, false, childBoundLo, &sep)
		if err != nil {
			return 0, 0, err
		}
		if !haveFirst {
			firstMin, haveFirst = cmin, true
		}
		if subtreeDepth == 0 {
			subtreeDepth = cdepth
		} else if cdepth != subtreeDepth {
			return 0, 0, fmt.Errorf("%w: uneven leaf depth under page %d", common.ErrCorrupt, pageID)
		}
		prevSep = sep
		childBoundLo = &sep
	}

	right := p.RightChild()
	rp, err := t.pager.GetPage(right)
	if err != nil {
		return 0, 0, err
	}
	if rp.ParentPage() != pageID {
		return 0, 0, fmt.Errorf("%w: right child %d parent_page %d != actual parent %d", common.ErrCorrupt, right, rp.ParentPage(), pageID)
	}
	rmin, rdepth, err := t.validateSubtree(right, false, childBoundLo, hi)
	if err != nil {
		return 0, 0, err
	}
	if n > 0 && subtreeDepth != 0 && rdepth != subtreeDepth {
		return 0, 0, fmt.Errorf("%w: uneven leaf depth under page %d", common.ErrCorrupt, pageID)
	}
	if !haveFirst {
		firstMin = rmin
	}
	return firstMin, rdepth + 1, nil
}
