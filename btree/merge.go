package btree

// deleteFromLeaf removes the cell at cellIdx from the leaf pageID, repairs
// any now-stale ancestor separator, and rebalances on underflow.
func (t *BTree) deleteFromLeaf(pageID uint32, cellIdx uint32) error {
	leaf, err := t.pager.GetPage(pageID)
	if err != nil {
		return err
	}
	wasLast := cellIdx == leaf.NumCells()-1
	leaf.deleteLeafCellAt(cellIdx)
	t.pager.MarkDirty(pageID)

	if wasLast && leaf.NumCells() > 0 && !leaf.IsRoot() {
		if err := t.fixMaxKeyUpward(pageID); err != nil {
			return err
		}
	}
	return t.fixUnderflow(pageID)
}

// fixMaxKeyUpward repairs a single stale ancestor separator after a leaf's
// maximum key decreased without any underflow occurring. It walks up
// while the current page is its parent's right_child (whose key is
// implicit and whose own max just changed too), and stops at the first
// ancestor level where the page has an explicit separator cell — there is
// never more than one such level, since above it nothing changed.
func (t *BTree) fixMaxKeyUpward(startID uint32) error {
	id := startID
	for {
		p, err := t.pager.GetPage(id)
		if err != nil {
			return err
		}
		if p.IsRoot() {
			return nil
		}
		parentID := p.ParentPage()
		parent, err := t.pager.GetPage(parentID)
		if err != nil {
			return err
		}
		idx, isRight := findChildSlot(parent, id)
		if isRight {
			id = parentID
			continue
		}
		newMax, err := t.maxKey(id)
		if err != nil {
			return err
		}
		parent.setInternalKey(idx, newMax)
		t.pager.MarkDirty(parentID)
		return nil
	}
}

// childAt returns the child at position pos among parent's NumKeys()+1
// children (position NumKeys() names right_child).
func childAt(p *page, pos uint32) uint32 {
	if pos == p.NumKeys() {
		return p.RightChild()
	}
	return p.InternalChild(pos)
}

// fixUnderflow rebalances pageID if it has fallen below its minimum
// occupancy, preferring a borrow from a sibling over a merge, and
// recursing to the parent when a merge consumes one of its children. The
// root is exempt from minimum occupancy but is collapsed when an internal
// root loses its last explicit child.
func (t *BTree) fixUnderflow(pageID uint32) error {
	p, err := t.pager.GetPage(pageID)
	if err != nil {
		return err
	}
	if p.IsRoot() {
		return t.collapseRootIfNeeded(pageID)
	}

	var underfull bool
	if p.IsLeaf() {
		underfull = p.NumCells() < LeafMinFill
	} else {
		underfull = p.NumKeys() < InternalMinFill
	}
	if !underfull {
		return nil
	}

	parentID := p.ParentPage()
	parent, err := t.pager.GetPage(parentID)
	if err != nil {
		return err
	}
	idx, isRight := findChildSlot(parent, pageID)
	position := idx
	if isRight {
		position = parent.NumKeys()
	}

	var leftID, rightID uint32
	haveLeft := position > 0
	if haveLeft {
		leftID = childAt(parent, position-1)
	}
	haveRight := position < parent.NumKeys()
	if haveRight {
		rightID = childAt(parent, position+1)
	}

	if p.IsLeaf() {
		if haveLeft {
			left, err := t.pager.GetPage(leftID)
			if err != nil {
				return err
			}
			if left.NumCells() > LeafMinFill {
				return t.borrowLeafFromLeft(parent, leftID, pageID)
			}
		}
		if haveRight {
			right, err := t.pager.GetPage(rightID)
			if err != nil {
				return err
			}
			if right.NumCells() > LeafMinFill {
				return t.borrowLeafFromRight(parent, pageID, rightID)
			}
		}
		if haveLeft {
			if err := t.mergeLeafPair(parent, leftID, pageID); err != nil {
				return err
			}
		} else {
			if err := t.mergeLeafPair(parent, pageID, rightID); err != nil {
				return err
			}
		}
	} else {
		if haveLeft {
			left, err := t.pager.GetPage(leftID)
			if err != nil {
				return err
			}
			if left.NumKeys() > InternalMinFill {
				return t.borrowInternalFromLeft(parent, leftID, pageID)
			}
		}
		if haveRight {
			right, err := t.pager.GetPage(rightID)
			if err != nil {
				return err
			}
			if right.NumKeys() > InternalMinFill {
				return t.borrowInternalFromRight(parent, pageID, rightID)
			}
		}
		if haveLeft {
			if err := t.mergeInternalPair(parent, leftID, pageID); err != nil {
				return err
			}
		} else {
			if err := t.mergeInternalPair(parent, pageID, rightID); err != nil {
				return err
			}
		}
	}

	return t.fixUnderflow(parentID)
}

// collapseRootIfNeeded replaces an internal root that has lost its last
// explicit child with its sole remaining subtree.
func (t *BTree) collapseRootIfNeeded(rootID uint32) error {
	root, err := t.pager.GetPage(rootID)
	if err != nil {
		return err
	}
	if root.IsLeaf() || root.NumKeys() > 0 {
		return nil
	}
	onlyChild := root.RightChild()
	child, err := t.pager.GetPage(onlyChild)
	if err != nil {
		return err
	}
	child.SetIsRoot(true)
	child.SetParentPage(0)
	t.pager.MarkDirty(onlyChild)
	t.pager.SetRootPageID(onlyChild)
	t.pager.FreePage(rootID)
	return nil
}

// borrowLeafFromLeft moves left's last cell to the front of right,
// keeping both above their minimum fill, and repairs left's separator.
func (t *BTree) borrowLeafFromLeft(parent *page, leftID, rightID uint32) error {
	left, err := t.pager.GetPage(leftID)
	if err != nil {
		return err
	}
	right, err := t.pager.GetPage(rightID)
	if err != nil {
		return err
	}
	n := left.NumCells()
	key, row := left.LeafKey(n-1), left.LeafRow(n-1)
	left.deleteLeafCellAt(n - 1)
	right.insertLeafCellAt(0, key, row)

	idx, _ := findChildSlot(parent, leftID)
	parent.setInternalKey(idx, left.LeafKey(left.NumCells()-1))

	t.pager.MarkDirty(leftID)
	t.pager.MarkDirty(rightID)
	t.pager.MarkDirty(parent.ID())
	return nil
}

// borrowLeafFromRight moves right's first cell to the end of left, and
// repairs left's separator.
func (t *BTree) borrowLeafFromRight(parent *page, leftID, rightID uint32) error {
	left, err := t.pager.GetPage(leftID)
	if err != nil {
		return err
	}
	right, err := t.pager.GetPage(rightID)
	if err != nil {
		return err
	}
	key, row := right.LeafKey(0), right.LeafRow(0)
	right.deleteLeafCellAt(0)
	left.insertLeafCellAt(left.NumCells(), key, row)

	idx, _ := findChildSlot(parent, leftID)
	parent.setInternalKey(idx, key)

	t.pager.MarkDirty(leftID)
	t.pager.MarkDirty(rightID)
	t.pager.MarkDirty(parent.ID())
	return nil
}

// mergeLeafPair absorbs right's cells into left, relinks next_leaf, frees
// right, and removes its entry from parent — promoting left into
// parent's right_child slot if right held that slot.
func (t *BTree) mergeLeafPair(parent *page, leftID, rightID uint32) error {
	left, err := t.pager.GetPage(leftID)
	if err != nil {
		return err
	}
	right, err := t.pager.GetPage(rightID)
	if err != nil {
		return err
	}
	for i := uint32(0); i < right.NumCells(); i++ {
		left.insertLeafCellAt(left.NumCells(), right.LeafKey(i), right.LeafRow(i))
	}
	left.SetNextLeaf(right.NextLeaf())

	leftIdx, _ := findChildSlot(parent, leftID)
	rightIdx, rightIsRight := findChildSlot(parent, rightID)
	if rightIsRight {
		parent.deleteInternalCellAt(leftIdx)
		parent.SetRightChild(leftID)
	} else {
		rightSep := parent.InternalKey(rightIdx)
		parent.setInternalKey(leftIdx, rightSep)
		parent.deleteInternalCellAt(rightIdx)
	}

	t.pager.MarkDirty(leftID)
	t.pager.MarkDirty(parent.ID())
	t.pager.FreePage(rightID)
	return nil
}

// borrowInternalFromLeft moves left's rightmost child over to become
// right's new leftmost child, sliding the separator between them down
// from the parent and a fresh one up from left.
func (t *BTree) borrowInternalFromLeft(parent *page, leftID, rightID uint32) error {
	left, err := t.pager.GetPage(leftID)
	if err != nil {
		return err
	}
	right, err := t.pager.GetPage(rightID)
	if err != nil {
		return err
	}
	leftIdx, _ := findChildSlot(parent, leftID)
	sep := parent.InternalKey(leftIdx) // == maxKey(left.RightChild()) before the move

	moved := left.RightChild()
	lastIdx := left.NumKeys() - 1
	newRightChild := left.InternalChild(lastIdx)
	newLeftMax := left.InternalKey(lastIdx)
	left.deleteInternalCellAt(lastIdx)
	left.SetRightChild(newRightChild)
	parent.setInternalKey(leftIdx, newLeftMax)

	right.insertInternalCellAt(0, moved, sep)
	movedPage, err := t.pager.GetPage(moved)
	if err != nil {
		return err
	}
	movedPage.SetParentPage(rightID)

	t.pager.MarkDirty(leftID)
	t.pager.MarkDirty(rightID)
	t.pager.MarkDirty(moved)
	t.pager.MarkDirty(parent.ID())
	return nil
}

// borrowInternalFromRight moves right's leftmost child over to become
// left's new rightmost child, the mirror of borrowInternalFromLeft.
func (t *BTree) borrowInternalFromRight(parent *page, leftID, rightID uint32) error {
	left, err := t.pager.GetPage(leftID)
	if err != nil {
		return err
	}
	right, err := t.pager.GetPage(rightID)
	if err != nil {
		return err
	}
	leftIdx, _ := findChildSlot(parent, leftID)
	oldSep := parent.InternalKey(leftIdx) // == maxKey(left) before the move

	moved := right.InternalChild(0)
	movedSep := right.InternalKey(0)
	right.deleteInternalCellAt(0)

	oldRightChild := left.RightChild()
	left.insertInternalCellAt(left.NumKeys(), oldRightChild, oldSep)
	left.SetRightChild(moved)
	parent.setInternalKey(leftIdx, movedSep)

	movedPage, err := t.pager.GetPage(moved)
	if err != nil {
		return err
	}
	movedPage.SetParentPage(leftID)

	t.pager.MarkDirty(leftID)
	t.pager.MarkDirty(rightID)
	t.pager.MarkDirty(moved)
	t.pager.MarkDirty(parent.ID())
	return nil
}

// mergeInternalPair absorbs right's children into left, pulling the
// separator between them down as a new explicit cell, frees right, and
// removes its entry from parent.
func (t *BTree) mergeInternalPair(parent *page, leftID, rightID uint32) error {
	left, err := t.pager.GetPage(leftID)
	if err != nil {
		return err
	}
	right, err := t.pager.GetPage(rightID)
	if err != nil {
		return err
	}

	leftIdx, _ := findChildSlot(parent, leftID)
	pulledDown := parent.InternalKey(leftIdx) // == maxKey(left) before the merge

	oldLeftRight := left.RightChild()
	left.insertInternalCellAt(left.NumKeys(), oldLeftRight, pulledDown)
	t.pager.MarkDirty(leftID)

	// Reparenting can touch more pages than the cache holds: refetch left
	// each round so it stays resident, and refetch parent afterwards.
	for i := uint32(0); i < right.NumKeys(); i++ {
		if left, err = t.pager.GetPage(leftID); err != nil {
			return err
		}
		child := right.InternalChild(i)
		left.insertInternalCellAt(left.NumKeys(), child, right.InternalKey(i))
		cp, err := t.pager.GetPage(child)
		if err != nil {
			return err
		}
		cp.SetParentPage(leftID)
		t.pager.MarkDirty(child)
	}

	rightOldRight := right.RightChild()
	left.SetRightChild(rightOldRight)
	rcp, err := t.pager.GetPage(rightOldRight)
	if err != nil {
		return err
	}
	rcp.SetParentPage(leftID)
	t.pager.MarkDirty(rightOldRight)

	if parent, err = t.pager.GetPage(parent.ID()); err != nil {
		return err
	}
	rightIdx, rightIsRight := findChildSlot(parent, rightID)
	if rightIsRight {
		parent.deleteInternalCellAt(leftIdx)
		parent.SetRightChild(leftID)
	} else {
		rightSep := parent.InternalKey(rightIdx)
		parent.setInternalKey(leftIdx, rightSep)
		parent.deleteInternalCellAt(rightIdx)
	}

	t.pager.MarkDirty(leftID)
	t.pager.MarkDirty(parent.ID())
	t.pager.FreePage(rightID)
	return nil
}
