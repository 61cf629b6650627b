package btree

// splitLeafAndInsert splits a full leaf that (with the new cell) would
// hold 14 cells into two 7-cell leaves, threads the new right leaf into
// the next_leaf chain, and propagates the new sibling up to the parent.
func (t *BTree) splitLeafAndInsert(leaf *page, insertAt uint32, key uint32, row []byte) error {
	type rec struct {
		key uint32
		row []byte
	}
	n := leaf.NumCells()
	all := make([]rec, 0, n+1)
	for i := uint32(0); i < n; i++ {
		if i == insertAt {
			all = append(all, rec{key, row})
		}
		all = append(all, rec{leaf.LeafKey(i), leaf.LeafRow(i)})
	}
	if insertAt == n {
		all = append(all, rec{key, row})
	}

	split := uint32(len(all)+1) / 2 // ceil(14/2) = 7

	wasRoot := leaf.IsRoot()
	parentPage := leaf.ParentPage()

	right, err := t.pager.AllocatePage()
	if err != nil {
		return err
	}
	right.initializeLeaf()
	right.SetParentPage(parentPage)

	oldNext := leaf.NextLeaf()
	leaf.initializeLeaf()
	leaf.SetIsRoot(wasRoot)
	leaf.SetParentPage(parentPage)

	for i := uint32(0); i < split; i++ {
		leaf.insertLeafCellAt(i, all[i].key, all[i].row)
	}
	for i := split; i < uint32(len(all)); i++ {
		right.insertLeafCellAt(i-split, all[i].key, all[i].row)
	}
	right.SetNextLeaf(oldNext)
	leaf.SetNextLeaf(right.ID())

	t.pager.MarkDirty(leaf.ID())
	t.pager.MarkDirty(right.ID())

	leftMax := leaf.LeafKey(leaf.NumCells() - 1)
	rightMax := right.LeafKey(right.NumCells() - 1)

	_ = wasRoot
	return t.propagateSplit(leaf.ID(), leftMax, right.ID(), rightMax)
}

// propagateSplit installs newChildID as oldChildID's new right sibling in
// oldChildID's parent, after oldChildID's own key range shrank to
// oldChildNewMax. If oldChildID is the root, a new root is created
// instead. A split at the parent level recurses upward.
func (t *BTree) propagateSplit(oldChildID uint32, oldChildNewMax uint32, newChildID uint32, newChildMax uint32) error {
	oldChild, err := t.pager.GetPage(oldChildID)
	if err != nil {
		return err
	}

	if oldChild.IsRoot() {
		return t.createNewRoot(oldChildID, oldChildNewMax, newChildID)
	}

	parentID := oldChild.ParentPage()
	parent, err := t.pager.GetPage(parentID)
	if err != nil {
		return err
	}

	if idx, isRight := findChildSlot(parent, oldChildID); !isRight {
		parent.setInternalKey(idx, oldChildNewMax)
		t.pager.MarkDirty(parentID)
	}

	newChild, err := t.pager.GetPage(newChildID)
	if err != nil {
		return err
	}
	newChild.SetParentPage(parentID)
	t.pager.MarkDirty(newChildID)

	split, promotedKey, siblingID, siblingMax, err := t.insertChildIntoInternal(parent, newChildID, newChildMax)
	if err != nil {
		return err
	}
	if !split {
		return nil
	}
	return t.propagateSplit(parentID, promotedKey, siblingID, siblingMax)
}

// createNewRoot builds a fresh internal root over (oldChildID, newChildID)
// when the page that just split had no parent.
func (t *BTree) createNewRoot(oldChildID uint32, oldChildMax uint32, newChildID uint32) error {
	oldChild, err := t.pager.GetPage(oldChildID)
	if err != nil {
		return err
	}
	newChild, err := t.pager.GetPage(newChildID)
	if err != nil {
		return err
	}

	root, err := t.pager.AllocatePage()
	if err != nil {
		return err
	}
	root.initializeInternal()
	root.SetIsRoot(true)
	root.insertInternalCellAt(0, oldChildID, oldChildMax)
	root.SetRightChild(newChildID)

	oldChild.SetIsRoot(false)
	oldChild.SetParentPage(root.ID())
	newChild.SetParentPage(root.ID())

	t.pager.MarkDirty(root.ID())
	t.pager.MarkDirty(oldChildID)
	t.pager.MarkDirty(newChildID)
	t.pager.SetRootPageID(root.ID())
	return nil
}

// findChildSlot locates childID among parent's children. isRightChild is
// true when childID is parent's right_child (which has no explicit
// stored separator); otherwise idx names its explicit cell.
func findChildSlot(parent *page, childID uint32) (idx uint32, isRightChild bool) {
	if parent.RightChild() == childID {
		return 0, true
	}
	n := parent.NumKeys()
	for i := uint32(0); i < n; i++ {
		if parent.InternalChild(i) == childID {
			return i, false
		}
	}
	return 0, false
}

// internalEntry is a (child, separator) pair used while gathering an
// internal node's children for a split, where separator is always
// max_key(child) — explicit for stored cells, computed on demand for the
// trailing right_child.
type internalEntry struct {
	child uint32
	key   uint32
}

// insertChildIntoInternal adds (childID, childMax) as a new child of
// parent. If parent has room, it either appends childID as the new
// right_child (swapping the old right_child in as the last explicit
// separator) or inserts it as an ordinary sorted cell. If parent is full,
// it splits parent into itself (left) and a new sibling (right),
// reparenting every child that moves, and returns the promoted separator
// and the new sibling's id and max key.
func (t *BTree) insertChildIntoInternal(parent *page, childID uint32, childMax uint32) (split bool, promotedKey uint32, siblingID uint32, siblingMax uint32, err error) {
	currentRightID := parent.RightChild()
	currentRightMax, err := t.maxKey(currentRightID)
	if err != nil {
		return false, 0, 0, 0, err
	}

	if parent.NumKeys() < InternalMaxKeys {
		if childMax > currentRightMax {
			parent.insertInternalCellAt(parent.NumKeys(), currentRightID, currentRightMax)
			parent.SetRightChild(childID)
		} else {
			idx := searchInternal(parent, childMax)
			parent.insertInternalCellAt(idx, childID, childMax)
		}
		t.pager.MarkDirty(parent.ID())
		return false, 0, 0, 0, nil
	}

	// Parent is full: gather every existing child (explicit cells plus
	// the implicit right_child) together with the new one, split the
	// combined list down the middle, and promote the median separator.
	n := parent.NumKeys()
	entries := make([]internalEntry, 0, n+2)
	for i := uint32(0); i < n; i++ {
		entries = append(entries, internalEntry{parent.InternalChild(i), parent.InternalKey(i)})
	}
	entries = append(entries, internalEntry{currentRightID, currentRightMax})

	insertPos := len(entries)
	for i, e := range entries {
		if childMax < e.key {
			insertPos = i
			break
		}
	}
	entries = append(entries, internalEntry{})
	copy(entries[insertPos+1:], entries[insertPos:])
	entries[insertPos] = internalEntry{childID, childMax}

	splitPoint := len(entries) / 2
	leftEntries := entries[:splitPoint]
	rightEntries := entries[splitPoint:]

	wasRoot := parent.IsRoot()
	grandparentPage := parent.ParentPage()

	parent.initializeInternal()
	parent.SetIsRoot(wasRoot)
	parent.SetParentPage(grandparentPage)
	for i := 0; i < len(leftEntries)-1; i++ {
		parent.insertInternalCellAt(uint32(i), leftEntries[i].child, leftEntries[i].key)
	}
	parent.SetRightChild(leftEntries[len(leftEntries)-1].child)
	promotedKey = leftEntries[len(leftEntries)-1].key

	sibling, err := t.pager.AllocatePage()
	if err != nil {
		return false, 0, 0, 0, err
	}
	sibling.initializeInternal()
	sibling.SetParentPage(grandparentPage)
	for i := 0; i < len(rightEntries)-1; i++ {
		sibling.insertInternalCellAt(uint32(i), rightEntries[i].child, rightEntries[i].key)
	}
	sibling.SetRightChild(rightEntries[len(rightEntries)-1].child)
	siblingMax = rightEntries[len(rightEntries)-1].key
	siblingID = sibling.ID()
	t.pager.MarkDirty(parent.ID())
	t.pager.MarkDirty(siblingID)

	for _, e := range rightEntries {
		cp, err := t.pager.GetPage(e.child)
		if err != nil {
			return false, 0, 0, 0, err
		}
		cp.SetParentPage(siblingID)
		t.pager.MarkDirty(e.child)
	}

	return true, promotedKey, siblingID, siblingMax, nil
}
