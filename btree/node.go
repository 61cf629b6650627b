package btree

// searchLeaf binary-searches a leaf page's cells for key. It returns the
// cell index and true if key is present, or the insertion position (the
// index of the first cell with a greater key, possibly NumCells()) and
// false otherwise.
func searchLeaf(p *page, key uint32) (uint32, bool) {
	n := p.NumCells()
	lo, hi := uint32(0), n
	for lo < hi {
		mid := (lo + hi) / 2
		k := p.LeafKey(mid)
		switch {
		case k == key:
			return mid, true
		case k < key:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// searchInternal returns the least index i such that InternalKey(i) >= key,
// or NumKeys() if no such separator exists (meaning key belongs under
// RightChild).
func searchInternal(p *page, key uint32) uint32 {
	n := p.NumKeys()
	lo, hi := uint32(0), n
	for lo < hi {
		mid := (lo + hi) / 2
		if p.InternalKey(mid) >= key {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// childFor returns the child page id to descend into for key.
func childFor(p *page, key uint32) uint32 {
	i := searchInternal(p, key)
	if i == p.NumKeys() {
		return p.RightChild()
	}
	return p.InternalChild(i)
}

// maxKey returns the maximum key reachable through the subtree rooted at
// pageID: the last cell's key for a leaf, or the recursive max of
// right_child for an internal node.
func (t *BTree) maxKey(pageID uint32) (uint32, error) {
	p, err := t.pager.GetPage(pageID)
	if err != nil {
		return 0, err
	}
	for !p.IsLeaf() {
		p, err = t.pager.GetPage(p.RightChild())
		if err != nil {
			return 0, err
		}
	}
	n := p.NumCells()
	if n == 0 {
		return 0, ErrCellNotFound
	}
	return p.LeafKey(n - 1), nil
}
