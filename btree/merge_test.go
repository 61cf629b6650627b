package btree

import "testing"

// TestDeleteTriggersLeafBorrow deletes just enough from one leaf to drop
// it below minimum fill while a neighbor still has spare cells, which
// should borrow rather than merge.
func TestDeleteTriggersLeafBorrow(t *testing.T) {
	tree := setupTestBTree(t)

	for i := uint32(1); i <= 40; i++ {
		if err := tree.Insert(i, makeRow(i, "u", "u@x.com")); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}
	// Remove most of the keys from the low end of the key space, pushing
	// the first leaf below LeafMinFill while the next leaf still holds a
	// cell more than LeafMinFill.
	for i := uint32(1); i <= 10; i++ {
		if err := tree.Delete(i); err != nil {
			t.Fatalf("Delete(%d) failed: %v", i, err)
		}
	}
	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	for i := uint32(11); i <= 40; i++ {
		if _, err := tree.Find(i); err != nil {
			t.Fatalf("Find(%d) failed: %v", i, err)
		}
	}
}

// TestDeleteTriggersLeafMerge deletes nearly everything, forcing repeated
// leaf merges (and eventually root collapse back to a single leaf).
func TestDeleteTriggersLeafMerge(t *testing.T) {
	tree := setupTestBTree(t)

	const n = 100
	for i := uint32(1); i <= n; i++ {
		if err := tree.Insert(i, makeRow(i, "u", "u@x.com")); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}
	for i := uint32(1); i <= n-3; i++ {
		if err := tree.Delete(i); err != nil {
			t.Fatalf("Delete(%d) failed: %v", i, err)
		}
		if err := tree.Validate(); err != nil {
			t.Fatalf("Validate failed after deleting %d: %v", i, err)
		}
	}
	for i := uint32(n - 2); i <= n; i++ {
		if _, err := tree.Find(i); err != nil {
			t.Fatalf("Find(%d) failed: %v", i, err)
		}
	}
}

// TestLargeWorkloadCascadesThroughInternalLevels inserts and deletes
// enough keys to force internal-node splits, merges, and root collapse,
// checking invariants throughout.
func TestLargeWorkloadCascadesThroughInternalLevels(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large cascade test in -short mode")
	}
	tree := setupTestBTree(t)

	const n = 4000
	for i := uint32(1); i <= n; i++ {
		if err := tree.Insert(i, makeRow(i, "u", "u@x.com")); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}
	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate after bulk insert failed: %v", err)
	}

	for i := uint32(1); i <= n; i += 2 {
		if err := tree.Delete(i); err != nil {
			t.Fatalf("Delete(%d) failed: %v", i, err)
		}
	}
	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate after bulk delete failed: %v", err)
	}

	for i := uint32(1); i <= n; i++ {
		_, err := tree.Find(i)
		if i%2 == 1 {
			if err == nil {
				t.Fatalf("key %d should have been deleted", i)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Find(%d) failed: %v", i, err)
		}
	}
}

func TestRootCollapseAfterDrainingTree(t *testing.T) {
	tree := setupTestBTree(t)

	const n = 200
	for i := uint32(1); i <= n; i++ {
		if err := tree.Insert(i, makeRow(i, "u", "u@x.com")); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}
	for i := uint32(1); i <= n; i++ {
		if err := tree.Delete(i); err != nil {
			t.Fatalf("Delete(%d) failed: %v", i, err)
		}
	}
	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate after draining failed: %v", err)
	}

	root, err := tree.pager.GetPage(tree.pager.RootPageID())
	if err != nil {
		t.Fatalf("GetPage(root) failed: %v", err)
	}
	if !root.IsLeaf() {
		t.Fatalf("expected the tree to collapse to a single leaf root")
	}
	if root.NumCells() != 0 {
		t.Fatalf("expected the drained root to be empty, got %d cells", root.NumCells())
	}

	it, err := tree.SelectAll()
	if err != nil {
		t.Fatalf("SelectAll failed: %v", err)
	}
	if it.Next() {
		t.Fatalf("expected no rows after draining every key")
	}
}
