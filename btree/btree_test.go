package btree

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/intellect4all/kvbtree/common"
)

func setupTestBTree(t *testing.T) *BTree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	tree, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { tree.Close() })
	return tree
}

func makeRow(id uint32, username, email string) []byte {
	row := make([]byte, RowSize)
	putBeUint32(row[0:4], id)
	copy(row[4:4+UsernameSize], username)
	copy(row[4+UsernameSize:4+UsernameSize+EmailSize], email)
	return row
}

func TestEmptyScan(t *testing.T) {
	tree := setupTestBTree(t)

	it, err := tree.SelectAll()
	if err != nil {
		t.Fatalf("SelectAll failed: %v", err)
	}
	if it.Next() {
		t.Fatalf("expected no rows in an empty table")
	}
	if it.Err() != nil {
		t.Fatalf("unexpected iterator error: %v", it.Err())
	}
}

func TestInsertFindRoundTrip(t *testing.T) {
	tree := setupTestBTree(t)

	row := makeRow(1, "alice", "alice@example.com")
	if err := tree.Insert(1, row); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := tree.Find(1)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if string(got) != string(row) {
		t.Fatalf("row mismatch after insert")
	}

	if _, err := tree.Find(2); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}
}

func TestInsertFindRoundTripAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	tree, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	row := makeRow(7, "bob", "bob@example.com")
	if err := tree.Insert(7, row); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := tree.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	tree2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer tree2.Close()

	got, err := tree2.Find(7)
	if err != nil {
		t.Fatalf("Find after reopen failed: %v", err)
	}
	if string(got) != string(row) {
		t.Fatalf("row mismatch after reopen")
	}
}

func TestDuplicateKeyRejected(t *testing.T) {
	tree := setupTestBTree(t)

	if err := tree.Insert(1, makeRow(1, "a", "a@x.com")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	err := tree.Insert(1, makeRow(1, "a2", "a2@x.com"))
	if !errors.Is(err, common.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestUpdateDurability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := first.Insert(1, makeRow(1, "alice", "alice@x.com")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	updated := makeRow(1, "alice2", "alice2@x.com")
	if err := first.Update(1, updated); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	tree, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer tree.Close()
	got, err := tree.Find(1)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if string(got) != string(updated) {
		t.Fatalf("update not durable")
	}
	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate after update failed: %v", err)
	}
}

func TestUpdateMissingKey(t *testing.T) {
	tree := setupTestBTree(t)
	err := tree.Update(1, makeRow(1, "a", "a@x.com"))
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteMissingKey(t *testing.T) {
	tree := setupTestBTree(t)
	err := tree.Delete(42)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestLeafSplitAtFourteenKeys inserts exactly enough rows to force one
// leaf split and checks the tree still validates and finds every key.
func TestLeafSplitAtFourteenKeys(t *testing.T) {
	tree := setupTestBTree(t)

	for i := uint32(1); i <= 14; i++ {
		row := makeRow(i, "user", "user@example.com")
		if err := tree.Insert(i, row); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}
	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	for i := uint32(1); i <= 14; i++ {
		if _, err := tree.Find(i); err != nil {
			t.Fatalf("Find(%d) failed after split: %v", i, err)
		}
	}
}

// TestCascadeInsertDelete inserts a larger run, deletes a middle range,
// and checks the surviving keys and structural invariants.
func TestCascadeInsertDelete(t *testing.T) {
	tree := setupTestBTree(t)

	for i := uint32(1); i <= 32; i++ {
		if err := tree.Insert(i, makeRow(i, "user", "user@example.com")); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}
	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate after inserts failed: %v", err)
	}

	for i := uint32(8); i <= 23; i++ {
		if err := tree.Delete(i); err != nil {
			t.Fatalf("Delete(%d) failed: %v", i, err)
		}
	}
	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate after deletes failed: %v", err)
	}

	for i := uint32(1); i <= 32; i++ {
		_, err := tree.Find(i)
		if i >= 8 && i <= 23 {
			if !errors.Is(err, common.ErrNotFound) {
				t.Fatalf("key %d should have been deleted, got err=%v", i, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Find(%d) failed: %v", i, err)
		}
	}
}

// TestPageReuseAfterDeleteReinsert checks that deleting then reinserting
// does not grow the file (the freed page is recycled).
func TestPageReuseAfterDeleteReinsert(t *testing.T) {
	tree := setupTestBTree(t)

	for i := uint32(1); i <= 32; i++ {
		if err := tree.Insert(i, makeRow(i, "user", "user@example.com")); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}
	for i := uint32(8); i <= 23; i++ {
		if err := tree.Delete(i); err != nil {
			t.Fatalf("Delete(%d) failed: %v", i, err)
		}
	}
	before := tree.pager.NumPages()

	for i := uint32(8); i <= 23; i++ {
		if err := tree.Insert(i, makeRow(i, "user2", "user2@example.com")); err != nil {
			t.Fatalf("reinsert(%d) failed: %v", i, err)
		}
	}
	after := tree.pager.NumPages()

	if after > before {
		t.Fatalf("expected freed pages to be recycled: pages grew from %d to %d", before, after)
	}
	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate after reinsert failed: %v", err)
	}
}
