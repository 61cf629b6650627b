package table

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/intellect4all/kvbtree/common"
)

func setupTestTable(t *testing.T) *Table {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	tbl, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

func TestInsertFindRoundTrip(t *testing.T) {
	tbl := setupTestTable(t)

	want := Record{ID: 1, Username: "alice", Email: "alice@example.com"}
	if err := tbl.Insert(want); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, ok, err := tbl.Find(1)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected record to be found")
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestInsertRejectsOversizedFields(t *testing.T) {
	tbl := setupTestTable(t)

	tooLongUsername := strings.Repeat("u", 33)
	err := tbl.Insert(Record{ID: 1, Username: tooLongUsername, Email: "a@x.com"})
	if !errors.Is(err, common.ErrStringTooLong) {
		t.Fatalf("expected ErrStringTooLong for username, got %v", err)
	}

	tooLongEmail := strings.Repeat("e", 256)
	err = tbl.Insert(Record{ID: 1, Username: "u", Email: tooLongEmail})
	if !errors.Is(err, common.ErrStringTooLong) {
		t.Fatalf("expected ErrStringTooLong for email, got %v", err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	tbl := setupTestTable(t)

	if err := tbl.Insert(Record{ID: 1, Username: "bob", Email: "bob@x.com"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	updated := Record{ID: 1, Username: "bob2", Email: "bob2@x.com"}
	if err := tbl.Update(updated); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, ok, err := tbl.Find(1)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected record to be found")
	}
	if got != updated {
		t.Fatalf("got %+v, want %+v", got, updated)
	}

	if err := tbl.Delete(1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, err := tbl.Find(1); err != nil || ok {
		t.Fatalf("expected not found after delete, ok=%v err=%v", ok, err)
	}
}

func TestSelectAllOrder(t *testing.T) {
	tbl := setupTestTable(t)

	for _, id := range []uint32{5, 3, 1, 4, 2} {
		if err := tbl.Insert(Record{ID: id, Username: "u", Email: "u@x.com"}); err != nil {
			t.Fatalf("Insert(%d) failed: %v", id, err)
		}
	}

	it, err := tbl.SelectAll()
	if err != nil {
		t.Fatalf("SelectAll failed: %v", err)
	}
	var got []uint32
	for it.Next() {
		got = append(got, it.Record().ID)
	}
	if it.Err() != nil {
		t.Fatalf("iteration error: %v", it.Err())
	}
	want := []uint32{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRange(t *testing.T) {
	tbl := setupTestTable(t)
	for i := uint32(1); i <= 10; i++ {
		if err := tbl.Insert(Record{ID: i, Username: "u", Email: "u@x.com"}); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}
	lo, hi := uint32(3), uint32(6)
	it, err := tbl.Range(&lo, &hi)
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	var got []uint32
	for it.Next() {
		got = append(got, it.Record().ID)
	}
	want := []uint32{3, 4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestInstanceIDStableAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	tbl, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	id1 := tbl.InstanceID()
	if err := tbl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	tbl2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer tbl2.Close()
	id2 := tbl2.InstanceID()
	if id1 != id2 {
		t.Fatalf("instance id changed across reopen: %q != %q", id1, id2)
	}
}

func TestValidateAfterWorkload(t *testing.T) {
	tbl := setupTestTable(t)
	for i := uint32(1); i <= 50; i++ {
		if err := tbl.Insert(Record{ID: i, Username: "u", Email: "u@x.com"}); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}
	for i := uint32(10); i <= 30; i++ {
		if err := tbl.Delete(i); err != nil {
			t.Fatalf("Delete(%d) failed: %v", i, err)
		}
	}
	if err := tbl.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}
