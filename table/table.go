// Package table provides the executor surface: it marshals Go values to
// and from the B+-tree's fixed-shape row format and exposes the
// operations a client actually calls (insert, find, update, delete,
// range scans) instead of the raw cell-level btree API.
package table

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/intellect4all/kvbtree/btree"
	"github.com/intellect4all/kvbtree/common"
)

// Record is the decoded form of one row: an id and two bounded strings.
type Record struct {
	ID       uint32
	Username string
	Email    string
}

// Table wraps a BTree with record marshaling and a stable identity.
type Table struct {
	tree *btree.BTree
	path string
}

// Open opens (or creates) a table backed by the file at path.
func Open(path string) (*Table, error) {
	tree, err := btree.Open(path)
	if err != nil {
		return nil, err
	}
	return &Table{tree: tree, path: path}, nil
}

// Close flushes and releases the underlying file.
func (t *Table) Close() error { return t.tree.Close() }

// Sync flushes dirty pages and the header to disk without closing.
func (t *Table) Sync() error { return t.tree.Sync() }

// Stats reports pager- and tree-level bookkeeping.
func (t *Table) Stats() common.Stats { return t.tree.Stats() }

// Validate walks the whole tree checking structural invariants.
func (t *Table) Validate() error { return t.tree.Validate() }

// DumpTree renders the tree structure for diagnostics.
func (t *Table) DumpTree() string { return t.tree.DumpTree() }

// Insert adds a new record. It fails with common.ErrDuplicateKey if the
// id already exists, or common.ErrStringTooLong if Username/Email
// overflow their fixed fields.
func (t *Table) Insert(r Record) error {
	row, err := marshalRow(r)
	if err != nil {
		return err
	}
	return t.tree.Insert(r.ID, row)
}

// Find looks up a record by id. The bool reports whether it was found;
// a missing key is not an error.
func (t *Table) Find(id uint32) (Record, bool, error) {
	row, err := t.tree.Find(id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return unmarshalRow(row), true, nil
}

// Update overwrites an existing record in place. It fails with
// common.ErrNotFound if id does not exist.
func (t *Table) Update(r Record) error {
	row, err := marshalRow(r)
	if err != nil {
		return err
	}
	return t.tree.Update(r.ID, row)
}

// Delete removes a record by id.
func (t *Table) Delete(id uint32) error {
	return t.tree.Delete(id)
}

// SelectAll returns an iterator over every record in ascending id order.
func (t *Table) SelectAll() (*RowIterator, error) {
	it, err := t.tree.SelectAll()
	if err != nil {
		return nil, err
	}
	return &RowIterator{it: it}, nil
}

// Range returns an iterator over records with lo <= id <= hi. Either
// bound may be nil to leave that side unbounded.
func (t *Table) Range(lo, hi *uint32) (*RowIterator, error) {
	it, err := t.tree.Range(lo, hi)
	if err != nil {
		return nil, err
	}
	return &RowIterator{it: it}, nil
}

// RowIterator decodes rows off a *btree.Iterator into Records.
type RowIterator struct {
	it *btree.Iterator
}

// Next advances the iterator and reports whether a record is available.
func (it *RowIterator) Next() bool { return it.it.Next() }

// Record returns the current decoded record. Valid only after Next
// returns true.
func (it *RowIterator) Record() Record { return unmarshalRow(it.it.Row()) }

// Err returns the error that stopped iteration, if any.
func (it *RowIterator) Err() error { return it.it.Err() }

// Close releases the iterator.
func (it *RowIterator) Close() error { return it.it.Close() }

func marshalRow(r Record) ([]byte, error) {
	if len(r.Username) > btree.UsernameSize {
		return nil, fmt.Errorf("username %q: %w", r.Username, common.ErrStringTooLong)
	}
	if len(r.Email) > btree.EmailSize {
		return nil, fmt.Errorf("email %q: %w", r.Email, common.ErrStringTooLong)
	}

	row := make([]byte, btree.RowSize)
	binary.BigEndian.PutUint32(row[0:4], r.ID)
	copy(row[4:4+btree.UsernameSize], r.Username)
	copy(row[4+btree.UsernameSize:4+btree.UsernameSize+btree.EmailSize], r.Email)
	return row, nil
}

func unmarshalRow(row []byte) Record {
	id := binary.BigEndian.Uint32(row[0:4])
	username := trimTrailingZeros(row[4 : 4+btree.UsernameSize])
	email := trimTrailingZeros(row[4+btree.UsernameSize : 4+btree.UsernameSize+btree.EmailSize])
	return Record{ID: id, Username: username, Email: email}
}

func trimTrailingZeros(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}

// InstanceID returns a stable identifier for this table file, persisted
// in a sidecar "<path>.id" file next to the data file. The id is
// generated once on first use and read back on every subsequent open,
// so it survives across process restarts but is independent of the
// data file's own contents. Sidecar I/O failures are logged and fall
// back to a fresh in-memory id; InstanceID never returns an error.
func (t *Table) InstanceID() uuid.UUID {
	idPath := t.path + ".id"

	if data, err := os.ReadFile(idPath); err == nil {
		if id, err := uuid.ParseBytes(data); err == nil {
			return id
		}
		// Sidecar exists but is unreadable as a uuid; fall through and
		// regenerate rather than returning corrupt data to the caller.
	} else if !os.IsNotExist(err) {
		log.Printf("table: reading instance id %s: %v", idPath, err)
	}

	id := uuid.New()
	if err := os.WriteFile(idPath, []byte(id.String()), 0o644); err != nil {
		log.Printf("table: writing instance id %s: %v", idPath, err)
	}
	return id
}
