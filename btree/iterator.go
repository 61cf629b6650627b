package btree

import "github.com/intellect4all/kvbtree/common"

// Iterator scans key-ordered (key, row) pairs starting at a cursor. It is
// invalidated by any mutating call made on the engine after it was
// created: Next reports common.ErrCorrupt-free io by returning false and
// setting err to a stale-iterator error once it detects the engine's
// generation counter has moved.
type Iterator struct {
	t          *BTree
	cur        cursor
	generation uint64
	started    bool
	hi         *uint32 // inclusive upper bound, nil = unbounded
	err        error
	key        uint32
	row        []byte
}

// ErrIteratorStale is returned by Next once the table was mutated after
// the iterator was created.
var ErrIteratorStale = errStale{}

type errStale struct{}

func (errStale) Error() string { return "iterator invalidated by a concurrent mutation" }

// SelectAll returns an iterator over every record in ascending key order.
func (t *BTree) SelectAll() (*Iterator, error) {
	return t.Range(nil, nil)
}

// Range returns an iterator over records with lo <= key <= hi. Either
// bound may be nil to leave that side unbounded.
func (t *BTree) Range(lo, hi *uint32) (*Iterator, error) {
	var c cursor
	var err error
	if lo == nil {
		c, err = t.start()
	} else {
		c, _, err = t.find(*lo)
		if err == nil {
			// lo sorts after every cell of its leaf: start at the next leaf.
			var leaf *page
			if leaf, err = t.pager.GetPage(c.pageID); err == nil && c.cell >= leaf.NumCells() {
				c, err = t.advance(c)
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return &Iterator{t: t, cur: c, generation: t.pager.Generation(), hi: hi}, nil
}

// Next advances the iterator and reports whether a record is available.
// On the first call it does not advance past the cursor's starting
// position.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.generation != it.t.pager.Generation() {
		it.err = ErrIteratorStale
		return false
	}

	if it.started {
		c, err := it.t.advance(it.cur)
		if err != nil {
			it.err = err
			return false
		}
		it.cur = c
	}
	it.started = true

	if it.cur.atEnd {
		return false
	}

	leaf, err := it.t.pager.GetPage(it.cur.pageID)
	if err != nil {
		it.err = err
		return false
	}
	key := leaf.LeafKey(it.cur.cell)
	if it.hi != nil && key > *it.hi {
		return false
	}
	it.key = key
	it.row = leaf.LeafRow(it.cur.cell)
	return true
}

// Key returns the current record's key. Valid only after Next returns true.
func (it *Iterator) Key() uint32 { return it.key }

// Row returns a copy of the current record's ROW_SIZE row. Valid only
// after Next returns true.
func (it *Iterator) Row() []byte { return it.row }

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error { return it.err }

// Close releases the iterator. It holds no resources of its own; the
// method exists to satisfy common.Iterator.
func (it *Iterator) Close() error { return nil }

var _ common.Iterator = (*Iterator)(nil)
