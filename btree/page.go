package btree

import (
	"encoding/binary"
	"errors"
)

const (
	PageSize = 4096 // fixed page size; matches the file's per-page stride

	NodeTypeLeaf     = 0
	NodeTypeInternal = 1

	// Common header, present on every page regardless of node type.
	CommonHeaderSize = 6 // node_type(1) + is_root(1) + parent_page(4)
	offsetNodeType   = 0
	offsetIsRoot     = 1
	offsetParentPage = 2

	// Leaf header, immediately after the common header.
	LeafHeaderSize = CommonHeaderSize + 8 // num_cells(4) + next_leaf(4)
	offsetNumCells = CommonHeaderSize
	offsetNextLeaf = CommonHeaderSize + 4

	// Leaf cell: key(4) + row(ROW_SIZE).
	KeySize      = 4
	UsernameSize = 32
	EmailSize    = 255
	RowSize      = KeySize + UsernameSize + EmailSize // 291, payload only
	LeafCellSize = KeySize + RowSize                  // 295
	LeafMaxCells = (PageSize - LeafHeaderSize) / LeafCellSize

	// Internal header, immediately after the common header.
	InternalHeaderSize = CommonHeaderSize + 8 // num_keys(4) + right_child(4)
	offsetNumKeys      = CommonHeaderSize
	offsetRightChild   = CommonHeaderSize + 4

	// Internal cell: child_page(4) + separator_key(4).
	InternalCellSize = 8
	InternalMaxKeys  = (PageSize - InternalHeaderSize) / InternalCellSize

	// MinFill per the root-exempt occupancy invariant: half the maxima.
	LeafMinFill     = LeafMaxCells / 2
	InternalMinFill = InternalMaxKeys / 2
)

var (
	ErrPageFull     = errors.New("page is full")
	ErrCellNotFound = errors.New("cell not found")
	ErrBadPageSize  = errors.New("invalid page size")
)

// page is one fixed 4096-byte disk block, typed as either a leaf or an
// internal node according to its common header. Cells live at fixed
// offsets (header + i*cellSize) in ascending key order at all times —
// this is the wire format, not an implementation choice, so offsets must
// match bit-for-bit across implementations.
type page struct {
	id    uint32
	data  [PageSize]byte
	dirty bool
}

func newPage(id uint32) *page {
	return &page{id: id}
}

func loadPage(id uint32, data []byte) (*page, error) {
	if len(data) != PageSize {
		return nil, ErrBadPageSize
	}
	p := &page{id: id}
	copy(p.data[:], data)
	return p, nil
}

func (p *page) ID() uint32 { return p.id }

func (p *page) IsDirty() bool   { return p.dirty }
func (p *page) SetDirty(d bool) { p.dirty = d }
func (p *page) Data() []byte    { return p.data[:] }

func (p *page) NodeType() byte     { return p.data[offsetNodeType] }
func (p *page) setNodeType(t byte) { p.data[offsetNodeType] = t }
func (p *page) IsLeaf() bool       { return p.NodeType() == NodeTypeLeaf }

func (p *page) IsRoot() bool { return p.data[offsetIsRoot] != 0 }
func (p *page) SetIsRoot(v bool) {
	if v {
		p.data[offsetIsRoot] = 1
	} else {
		p.data[offsetIsRoot] = 0
	}
}

func (p *page) ParentPage() uint32 {
	return binary.BigEndian.Uint32(p.data[offsetParentPage:])
}
func (p *page) SetParentPage(id uint32) {
	binary.BigEndian.PutUint32(p.data[offsetParentPage:], id)
}

// --- Leaf accessors ---

func (p *page) NumCells() uint32 {
	return binary.BigEndian.Uint32(p.data[offsetNumCells:])
}
func (p *page) setNumCells(n uint32) {
	binary.BigEndian.PutUint32(p.data[offsetNumCells:], n)
}

func (p *page) NextLeaf() uint32 { return binary.BigEndian.Uint32(p.data[offsetNextLeaf:]) }
func (p *page) SetNextLeaf(id uint32) {
	binary.BigEndian.PutUint32(p.data[offsetNextLeaf:], id)
}

func (p *page) cellOffset(i uint32) int {
	return LeafHeaderSize + int(i)*LeafCellSize
}

// LeafKey returns the key stored at cell i. i must be < NumCells().
func (p *page) LeafKey(i uint32) uint32 {
	off := p.cellOffset(i)
	return binary.BigEndian.Uint32(p.data[off:])
}

func (p *page) setLeafKey(i uint32, key uint32) {
	off := p.cellOffset(i)
	binary.BigEndian.PutUint32(p.data[off:], key)
}

// LeafRow returns a copy of the ROW_SIZE payload bytes at cell i.
func (p *page) LeafRow(i uint32) []byte {
	off := p.cellOffset(i) + KeySize
	row := make([]byte, RowSize)
	copy(row, p.data[off:off+RowSize])
	return row
}

func (p *page) setLeafRow(i uint32, row []byte) {
	off := p.cellOffset(i) + KeySize
	copy(p.data[off:off+RowSize], row)
}

// insertLeafCellAt shifts cells [i, NumCells) right by one slot and writes
// (key, row) into slot i. Caller must ensure there is room (NumCells() <
// LeafMaxCells) and that i <= NumCells().
func (p *page) insertLeafCellAt(i uint32, key uint32, row []byte) {
	n := p.NumCells()
	for j := n; j > i; j-- {
		src := p.cellOffset(j - 1)
		dst := p.cellOffset(j)
		copy(p.data[dst:dst+LeafCellSize], p.data[src:src+LeafCellSize])
	}
	p.setLeafKey(i, key)
	p.setLeafRow(i, row)
	p.setNumCells(n + 1)
	p.dirty = true
}

// deleteLeafCellAt shifts cells (i, NumCells) left by one slot, removing
// the cell at i. Caller must ensure i < NumCells().
func (p *page) deleteLeafCellAt(i uint32) {
	n := p.NumCells()
	for j := i; j < n-1; j++ {
		src := p.cellOffset(j + 1)
		dst := p.cellOffset(j)
		copy(p.data[dst:dst+LeafCellSize], p.data[src:src+LeafCellSize])
	}
	p.setNumCells(n - 1)
	p.dirty = true
}

// --- Internal accessors ---

func (p *page) NumKeys() uint32 { return binary.BigEndian.Uint32(p.data[offsetNumKeys:]) }
func (p *page) setNumKeys(n uint32) {
	binary.BigEndian.PutUint32(p.data[offsetNumKeys:], n)
}

func (p *page) RightChild() uint32 { return binary.BigEndian.Uint32(p.data[offsetRightChild:]) }
func (p *page) SetRightChild(id uint32) {
	binary.BigEndian.PutUint32(p.data[offsetRightChild:], id)
}

func (p *page) internalCellOffset(i uint32) int {
	return InternalHeaderSize + int(i)*InternalCellSize
}

func (p *page) InternalChild(i uint32) uint32 {
	off := p.internalCellOffset(i)
	return binary.BigEndian.Uint32(p.data[off:])
}

func (p *page) setInternalChild(i uint32, childPage uint32) {
	off := p.internalCellOffset(i)
	binary.BigEndian.PutUint32(p.data[off:], childPage)
}

func (p *page) InternalKey(i uint32) uint32 {
	off := p.internalCellOffset(i) + 4
	return binary.BigEndian.Uint32(p.data[off:])
}

func (p *page) setInternalKey(i uint32, key uint32) {
	off := p.internalCellOffset(i) + 4
	binary.BigEndian.PutUint32(p.data[off:], key)
}

func (p *page) insertInternalCellAt(i uint32, childPage, key uint32) {
	n := p.NumKeys()
	for j := n; j > i; j-- {
		src := p.internalCellOffset(j - 1)
		dst := p.internalCellOffset(j)
		copy(p.data[dst:dst+InternalCellSize], p.data[src:src+InternalCellSize])
	}
	p.setInternalChild(i, childPage)
	p.setInternalKey(i, key)
	p.setNumKeys(n + 1)
	p.dirty = true
}

func (p *page) deleteInternalCellAt(i uint32) {
	n := p.NumKeys()
	for j := i; j < n-1; j++ {
		src := p.internalCellOffset(j + 1)
		dst := p.internalCellOffset(j)
		copy(p.data[dst:dst+InternalCellSize], p.data[src:src+InternalCellSize])
	}
	p.setNumKeys(n - 1)
	p.dirty = true
}

// initializeLeaf zeroes the page and sets it up as an empty leaf.
func (p *page) initializeLeaf() {
	for i := range p.data {
		p.data[i] = 0
	}
	p.setNodeType(NodeTypeLeaf)
	p.SetIsRoot(false)
	p.SetParentPage(0)
	p.setNumCells(0)
	p.SetNextLeaf(0)
	p.dirty = true
}

// initializeInternal zeroes the page and sets it up as an empty internal node.
func (p *page) initializeInternal() {
	for i := range p.data {
		p.data[i] = 0
	}
	p.setNodeType(NodeTypeInternal)
	p.SetIsRoot(false)
	p.SetParentPage(0)
	p.setNumKeys(0)
	p.SetRightChild(0)
	p.dirty = true
}
