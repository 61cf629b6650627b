package btree

import (
	"container/list"
	"fmt"
	"log"
	"os"

	"github.com/intellect4all/kvbtree/common"
)

const (
	// FileHeaderSize is the 8-byte header preceding page 0: root_page(4) +
	// free_head(4), both big-endian like every multi-byte field in the
	// file, whatever the host's byte order.
	FileHeaderSize = 8

	// CacheCap is the default number of resident page buffers.
	CacheCap = 100

	// TableMaxPages bounds the addressable page space; allocation past it
	// fails with common.ErrTableFull.
	TableMaxPages = 100_000
)

type fileHeader struct {
	RootPage uint32
	FreeHead uint32
}

// Pager owns the file handle, the bounded LRU page cache, the dirty set,
// and the in-RAM freelist. The tree never touches the file directly.
type Pager struct {
	file     *os.File
	header   fileHeader
	numPages uint32

	cache     map[uint32]*page
	lru       *list.List
	lruElem   map[uint32]*list.Element
	cacheCap  int
	dirty     map[uint32]bool
	freeList  []uint32
	closed    bool
	generation uint64

	stats common.Stats
}

// OpenPager opens an existing database file or creates a fresh one with a
// single empty root leaf at page 0.
func OpenPager(path string) (*Pager, error) {
	return OpenWithCache(path, CacheCap)
}

// OpenWithCache is OpenPager with an explicit cache capacity, mainly so tests
// can exercise eviction without allocating thousands of pages.
func OpenWithCache(path string, cacheCap int) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %v", common.ErrDiskError, err)
		}
		return createPager(path, cacheCap)
	}
	return loadPager(f, cacheCap)
}

func newPagerShell(f *os.File, cacheCap int) *Pager {
	return &Pager{
		file:     f,
		cache:    make(map[uint32]*page),
		lru:      list.New(),
		lruElem:  make(map[uint32]*list.Element),
		cacheCap: cacheCap,
		dirty:    make(map[uint32]bool),
	}
}

func createPager(path string, cacheCap int) (*Pager, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDiskError, err)
	}

	p := newPagerShell(f, cacheCap)
	p.header = fileHeader{RootPage: 0, FreeHead: 0}
	p.numPages = 1

	root := newPage(0)
	root.initializeLeaf()
	root.SetIsRoot(true)
	p.cache[0] = root
	p.lruElem[0] = p.lru.PushFront(uint32(0))
	p.dirty[0] = true

	if err := p.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}

func loadPager(f *os.File, cacheCap int) (*Pager, error) {
	p := newPagerShell(f, cacheCap)

	buf := make([]byte, FileHeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: short header read: %v", common.ErrDiskError, err)
	}
	p.header.RootPage = beUint32(buf[0:4])
	p.header.FreeHead = beUint32(buf[4:8])

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrDiskError, err)
	}
	dataSize := info.Size() - FileHeaderSize
	if dataSize < 0 || dataSize%PageSize != 0 {
		f.Close()
		return nil, fmt.Errorf("%w: truncated page data", common.ErrCorrupt)
	}
	p.numPages = uint32(dataSize / PageSize)

	// §9 open question, resolved: the freelist is discarded on close, so
	// a non-zero free_head recovered here names at most one reclaimable
	// page (the rest of any chain was never durable). Treat it as a
	// single-entry freelist rather than attempting to walk a chain that
	// was never persisted past its head.
	if p.header.FreeHead != 0 && p.header.FreeHead < p.numPages {
		p.freeList = []uint32{p.header.FreeHead}
	}
	p.header.FreeHead = 0

	return p, nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBeUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func (p *Pager) writeHeader() error {
	buf := make([]byte, FileHeaderSize)
	putBeUint32(buf[0:4], p.header.RootPage)
	putBeUint32(buf[4:8], p.header.FreeHead)
	if _, err := p.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDiskError, err)
	}
	return nil
}

func (p *Pager) pageFileOffset(id uint32) int64 {
	return FileHeaderSize + int64(id)*PageSize
}

// GetPage returns the page, from cache or disk, moving it to MRU.
func (p *Pager) GetPage(id uint32) (*page, error) {
	if p.closed {
		return nil, common.ErrClosed
	}
	if id >= p.numPages {
		return nil, fmt.Errorf("%w: page %d >= %d", common.ErrPageOutOfBounds, id, p.numPages)
	}

	if pg, ok := p.cache[id]; ok {
		if elem, ok := p.lruElem[id]; ok {
			p.lru.MoveToFront(elem)
		}
		p.stats.CacheHits++
		return pg, nil
	}

	p.stats.CacheMisses++
	pg, err := p.readPage(id)
	if err != nil {
		return nil, err
	}
	p.addToCache(id, pg)
	return pg, nil
}

func (p *Pager) readPage(id uint32) (*page, error) {
	offset := p.pageFileOffset(id)

	info, err := p.file.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDiskError, err)
	}
	if offset+PageSize > info.Size() {
		// Declared (numPages counts it) but never flushed to disk: not a
		// failure, just a page this session allocated and hasn't written
		// yet.
		return newPage(id), nil
	}

	buf := make([]byte, PageSize)
	n, err := p.file.ReadAt(buf, offset)
	if err != nil || n != PageSize {
		// Within the file's declared extent: a short read here is real
		// corruption, not an end-of-file condition.
		return nil, fmt.Errorf("%w: short read on page %d: %v", common.ErrDiskError, id, err)
	}
	p.stats.ReadCount++
	return loadPage(id, buf)
}

func (p *Pager) writePage(pg *page) error {
	if _, err := p.file.WriteAt(pg.Data(), p.pageFileOffset(pg.ID())); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDiskError, err)
	}
	p.stats.WriteCount++
	return nil
}

func (p *Pager) addToCache(id uint32, pg *page) {
	if p.lru.Len() >= p.cacheCap {
		p.evictLRU()
	}
	p.cache[id] = pg
	p.lruElem[id] = p.lru.PushFront(id)
}

func (p *Pager) evictLRU() {
	elem := p.lru.Back()
	if elem == nil {
		return
	}
	id := elem.Value.(uint32)

	if p.dirty[id] {
		if pg, ok := p.cache[id]; ok {
			if err := p.writePage(pg); err != nil {
				log.Printf("kvbtree: error flushing page %d on eviction: %v", id, err)
			} else {
				pg.SetDirty(false)
				delete(p.dirty, id)
			}
		}
	}

	delete(p.cache, id)
	delete(p.lruElem, id)
	p.lru.Remove(elem)
}

// MarkDirty records that a cached page's contents no longer match disk.
// Every mutator in the tree calls this on every page it writes to; a
// write path that forgets this loses its update silently on eviction.
func (p *Pager) MarkDirty(id uint32) {
	if pg, ok := p.cache[id]; ok {
		pg.SetDirty(true)
	}
	p.dirty[id] = true
}

// InvalidateIterators bumps the generation counter so outstanding cursors
// notice the next time they check it.
func (p *Pager) InvalidateIterators() { p.generation++ }

// Generation returns the current mutation generation.
func (p *Pager) Generation() uint64 { return p.generation }

// AllocatePage returns a freshly zeroed page, either recycled from the
// freelist or extending the file. The caller must type it via
// initializeLeaf/initializeInternal before use.
func (p *Pager) AllocatePage() (*page, error) {
	if id, ok := p.popFreelist(); ok {
		pg := newPage(id)
		p.addToCache(id, pg)
		p.MarkDirty(id)
		return pg, nil
	}

	if p.numPages >= TableMaxPages {
		return nil, common.ErrTableFull
	}
	id := p.numPages
	p.numPages++

	pg := newPage(id)
	p.addToCache(id, pg)
	p.MarkDirty(id)
	return pg, nil
}

// popFreelist pops one page id off the in-RAM freelist, first validating
// the list with freelistSound to catch a duplicated entry or one pointing
// past end-of-file. A corrupt list is reset to empty rather than
// trusted (safety over space reclamation).
func (p *Pager) popFreelist() (uint32, bool) {
	if len(p.freeList) == 0 {
		return 0, false
	}
	if !p.freelistSound() {
		log.Printf("kvbtree: freelist corrupt, resetting to empty")
		p.freeList = nil
		return 0, false
	}
	n := len(p.freeList)
	id := p.freeList[n-1]
	p.freeList = p.freeList[:n-1]
	return id, true
}

// freelistSound scans the in-RAM stack once, recording each id in a seen
// set, looking for a duplicated page id (the RAM-stack analogue of a
// cycle in a page-linked chain) or an id past end-of-file. The slow index
// it advances plays no part in the result.
func (p *Pager) freelistSound() bool {
	seen := make(map[uint32]bool, len(p.freeList))
	slow := 0
	for fast := 0; fast < len(p.freeList); fast++ {
		id := p.freeList[fast]
		if id >= p.numPages {
			return false
		}
		if seen[id] {
			return false
		}
		seen[id] = true
		if fast%2 == 1 {
			slow++
		}
	}
	return true
}

// CheckFreelist is the read-only diagnostic counterpart of popFreelist,
// used by Validate(): it reports corruption instead of silently repairing
// it.
func (p *Pager) CheckFreelist() error {
	seen := make(map[uint32]bool, len(p.freeList))
	for _, id := range p.freeList {
		if id >= p.numPages {
			return fmt.Errorf("%w: freelist entry %d out of range", common.ErrCorrupt, id)
		}
		if seen[id] {
			return fmt.Errorf("%w: freelist entry %d repeated", common.ErrCorrupt, id)
		}
		seen[id] = true
	}
	return nil
}

// FreePage pushes id onto the freelist and evicts it from cache so a
// later read of id cannot observe stale node contents.
func (p *Pager) FreePage(id uint32) {
	if _, ok := p.cache[id]; ok {
		delete(p.cache, id)
		if elem, ok := p.lruElem[id]; ok {
			p.lru.Remove(elem)
			delete(p.lruElem, id)
		}
	}
	delete(p.dirty, id)
	p.freeList = append(p.freeList, id)
}

// FlushPage writes page id to disk if dirty.
func (p *Pager) FlushPage(id uint32) error {
	pg, ok := p.cache[id]
	if !ok {
		return nil
	}
	if !p.dirty[id] {
		return nil
	}
	if err := p.writePage(pg); err != nil {
		return err
	}
	pg.SetDirty(false)
	delete(p.dirty, id)
	return nil
}

// RootPageID returns the current root page id.
func (p *Pager) RootPageID() uint32 { return p.header.RootPage }

// SetRootPageID updates the in-memory root pointer; it is persisted at
// Close/Sync along with the rest of the header.
func (p *Pager) SetRootPageID(id uint32) { p.header.RootPage = id }

// NumPages returns the number of pages currently addressable in the file.
func (p *Pager) NumPages() uint32 { return p.numPages }

// Stats returns pager-level bookkeeping for diagnostics.
func (p *Pager) Stats() common.Stats {
	s := p.stats
	s.NumPages = int(p.numPages)
	s.FreePages = len(p.freeList)
	s.TotalDiskSize = int64(p.numPages)*PageSize + FileHeaderSize
	return s
}

// Sync flushes every dirty page and the file header, without closing.
func (p *Pager) Sync() error {
	if p.closed {
		return common.ErrClosed
	}
	for id := range p.dirty {
		if pg, ok := p.cache[id]; ok {
			if err := p.writePage(pg); err != nil {
				return err
			}
			pg.SetDirty(false)
		}
	}
	p.dirty = make(map[uint32]bool)
	if err := p.writeHeader(); err != nil {
		return err
	}
	return p.file.Sync()
}

// Close flushes every dirty page, discards the freelist (§9 open
// question, resolved in favor of safety over space), writes the final
// header, and releases the file handle.
func (p *Pager) Close() error {
	if p.closed {
		return nil
	}
	for id := range p.dirty {
		if pg, ok := p.cache[id]; ok {
			if err := p.writePage(pg); err != nil {
				return fmt.Errorf("flush on close: %w", err)
			}
			pg.SetDirty(false)
		}
	}
	p.dirty = make(map[uint32]bool)

	p.header.FreeHead = 0
	if err := p.writeHeader(); err != nil {
		return err
	}
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDiskError, err)
	}
	if err := p.file.Close(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDiskError, err)
	}
	p.closed = true
	return nil
}
