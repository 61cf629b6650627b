package common

// Stats reports pager- and tree-level bookkeeping useful for diagnostics.
type Stats struct {
	NumKeys       int64
	NumPages      int
	FreePages     int
	TotalDiskSize int64

	WriteCount int64
	ReadCount  int64

	CacheHits   int64
	CacheMisses int64
}

// Iterator is a forward-only cursor over key-ordered records. It is
// invalidated by any mutating call on the table that produced it.
type Iterator interface {
	Next() bool
	Err() error
	Close() error
}
