package compress

// Iterator yields archive entries in archive order. Next returns io.EOF once
// the archive is exhausted. An entry's Reader is only valid until the next
// call to Next.
type Iterator interface {
	Next() (Entry, error)
}

// ReadCloserIterator is an Iterator that holds an open file
type ReadCloserIterator interface {
	Iterator
	Close() error
}
