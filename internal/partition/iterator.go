package partition

// Iterator streams the rows of one partition. Implementations are not
// safe for concurrent use; a partition server consumes its iterator
// once, during Init, before serving begins.
type Iterator interface {
	// Next returns the next row, or ok=false when the partition is
	// exhausted.
	Next() (row []byte, ok bool)
}

type sliceIterator struct {
	rows [][]byte
	next int
}

// NewSliceIterator returns an Iterator over an in-memory row slice.
func NewSliceIterator(rows [][]byte) Iterator {
	return &sliceIterator{rows: rows}
}

func (it *sliceIterator) Next() ([]byte, bool) {
	if it.next >= len(it.rows) {
		return nil, false
	}
	row := it.rows[it.next]
	it.next++
	return row, true
}

// Collect drains an iterator into a slice.
func Collect(it Iterator) [][]byte {
	var rows [][]byte
	for {
		row, ok := it.Next()
		if !ok {
			return rows
		}
		rows = append(rows, row)
	}
}
