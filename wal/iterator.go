package wal

import (
	"github.com/leftmike/kura/file"
	"github.com/leftmike/kura/storage"
)

// Iterator walks the log backward, block by block. Within a block the
// records sit oldest-last, so reading forward from the boundary visits
// them newest first.
type Iterator struct {
	st         storage.Store
	blk        file.BlockId
	p          *file.Page
	currentpos int
}

func newIterator(st storage.Store, blk file.BlockId) (*Iterator, error) {
	it := &Iterator{
		st: st,
		p:  file.NewPage(st.BlockSize()),
	}
	err := it.moveToBlock(blk)
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (it *Iterator) moveToBlock(blk file.BlockId) error {
	err := it.st.Read(blk, it.p)
	if err != nil {
		return err
	}
	err = checkBoundary(it.p, it.st.BlockSize())
	if err != nil {
		return err
	}

	boundary, _ := it.p.GetInt(0)
	it.blk = blk
	it.currentpos = int(boundary)
	return nil
}

func (it *Iterator) HasNext() bool {
	return it.currentpos < it.st.BlockSize() || it.blk.Blknum > 0
}

// Next returns the next record moving backward through the log. The
// returned slice is only valid until the following call to Next.
func (it *Iterator) Next() ([]byte, error) {
	if it.currentpos == it.st.BlockSize() {
		err := it.moveToBlock(file.BlockId{Filename: it.blk.Filename, Blknum: it.blk.Blknum - 1})
		if err != nil {
			return nil, err
		}
	}

	rec, err := it.p.GetBytes(it.currentpos)
	if err != nil {
		return nil, err
	}
	it.currentpos += file.MaxLength(len(rec))
	return rec, nil
}
