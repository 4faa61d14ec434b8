package buffer

import (
	"github.com/leftmike/kura/file"
	"github.com/leftmike/kura/storage"
	"github.com/leftmike/kura/wal"
)

// NoTx marks a buffer with no modifying transaction.
const NoTx = int32(-1)

// Buffer is a pooled slot caching the contents of one block. A buffer
// with a positive pin count may not be reassigned; a buffer modified by a
// transaction is dirty until flushed. The buffer remembers the LSN of the
// log record for its last modification so the log can be flushed first.
type Buffer struct {
	st       storage.Store
	lm       *wal.Manager
	contents *file.Page
	blk      file.BlockId
	assigned bool
	pins     int32
	txnum    int32
	lsn      wal.LSN
}

func newBuffer(st storage.Store, lm *wal.Manager) *Buffer {
	return &Buffer{
		st:       st,
		lm:       lm,
		contents: file.NewPage(st.BlockSize()),
		txnum:    NoTx,
		lsn:      wal.NoLSN,
	}
}

func (b *Buffer) Contents() *file.Page {
	return b.contents
}

// Block returns the block this buffer is assigned to; it is only
// meaningful while the buffer is pinned.
func (b *Buffer) Block() file.BlockId {
	return b.blk
}

// SetModified marks the buffer dirty. lsn is the log record describing
// the modification, or wal.NoLSN if the change was not logged.
func (b *Buffer) SetModified(txnum int32, lsn wal.LSN) {
	b.txnum = txnum
	if lsn >= 0 {
		b.lsn = lsn
	}
}

func (b *Buffer) IsPinned() bool {
	return b.pins > 0
}

func (b *Buffer) ModifyingTx() int32 {
	return b.txnum
}

func (b *Buffer) assignToBlock(blk file.BlockId) error {
	err := b.flush()
	if err != nil {
		return err
	}
	err = b.st.Read(blk, b.contents)
	if err != nil {
		return err
	}
	b.blk = blk
	b.assigned = true
	b.pins = 0
	return nil
}

// flush writes the buffer to its block if it is dirty, forcing the log
// record for its last modification to durable storage first.
func (b *Buffer) flush() error {
	if b.txnum == NoTx {
		return nil
	}

	err := b.lm.Flush(b.lsn)
	if err != nil {
		return err
	}
	err = b.st.Write(b.blk, b.contents)
	if err != nil {
		return err
	}
	b.txnum = NoTx
	return nil
}

func (b *Buffer) pin() {
	b.pins += 1
}

func (b *Buffer) unpin() {
	b.pins -= 1
}
