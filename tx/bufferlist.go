package tx

import (
	"github.com/leftmike/kura/buffer"
	"github.com/leftmike/kura/file"
)

// bufferList tracks the buffers a transaction has pinned. A block may be
// pinned more than once; unpinAll balances whatever pins remain when the
// transaction ends.
type bufferList struct {
	bm      *buffer.Manager
	buffers map[file.BlockId]*buffer.Buffer
	pins    []file.BlockId
}

func makeBufferList(bm *buffer.Manager) *bufferList {
	return &bufferList{
		bm:      bm,
		buffers: map[file.BlockId]*buffer.Buffer{},
	}
}

func (bl *bufferList) buffer(blk file.BlockId) *buffer.Buffer {
	return bl.buffers[blk]
}

func (bl *bufferList) pin(blk file.BlockId) error {
	b, err := bl.bm.Pin(blk)
	if err != nil {
		return err
	}
	bl.buffers[blk] = b
	bl.pins = append(bl.pins, blk)
	return nil
}

func (bl *bufferList) unpin(blk file.BlockId) {
	b, ok := bl.buffers[blk]
	if !ok {
		return
	}
	bl.bm.Unpin(b)

	for idx := range bl.pins {
		if bl.pins[idx] == blk {
			bl.pins = append(bl.pins[:idx], bl.pins[idx+1:]...)
			break
		}
	}
	for _, pinned := range bl.pins {
		if pinned == blk {
			return
		}
	}
	delete(bl.buffers, blk)
}

func (bl *bufferList) unpinAll() {
	for _, blk := range bl.pins {
		bl.bm.Unpin(bl.buffers[blk])
	}
	bl.buffers = map[file.BlockId]*buffer.Buffer{}
	bl.pins = nil
}
