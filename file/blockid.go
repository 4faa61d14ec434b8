package file

import (
	"fmt"
)

// EndOfFile is a pseudo block number used to serialize appends to a file:
// a transaction locks {filename, EndOfFile} before growing the file.
const EndOfFile = int32(-1)

// BlockId identifies a fixed-size block of a file; it is the identity key
// for pages, buffers, and locks.
type BlockId struct {
	Filename string
	Blknum   int32
}

func (blk BlockId) String() string {
	return fmt.Sprintf("[file %s, block %d]", blk.Filename, blk.Blknum)
}
