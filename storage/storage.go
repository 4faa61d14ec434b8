package storage

import (
	"encoding/binary"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/kura/file"
)

// Store is durable fixed-size block storage addressed by file name and
// block number. Reading a block past the end of a file fills the page
// with zeroes; Append extends the file with a zeroed block.
type Store interface {
	BlockSize() int
	IsNew() bool
	Read(blk file.BlockId, p *file.Page) error
	Write(blk file.BlockId, p *file.Page) error
	Append(filename string) (file.BlockId, error)
	Length(filename string) (int32, error)
	Close() error
}

func Open(store, dataDir string, blockSize int, sync bool, logger *log.Logger) (Store, error) {
	switch store {
	case "disk":
		return MakeDiskStore(dataDir, blockSize, sync)
	case "bbolt":
		return MakeBBoltStore(dataDir, blockSize, sync)
	case "badger":
		return MakeBadgerStore(dataDir, blockSize, sync, logger)
	case "pebble":
		return MakePebbleStore(dataDir, blockSize, sync, logger)
	case "btree":
		return MakeBTreeStore(blockSize)
	}
	return nil, fmt.Errorf("storage: unknown store: %s", store)
}

// Keys for the KV backed stores: blocks sort by file name and then block
// number; the length of each file is kept under a separate key.

func blockKey(blk file.BlockId) []byte {
	key := make([]byte, 0, len(blk.Filename)+6)
	key = append(key, 'b')
	key = append(key, blk.Filename...)
	key = append(key, 0)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(blk.Blknum))
	return append(key, buf[:]...)
}

func lengthKey(filename string) []byte {
	key := make([]byte, 0, len(filename)+1)
	key = append(key, 'l')
	return append(key, filename...)
}

func decodeLength(val []byte) (int32, error) {
	if len(val) != 4 {
		return 0, fmt.Errorf("storage: bad file length value: %v", val)
	}
	return int32(binary.BigEndian.Uint32(val)), nil
}

func encodeLength(length int32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(length))
	return buf[:]
}
