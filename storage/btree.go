package storage

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/leftmike/kura/file"
)

// btreeStore keeps blocks in memory; it is used by tests and for scratch
// engines that do not need durability.
type btreeStore struct {
	blockSize int
	mutex     sync.Mutex
	tree      *btree.BTree
}

type btreeItem struct {
	key []byte
	val []byte
}

func (bi btreeItem) Less(item btree.Item) bool {
	bi2 := item.(btreeItem)
	return bytes.Compare(bi.key, bi2.key) < 0
}

func MakeBTreeStore(blockSize int) (Store, error) {
	return &btreeStore{
		blockSize: blockSize,
		tree:      btree.New(16),
	}, nil
}

func (st *btreeStore) BlockSize() int {
	return st.blockSize
}

func (st *btreeStore) IsNew() bool {
	return true
}

func (st *btreeStore) Read(blk file.BlockId, p *file.Page) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	buf := p.Contents()
	var val []byte
	if item := st.tree.Get(btreeItem{key: blockKey(blk)}); item != nil {
		val = item.(btreeItem).val
	}
	if val != nil && len(val) != st.blockSize {
		return fmt.Errorf("btree: block %s has %d bytes, want %d", blk, len(val), st.blockSize)
	}
	n := copy(buf, val)
	for ; n < len(buf); n++ {
		buf[n] = 0
	}
	return nil
}

func (st *btreeStore) Write(blk file.BlockId, p *file.Page) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	st.tree.ReplaceOrInsert(
		btreeItem{
			key: blockKey(blk),
			val: append([]byte(nil), p.Contents()...),
		})
	return nil
}

func (st *btreeStore) Append(filename string) (file.BlockId, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	length := int32(0)
	if item := st.tree.Get(btreeItem{key: lengthKey(filename)}); item != nil {
		var err error
		length, err = decodeLength(item.(btreeItem).val)
		if err != nil {
			return file.BlockId{}, err
		}
	}

	blk := file.BlockId{Filename: filename, Blknum: length}
	st.tree.ReplaceOrInsert(btreeItem{key: blockKey(blk), val: make([]byte, st.blockSize)})
	st.tree.ReplaceOrInsert(btreeItem{key: lengthKey(filename), val: encodeLength(length + 1)})
	return blk, nil
}

func (st *btreeStore) Length(filename string) (int32, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if item := st.tree.Get(btreeItem{key: lengthKey(filename)}); item != nil {
		return decodeLength(item.(btreeItem).val)
	}
	return 0, nil
}

func (st *btreeStore) Close() error {
	return nil
}
