package storage

import (
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger"
	log "github.com/sirupsen/logrus"

	"github.com/leftmike/kura/file"
)

type badgerStore struct {
	blockSize int
	isNew     bool
	mutex     sync.Mutex
	db        *badger.DB
}

func MakeBadgerStore(dataDir string, blockSize int, sync bool,
	logger *log.Logger) (Store, error) {

	isNew := false
	_, err := os.Stat(dataDir)
	if os.IsNotExist(err) {
		isNew = true
	}
	os.MkdirAll(dataDir, 0755)

	opts := badger.DefaultOptions(dataDir)
	opts = opts.WithBypassLockGuard(true)
	opts = opts.WithLogger(logger)
	opts = opts.WithSyncWrites(sync)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerStore{
		blockSize: blockSize,
		isNew:     isNew,
		db:        db,
	}, nil
}

func (st *badgerStore) BlockSize() int {
	return st.blockSize
}

func (st *badgerStore) IsNew() bool {
	return st.isNew
}

func (st *badgerStore) Read(blk file.BlockId, p *file.Page) error {
	return st.db.View(
		func(tx *badger.Txn) error {
			buf := p.Contents()
			item, err := tx.Get(blockKey(blk))
			if err == badger.ErrKeyNotFound {
				for n := 0; n < len(buf); n++ {
					buf[n] = 0
				}
				return nil
			} else if err != nil {
				return fmt.Errorf("badger: read %s: %s", blk, err)
			}

			return item.Value(
				func(val []byte) error {
					if len(val) != st.blockSize {
						return fmt.Errorf("badger: block %s has %d bytes, want %d", blk,
							len(val), st.blockSize)
					}
					copy(buf, val)
					return nil
				})
		})
}

func (st *badgerStore) Write(blk file.BlockId, p *file.Page) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	return st.db.Update(
		func(tx *badger.Txn) error {
			return tx.Set(blockKey(blk), append([]byte(nil), p.Contents()...))
		})
}

func (st *badgerStore) Append(filename string) (file.BlockId, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	var blk file.BlockId
	err := st.db.Update(
		func(tx *badger.Txn) error {
			length := int32(0)
			item, err := tx.Get(lengthKey(filename))
			if err == nil {
				err = item.Value(
					func(val []byte) error {
						length, err = decodeLength(val)
						return err
					})
				if err != nil {
					return err
				}
			} else if err != badger.ErrKeyNotFound {
				return fmt.Errorf("badger: length %s: %s", filename, err)
			}

			blk = file.BlockId{Filename: filename, Blknum: length}
			err = tx.Set(blockKey(blk), make([]byte, st.blockSize))
			if err != nil {
				return err
			}
			return tx.Set(lengthKey(filename), encodeLength(length+1))
		})
	if err != nil {
		return file.BlockId{}, err
	}
	return blk, nil
}

func (st *badgerStore) Length(filename string) (int32, error) {
	var length int32
	err := st.db.View(
		func(tx *badger.Txn) error {
			item, err := tx.Get(lengthKey(filename))
			if err == badger.ErrKeyNotFound {
				return nil
			} else if err != nil {
				return fmt.Errorf("badger: length %s: %s", filename, err)
			}
			return item.Value(
				func(val []byte) error {
					length, err = decodeLength(val)
					return err
				})
		})
	if err != nil {
		return 0, err
	}
	return length, nil
}

func (st *badgerStore) Close() error {
	return st.db.Close()
}
