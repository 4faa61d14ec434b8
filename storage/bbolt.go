package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/leftmike/kura/file"
)

var (
	kuraBucket = []byte{'k', 'u', 'r', 'a'}
)

type bboltStore struct {
	blockSize int
	isNew     bool
	mutex     sync.Mutex
	db        *bbolt.DB
}

func MakeBBoltStore(dataDir string, blockSize int, sync bool) (Store, error) {
	db, err := bbolt.Open(filepath.Join(dataDir, "kura.bbolt"), 0644, nil)
	if err != nil {
		return nil, err
	}
	if !sync {
		// Dangerous, but about 100x faster.
		db.NoFreelistSync = true
		db.NoSync = true
	}

	isNew := false
	tx, err := db.Begin(true)
	if err != nil {
		return nil, err
	}
	if tx.Bucket(kuraBucket) == nil {
		isNew = true
		_, err = tx.CreateBucket(kuraBucket)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		err = tx.Commit()
		if err != nil {
			return nil, err
		}
	} else {
		tx.Rollback()
	}

	return &bboltStore{
		blockSize: blockSize,
		isNew:     isNew,
		db:        db,
	}, nil
}

func (st *bboltStore) BlockSize() int {
	return st.blockSize
}

func (st *bboltStore) IsNew() bool {
	return st.isNew
}

func (st *bboltStore) view(fn func(bkt *bbolt.Bucket) error) error {
	return st.db.View(
		func(tx *bbolt.Tx) error {
			bkt := tx.Bucket(kuraBucket)
			if bkt == nil {
				return errors.New("bbolt: missing kura bucket")
			}
			return fn(bkt)
		})
}

func (st *bboltStore) update(fn func(bkt *bbolt.Bucket) error) error {
	return st.db.Update(
		func(tx *bbolt.Tx) error {
			bkt := tx.Bucket(kuraBucket)
			if bkt == nil {
				return errors.New("bbolt: missing kura bucket")
			}
			return fn(bkt)
		})
}

func (st *bboltStore) Read(blk file.BlockId, p *file.Page) error {
	return st.view(
		func(bkt *bbolt.Bucket) error {
			buf := p.Contents()
			val := bkt.Get(blockKey(blk))
			if val != nil && len(val) != st.blockSize {
				return fmt.Errorf("bbolt: block %s has %d bytes, want %d", blk, len(val),
					st.blockSize)
			}
			n := copy(buf, val)
			for ; n < len(buf); n++ {
				buf[n] = 0
			}
			return nil
		})
}

func (st *bboltStore) Write(blk file.BlockId, p *file.Page) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	return st.update(
		func(bkt *bbolt.Bucket) error {
			return bkt.Put(blockKey(blk), p.Contents())
		})
}

func (st *bboltStore) Append(filename string) (file.BlockId, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	var blk file.BlockId
	err := st.update(
		func(bkt *bbolt.Bucket) error {
			length := int32(0)
			if val := bkt.Get(lengthKey(filename)); val != nil {
				var err error
				length, err = decodeLength(val)
				if err != nil {
					return err
				}
			}

			blk = file.BlockId{Filename: filename, Blknum: length}
			err := bkt.Put(blockKey(blk), make([]byte, st.blockSize))
			if err != nil {
				return err
			}
			return bkt.Put(lengthKey(filename), encodeLength(length+1))
		})
	if err != nil {
		return file.BlockId{}, err
	}
	return blk, nil
}

func (st *bboltStore) Length(filename string) (int32, error) {
	var length int32
	err := st.view(
		func(bkt *bbolt.Bucket) error {
			if val := bkt.Get(lengthKey(filename)); val != nil {
				var err error
				length, err = decodeLength(val)
				return err
			}
			return nil
		})
	if err != nil {
		return 0, err
	}
	return length, nil
}

func (st *bboltStore) Close() error {
	return st.db.Close()
}
