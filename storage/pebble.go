package storage

import (
	"fmt"
	"os"
	"sync"

	"github.com/cockroachdb/pebble"
	log "github.com/sirupsen/logrus"

	"github.com/leftmike/kura/file"
)

type pebbleStore struct {
	blockSize int
	isNew     bool
	sync      bool
	mutex     sync.Mutex
	db        *pebble.DB
}

func MakePebbleStore(dataDir string, blockSize int, sync bool,
	logger *log.Logger) (Store, error) {

	isNew := false
	_, err := os.Stat(dataDir)
	if os.IsNotExist(err) {
		isNew = true
	}
	os.MkdirAll(dataDir, 0755)

	db, err := pebble.Open(dataDir, &pebble.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	return &pebbleStore{
		blockSize: blockSize,
		isNew:     isNew,
		sync:      sync,
		db:        db,
	}, nil
}

func (st *pebbleStore) BlockSize() int {
	return st.blockSize
}

func (st *pebbleStore) IsNew() bool {
	return st.isNew
}

func (st *pebbleStore) writeOptions() *pebble.WriteOptions {
	if st.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (st *pebbleStore) Read(blk file.BlockId, p *file.Page) error {
	buf := p.Contents()
	val, closer, err := st.db.Get(blockKey(blk))
	if err == pebble.ErrNotFound {
		for n := 0; n < len(buf); n++ {
			buf[n] = 0
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("pebble: read %s: %s", blk, err)
	}
	defer closer.Close()

	if len(val) != st.blockSize {
		return fmt.Errorf("pebble: block %s has %d bytes, want %d", blk, len(val), st.blockSize)
	}
	copy(buf, val)
	return nil
}

func (st *pebbleStore) Write(blk file.BlockId, p *file.Page) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	err := st.db.Set(blockKey(blk), p.Contents(), st.writeOptions())
	if err != nil {
		return fmt.Errorf("pebble: write %s: %s", blk, err)
	}
	return nil
}

func (st *pebbleStore) length(filename string) (int32, error) {
	val, closer, err := st.db.Get(lengthKey(filename))
	if err == pebble.ErrNotFound {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("pebble: length %s: %s", filename, err)
	}
	defer closer.Close()

	return decodeLength(val)
}

func (st *pebbleStore) Append(filename string) (file.BlockId, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	length, err := st.length(filename)
	if err != nil {
		return file.BlockId{}, err
	}

	blk := file.BlockId{Filename: filename, Blknum: length}
	batch := st.db.NewBatch()
	batch.Set(blockKey(blk), make([]byte, st.blockSize), nil)
	batch.Set(lengthKey(filename), encodeLength(length+1), nil)
	err = batch.Commit(st.writeOptions())
	if err != nil {
		return file.BlockId{}, fmt.Errorf("pebble: append %s: %s", filename, err)
	}
	return blk, nil
}

func (st *pebbleStore) Length(filename string) (int32, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	return st.length(filename)
}

func (st *pebbleStore) Close() error {
	return st.db.Close()
}
