package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/kura/file"
)

type diskStore struct {
	dataDir   string
	blockSize int
	isNew     bool
	sync      bool

	mutex     sync.Mutex
	openFiles map[string]*os.File
}

// MakeDiskStore opens a directory of block files, creating the directory
// as needed. Every file in the directory is a sequence of blockSize byte
// blocks; block N lives at byte offset N*blockSize.
func MakeDiskStore(dataDir string, blockSize int, sync bool) (Store, error) {
	isNew := false
	_, err := os.Stat(dataDir)
	if os.IsNotExist(err) {
		isNew = true
		err = os.MkdirAll(dataDir, 0755)
		if err != nil {
			return nil, fmt.Errorf("disk: %s", err)
		}
		log.WithField("data", dataDir).Info("created data directory")
	} else if err != nil {
		return nil, fmt.Errorf("disk: %s", err)
	}

	return &diskStore{
		dataDir:   dataDir,
		blockSize: blockSize,
		isNew:     isNew,
		sync:      sync,
		openFiles: map[string]*os.File{},
	}, nil
}

func (st *diskStore) BlockSize() int {
	return st.blockSize
}

func (st *diskStore) IsNew() bool {
	return st.isNew
}

func (st *diskStore) getFile(filename string) (*os.File, error) {
	f, ok := st.openFiles[filename]
	if ok {
		return f, nil
	}

	f, err := os.OpenFile(filepath.Join(st.dataDir, filename), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("disk: %s", err)
	}
	st.openFiles[filename] = f
	return f, nil
}

func (st *diskStore) Read(blk file.BlockId, p *file.Page) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	f, err := st.getFile(blk.Filename)
	if err != nil {
		return err
	}

	buf := p.Contents()
	n, err := f.ReadAt(buf, int64(blk.Blknum)*int64(st.blockSize))
	if err != nil && err != io.EOF {
		return fmt.Errorf("disk: read %s: %s", blk, err)
	}
	for ; n < len(buf); n++ {
		buf[n] = 0
	}
	return nil
}

func (st *diskStore) Write(blk file.BlockId, p *file.Page) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	f, err := st.getFile(blk.Filename)
	if err != nil {
		return err
	}

	_, err = f.WriteAt(p.Contents(), int64(blk.Blknum)*int64(st.blockSize))
	if err != nil {
		return fmt.Errorf("disk: write %s: %s", blk, err)
	}
	if st.sync {
		err = f.Sync()
		if err != nil {
			return fmt.Errorf("disk: sync %s: %s", blk.Filename, err)
		}
	}
	return nil
}

func (st *diskStore) Append(filename string) (file.BlockId, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	f, err := st.getFile(filename)
	if err != nil {
		return file.BlockId{}, err
	}
	fi, err := f.Stat()
	if err != nil {
		return file.BlockId{}, fmt.Errorf("disk: %s", err)
	}

	blk := file.BlockId{
		Filename: filename,
		Blknum:   int32(fi.Size() / int64(st.blockSize)),
	}
	_, err = f.WriteAt(make([]byte, st.blockSize), int64(blk.Blknum)*int64(st.blockSize))
	if err != nil {
		return file.BlockId{}, fmt.Errorf("disk: append %s: %s", filename, err)
	}
	if st.sync {
		err = f.Sync()
		if err != nil {
			return file.BlockId{}, fmt.Errorf("disk: sync %s: %s", filename, err)
		}
	}
	return blk, nil
}

func (st *diskStore) Length(filename string) (int32, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	f, err := st.getFile(filename)
	if err != nil {
		return 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("disk: %s", err)
	}
	return int32(fi.Size() / int64(st.blockSize)), nil
}

func (st *diskStore) Close() error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	for filename, f := range st.openFiles {
		err := f.Close()
		if err != nil {
			return fmt.Errorf("disk: close %s: %s", filename, err)
		}
	}
	st.openFiles = map[string]*os.File{}
	return nil
}
