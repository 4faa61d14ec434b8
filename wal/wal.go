package wal

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/kura/file"
	"github.com/leftmike/kura/storage"
)

// LSN is a log sequence number: a strictly increasing identifier assigned
// to every appended log record. Buffers remember the LSN of their last
// modification so that a page is never written before the log record
// describing the change is durable.
type LSN int64

// NoLSN marks a buffer modification with no log record.
const NoLSN = LSN(-1)

// Manager appends variable length records to a dedicated log file of
// fixed-size blocks. Each block is filled from the tail toward the head:
// the int32 at offset 0 is the boundary where the valid records begin, and
// the most recently appended record is at the boundary. Records are only
// durable up to the last flushed LSN.
type Manager struct {
	st      storage.Store
	logfile string

	mutex        sync.Mutex
	logpage      *file.Page
	currentblk   file.BlockId
	latestLSN    LSN
	lastSavedLSN LSN
}

func NewManager(st storage.Store, logfile string) (*Manager, error) {
	lm := &Manager{
		st:      st,
		logfile: logfile,
		logpage: file.NewPage(st.BlockSize()),
	}

	length, err := st.Length(logfile)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		lm.currentblk, err = lm.appendNewBlock()
		if err != nil {
			return nil, err
		}
	} else {
		lm.currentblk = file.BlockId{Filename: logfile, Blknum: length - 1}
		err = st.Read(lm.currentblk, lm.logpage)
		if err != nil {
			return nil, err
		}
		err = checkBoundary(lm.logpage, st.BlockSize())
		if err != nil {
			return nil, err
		}
	}
	return lm, nil
}

func checkBoundary(p *file.Page, blockSize int) error {
	boundary, err := p.GetInt(0)
	if err != nil {
		return err
	}
	if boundary < 4 || int(boundary) > blockSize {
		return fmt.Errorf("wal: bad log block boundary: %d", boundary)
	}
	return nil
}

func (lm *Manager) appendNewBlock() (file.BlockId, error) {
	blk, err := lm.st.Append(lm.logfile)
	if err != nil {
		return file.BlockId{}, err
	}

	buf := lm.logpage.Contents()
	for idx := range buf {
		buf[idx] = 0
	}
	lm.logpage.SetInt(0, int32(lm.st.BlockSize()))
	err = lm.st.Write(blk, lm.logpage)
	if err != nil {
		return file.BlockId{}, err
	}
	return blk, nil
}

// Append adds a record to the log and returns its LSN. The record is not
// necessarily durable until Flush is called with its LSN or greater.
func (lm *Manager) Append(rec []byte) (LSN, error) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	bytesneeded := file.MaxLength(len(rec))
	if bytesneeded+4 > lm.st.BlockSize() {
		return 0, fmt.Errorf("wal: record of %d bytes too large for blocks of %d bytes",
			len(rec), lm.st.BlockSize())
	}

	boundary, err := lm.logpage.GetInt(0)
	if err != nil {
		return 0, err
	}
	if int(boundary)-bytesneeded < 4 { // The record does not fit.
		err = lm.flush()
		if err != nil {
			return 0, err
		}
		lm.currentblk, err = lm.appendNewBlock()
		if err != nil {
			return 0, err
		}
		boundary = int32(lm.st.BlockSize())
	}

	recpos := int(boundary) - bytesneeded
	err = lm.logpage.SetBytes(recpos, rec)
	if err != nil {
		return 0, err
	}
	lm.logpage.SetInt(0, int32(recpos))
	lm.latestLSN += 1

	log.WithFields(log.Fields{
		"lsn":   lm.latestLSN,
		"block": lm.currentblk,
		"pos":   recpos,
	}).Trace("append log record")
	return lm.latestLSN, nil
}

// Flush forces the log to durable storage if any record at or before lsn
// is not yet durable.
func (lm *Manager) Flush(lsn LSN) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lsn >= lm.lastSavedLSN {
		return lm.flush()
	}
	return nil
}

func (lm *Manager) flush() error {
	err := lm.st.Write(lm.currentblk, lm.logpage)
	if err != nil {
		return err
	}
	lm.lastSavedLSN = lm.latestLSN
	return nil
}

// Iterator returns a cursor over the log records in reverse order: the
// most recently appended record first. The log is flushed first so that
// the cursor sees every appended record.
func (lm *Manager) Iterator() (*Iterator, error) {
	lm.mutex.Lock()
	err := lm.flush()
	blk := lm.currentblk
	lm.mutex.Unlock()
	if err != nil {
		return nil, err
	}

	return newIterator(lm.st, blk)
}
