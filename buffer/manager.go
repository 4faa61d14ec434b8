package buffer

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/kura/file"
	"github.com/leftmike/kura/storage"
	"github.com/leftmike/kura/wal"
)

// ErrBufferAbort means no buffer became free within the wait bound. It is
// transaction scoped: the caller should roll back and may retry.
var ErrBufferAbort = errors.New("buffer: no buffers available")

const DefaultMaxWait = 10 * time.Second

// Manager owns a fixed pool of buffers. Pinning a block not in the pool
// replaces some unpinned buffer, flushing it first if dirty; if every
// buffer is pinned, Pin waits up to maxWait for one to be unpinned and
// fails with ErrBufferAbort after that.
type Manager struct {
	maxWait time.Duration

	mutex     sync.Mutex
	cond      *sync.Cond
	pool      []*Buffer
	available int
}

func NewManager(st storage.Store, lm *wal.Manager, numbuffs int, maxWait time.Duration) *Manager {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	bm := &Manager{
		maxWait:   maxWait,
		pool:      make([]*Buffer, numbuffs),
		available: numbuffs,
	}
	bm.cond = sync.NewCond(&bm.mutex)
	for idx := range bm.pool {
		bm.pool[idx] = newBuffer(st, lm)
	}
	return bm
}

// Available returns the number of unpinned buffers.
func (bm *Manager) Available() int {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	return bm.available
}

// FlushAll writes every dirty buffer modified by txnum to storage.
func (bm *Manager) FlushAll(txnum int32) error {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	for _, b := range bm.pool {
		if b.txnum == txnum {
			err := b.flush()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// FlushDirty writes every dirty buffer to storage, whatever transaction
// modified it; it is used by checkpointing.
func (bm *Manager) FlushDirty() error {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	for _, b := range bm.pool {
		err := b.flush()
		if err != nil {
			return err
		}
	}
	return nil
}

func (bm *Manager) Unpin(b *Buffer) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	b.unpin()
	if !b.IsPinned() {
		bm.available += 1
		bm.cond.Broadcast()
	}
}

// Pin returns a buffer caching blk, pinned once more.
func (bm *Manager) Pin(blk file.BlockId) (*Buffer, error) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	deadline := time.Now().Add(bm.maxWait)
	for {
		b, err := bm.tryToPin(blk)
		if err != nil {
			return nil, err
		}
		if b != nil {
			return b, nil
		}
		if !time.Now().Before(deadline) {
			log.WithField("block", blk).Warn("pin timed out")
			return nil, ErrBufferAbort
		}
		bm.wait(deadline)
	}
}

// wait blocks on the pool condition until a buffer is unpinned or the
// deadline passes. The caller must hold the pool mutex and must recheck
// both its condition and the deadline: wakeups can be spurious.
func (bm *Manager) wait(deadline time.Time) {
	d := time.Until(deadline)
	if d <= 0 {
		return
	}

	tmr := time.AfterFunc(d,
		func() {
			bm.mutex.Lock()
			bm.cond.Broadcast()
			bm.mutex.Unlock()
		})
	bm.cond.Wait()
	tmr.Stop()
}

func (bm *Manager) tryToPin(blk file.BlockId) (*Buffer, error) {
	b := bm.findExistingBuffer(blk)
	if b == nil {
		b = bm.chooseUnpinnedBuffer()
		if b == nil {
			return nil, nil
		}
		err := b.assignToBlock(blk)
		if err != nil {
			return nil, err
		}
	}

	if !b.IsPinned() {
		bm.available -= 1
	}
	b.pin()
	return b, nil
}

func (bm *Manager) findExistingBuffer(blk file.BlockId) *Buffer {
	for _, b := range bm.pool {
		if b.assigned && b.blk == blk {
			return b
		}
	}
	return nil
}

func (bm *Manager) chooseUnpinnedBuffer() *Buffer {
	for _, b := range bm.pool {
		if !b.IsPinned() {
			return b
		}
	}
	return nil
}
