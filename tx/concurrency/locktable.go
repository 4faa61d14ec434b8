package concurrency

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/kura/file"
)

// ErrLockAbort means a lock wait exceeded the bound, which is taken as a
// deadlock. The transaction must roll back; the whole transaction may be
// retried.
var ErrLockAbort = errors.New("concurrency: lock wait timed out")

const DefaultMaxWait = 10 * time.Second

// LockTable grants shared and exclusive locks on block identities. A
// block is either unheld, held shared by one or more transactions, or
// held exclusive by exactly one. There is one lock table per engine.
type LockTable struct {
	maxWait time.Duration

	mutex sync.Mutex
	locks map[file.BlockId]*lockEntry
}

type lockEntry struct {
	shared    map[int32]struct{}
	exclusive int32 // holder, or noHolder
	waiters   int
	cond      *sync.Cond
}

const noHolder = int32(-1)

func NewLockTable(maxWait time.Duration) *LockTable {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &LockTable{
		maxWait: maxWait,
		locks:   map[file.BlockId]*lockEntry{},
	}
}

func (lt *LockTable) entry(blk file.BlockId) *lockEntry {
	e, ok := lt.locks[blk]
	if !ok {
		e = &lockEntry{
			shared:    map[int32]struct{}{},
			exclusive: noHolder,
			cond:      sync.NewCond(&lt.mutex),
		}
		lt.locks[blk] = e
	}
	return e
}

func (lt *LockTable) remove(blk file.BlockId, e *lockEntry) {
	if len(e.shared) == 0 && e.exclusive == noHolder && e.waiters == 0 {
		delete(lt.locks, blk)
	}
}

// wait blocks on the entry condition until the lock state changes or the
// deadline passes. Wakeups can be spurious; the caller rechecks.
func (e *lockEntry) wait(mutex *sync.Mutex, deadline time.Time) {
	d := time.Until(deadline)
	if d <= 0 {
		return
	}

	tmr := time.AfterFunc(d,
		func() {
			mutex.Lock()
			e.cond.Broadcast()
			mutex.Unlock()
		})
	e.cond.Wait()
	tmr.Stop()
}

// SLock grants txnum a shared lock on blk, waiting while another
// transaction holds it exclusive.
func (lt *LockTable) SLock(txnum int32, blk file.BlockId) error {
	lt.mutex.Lock()
	defer lt.mutex.Unlock()

	e := lt.entry(blk)
	deadline := time.Now().Add(lt.maxWait)
	for e.exclusive != noHolder {
		if e.exclusive == txnum {
			return nil // Already held exclusive; no need for shared.
		}
		if !time.Now().Before(deadline) {
			lt.remove(blk, e)
			log.WithFields(log.Fields{"tx": txnum, "block": blk}).Warn("slock timed out")
			return ErrLockAbort
		}
		e.waiters += 1
		e.wait(&lt.mutex, deadline)
		e.waiters -= 1
	}

	e.shared[txnum] = struct{}{}
	return nil
}

// XLock grants txnum an exclusive lock on blk, waiting while any other
// transaction holds it in either mode. A transaction that is the sole
// shared holder upgrades in place.
func (lt *LockTable) XLock(txnum int32, blk file.BlockId) error {
	lt.mutex.Lock()
	defer lt.mutex.Unlock()

	e := lt.entry(blk)
	deadline := time.Now().Add(lt.maxWait)
	for !e.xAvailable(txnum) {
		if !time.Now().Before(deadline) {
			lt.remove(blk, e)
			log.WithFields(log.Fields{"tx": txnum, "block": blk}).Warn("xlock timed out")
			return ErrLockAbort
		}
		e.waiters += 1
		e.wait(&lt.mutex, deadline)
		e.waiters -= 1
	}

	delete(e.shared, txnum)
	e.exclusive = txnum
	return nil
}

func (e *lockEntry) xAvailable(txnum int32) bool {
	if e.exclusive != noHolder {
		return e.exclusive == txnum
	}
	for holder := range e.shared {
		if holder != txnum {
			return false
		}
	}
	return true
}

// Unlock releases whatever lock txnum holds on blk.
func (lt *LockTable) Unlock(txnum int32, blk file.BlockId) {
	lt.mutex.Lock()
	defer lt.mutex.Unlock()

	e, ok := lt.locks[blk]
	if !ok {
		return
	}

	if e.exclusive == txnum {
		e.exclusive = noHolder
	}
	delete(e.shared, txnum)
	e.cond.Broadcast()
	lt.remove(blk, e)
}
