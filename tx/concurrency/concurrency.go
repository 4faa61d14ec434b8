package concurrency

import (
	"github.com/leftmike/kura/file"
)

type lockMode int

const (
	sharedMode lockMode = iota + 1
	exclusiveMode
)

// Manager is the concurrency manager of a single transaction: it tracks
// the locks the transaction holds and asks the shared lock table for the
// ones it does not. Locks are held until Release, which the transaction
// calls exactly once at commit or rollback; that makes the protocol
// strict two-phase locking.
type Manager struct {
	tbl   *LockTable
	txnum int32
	locks map[file.BlockId]lockMode
}

func NewManager(tbl *LockTable, txnum int32) *Manager {
	return &Manager{
		tbl:   tbl,
		txnum: txnum,
		locks: map[file.BlockId]lockMode{},
	}
}

// SLock acquires a shared lock on blk; any lock already held is enough.
func (cm *Manager) SLock(blk file.BlockId) error {
	if _, ok := cm.locks[blk]; ok {
		return nil
	}

	err := cm.tbl.SLock(cm.txnum, blk)
	if err != nil {
		return err
	}
	cm.locks[blk] = sharedMode
	return nil
}

// XLock acquires an exclusive lock on blk, upgrading a held shared lock.
func (cm *Manager) XLock(blk file.BlockId) error {
	if cm.locks[blk] == exclusiveMode {
		return nil
	}

	if _, ok := cm.locks[blk]; !ok {
		err := cm.tbl.SLock(cm.txnum, blk)
		if err != nil {
			return err
		}
		cm.locks[blk] = sharedMode
	}
	err := cm.tbl.XLock(cm.txnum, blk)
	if err != nil {
		return err
	}
	cm.locks[blk] = exclusiveMode
	return nil
}

// Release drops every lock the transaction holds.
func (cm *Manager) Release() {
	for blk := range cm.locks {
		cm.tbl.Unlock(cm.txnum, blk)
	}
	cm.locks = map[file.BlockId]lockMode{}
}
