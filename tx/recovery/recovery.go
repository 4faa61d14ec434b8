package recovery

import (
	log "github.com/sirupsen/logrus"

	"github.com/leftmike/kura/buffer"
	"github.com/leftmike/kura/wal"
)

// Manager does undo-only recovery for a single transaction. Every
// modification logs the value it overwrote before the page changes, and
// the commit record is forced to durable storage before Commit returns;
// new values are never required in the log because dirty buffers are
// flushed before the commit record is written.
type Manager struct {
	lm    *wal.Manager
	bm    *buffer.Manager
	tx    UndoTx
	txnum int32
}

// NewManager logs the start of transaction txnum.
func NewManager(tx UndoTx, txnum int32, lm *wal.Manager, bm *buffer.Manager) (*Manager, error) {
	_, err := appendStart(lm, txnum)
	if err != nil {
		return nil, err
	}
	return &Manager{
		lm:    lm,
		bm:    bm,
		tx:    tx,
		txnum: txnum,
	}, nil
}

// SetInt logs the int32 currently at offset in buff, returning the LSN
// of the record. The caller modifies the page afterward.
func (rm *Manager) SetInt(buff *buffer.Buffer, offset int) (wal.LSN, error) {
	oldval, err := buff.Contents().GetInt(offset)
	if err != nil {
		return wal.NoLSN, err
	}
	return appendSetInt(rm.lm, rm.txnum, buff.Block(), offset, oldval)
}

// SetString logs the string currently at offset in buff, returning the
// LSN of the record. The caller modifies the page afterward.
func (rm *Manager) SetString(buff *buffer.Buffer, offset int) (wal.LSN, error) {
	oldval, err := buff.Contents().GetString(offset)
	if err != nil {
		return wal.NoLSN, err
	}
	return appendSetString(rm.lm, rm.txnum, buff.Block(), offset, oldval)
}

// Commit makes the transaction durable: its dirty buffers are written,
// then the commit record is appended and the log flushed through it.
func (rm *Manager) Commit() error {
	err := rm.bm.FlushAll(rm.txnum)
	if err != nil {
		return err
	}
	lsn, err := appendCommit(rm.lm, rm.txnum)
	if err != nil {
		return err
	}
	return rm.lm.Flush(lsn)
}

// Rollback undoes every modification of the transaction, scanning the
// log backward to its start record.
func (rm *Manager) Rollback() error {
	err := rm.doRollback()
	if err != nil {
		return err
	}

	err = rm.bm.FlushAll(rm.txnum)
	if err != nil {
		return err
	}
	lsn, err := appendRollback(rm.lm, rm.txnum)
	if err != nil {
		return err
	}
	return rm.lm.Flush(lsn)
}

func (rm *Manager) doRollback() error {
	it, err := rm.lm.Iterator()
	if err != nil {
		return err
	}
	for it.HasNext() {
		buf, err := it.Next()
		if err != nil {
			return err
		}
		rec, err := ParseRecord(buf)
		if err != nil {
			return err
		}
		if rec.TxNumber() != rm.txnum {
			continue
		}
		if rec.Op() == StartOp {
			return nil
		}
		log.WithFields(log.Fields{"tx": rm.txnum, "record": rec.String()}).Trace("undo")
		err = rec.Undo(rm.tx)
		if err != nil {
			return err
		}
	}
	return nil
}

// Recover restores the database to a state reflecting exactly the
// committed transactions: scanning the log backward, it undoes every
// modification of a transaction with no commit or rollback record. The
// scan stops at a checkpoint record, before which no unfinished
// transaction can have log records. A quiescent checkpoint is then
// written so the next recovery stops here.
func (rm *Manager) Recover() error {
	err := rm.doRecover()
	if err != nil {
		return err
	}

	err = rm.bm.FlushAll(rm.txnum)
	if err != nil {
		return err
	}
	lsn, err := AppendCheckpoint(rm.lm)
	if err != nil {
		return err
	}
	return rm.lm.Flush(lsn)
}

func (rm *Manager) doRecover() error {
	finished := map[int32]struct{}{}

	it, err := rm.lm.Iterator()
	if err != nil {
		return err
	}
	for it.HasNext() {
		buf, err := it.Next()
		if err != nil {
			return err
		}
		rec, err := ParseRecord(buf)
		if err != nil {
			return err
		}

		switch rec.Op() {
		case CheckpointOp:
			return nil
		case CommitOp, RollbackOp:
			finished[rec.TxNumber()] = struct{}{}
		default:
			if _, ok := finished[rec.TxNumber()]; !ok {
				log.WithField("record", rec.String()).Trace("recover undo")
				err = rec.Undo(rm.tx)
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}
