package tx

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/kura/buffer"
	"github.com/leftmike/kura/file"
	"github.com/leftmike/kura/storage"
	"github.com/leftmike/kura/tx/concurrency"
	"github.com/leftmike/kura/tx/recovery"
	"github.com/leftmike/kura/wal"
)

// Transaction gives its client ACID access to blocks: every read takes a
// shared lock, every write takes an exclusive lock and logs the old
// value, and all locks are held until the transaction ends. Blocks must
// be pinned before they are read or written.
//
// A Transaction is used by a single goroutine; different transactions
// may run concurrently.
type Transaction struct {
	st    storage.Store
	lm    *wal.Manager
	bm    *buffer.Manager
	rm    *recovery.Manager
	cm    *concurrency.Manager
	bufs  *bufferList
	txnum   int32
	done    func()
	ended   bool
	rolling bool
}

// New starts transaction txnum, logging its start record. done, if not
// nil, is called once when the transaction ends.
func New(st storage.Store, lm *wal.Manager, bm *buffer.Manager, lt *concurrency.LockTable,
	txnum int32, done func()) (*Transaction, error) {

	tx := &Transaction{
		st:    st,
		lm:    lm,
		bm:    bm,
		cm:    concurrency.NewManager(lt, txnum),
		bufs:  makeBufferList(bm),
		txnum: txnum,
		done:  done,
	}
	rm, err := recovery.NewManager(tx, txnum, lm, bm)
	if err != nil {
		return nil, err
	}
	tx.rm = rm

	log.WithField("tx", txnum).Trace("transaction started")
	return tx, nil
}

func (tx *Transaction) TxNumber() int32 {
	return tx.txnum
}

func (tx *Transaction) BlockSize() int {
	return tx.st.BlockSize()
}

// Available returns the number of unpinned buffers in the pool.
func (tx *Transaction) Available() int {
	return tx.bm.Available()
}

// Commit makes the transaction's modifications durable and visible, then
// releases its locks and buffers.
func (tx *Transaction) Commit() error {
	if tx.ended {
		return fmt.Errorf("tx: transaction %d already ended", tx.txnum)
	}

	err := tx.rm.Commit()
	if err != nil {
		return err
	}
	log.WithField("tx", tx.txnum).Trace("transaction committed")
	tx.end()
	return nil
}

// Rollback undoes the transaction's modifications, then releases its
// locks and buffers.
func (tx *Transaction) Rollback() error {
	if tx.ended {
		return fmt.Errorf("tx: transaction %d already ended", tx.txnum)
	}

	tx.rolling = true
	err := tx.rm.Rollback()
	tx.rolling = false
	if err != nil {
		return err
	}
	log.WithField("tx", tx.txnum).Trace("transaction rolled back")
	tx.end()
	return nil
}

// Recover undoes every modification of every unfinished transaction and
// writes a recovery checkpoint. It must run before any concurrent
// transactions are started.
func (tx *Transaction) Recover() error {
	if tx.ended {
		return fmt.Errorf("tx: transaction %d already ended", tx.txnum)
	}

	err := tx.rm.Recover()
	if err != nil {
		return err
	}
	log.WithField("tx", tx.txnum).Debug("recovery complete")
	tx.end()
	return nil
}

func (tx *Transaction) end() {
	tx.cm.Release()
	tx.bufs.unpinAll()
	tx.ended = true
	if tx.done != nil {
		tx.done()
	}
}

// abortOn rolls the transaction back when err is a lock or buffer abort:
// those mean the transaction cannot proceed and must release what it
// holds so the others can. Aborts while already rolling back are passed
// through.
func (tx *Transaction) abortOn(err error) error {
	if tx.ended || tx.rolling {
		return err
	}
	if err == concurrency.ErrLockAbort || err == buffer.ErrBufferAbort {
		rberr := tx.Rollback()
		if rberr != nil {
			log.WithFields(log.Fields{"tx": tx.txnum,
				"error": rberr}).Warn("rollback after abort failed")
		}
	}
	return err
}

func (tx *Transaction) Pin(blk file.BlockId) error {
	return tx.abortOn(tx.bufs.pin(blk))
}

func (tx *Transaction) Unpin(blk file.BlockId) {
	tx.bufs.unpin(blk)
}

func (tx *Transaction) pinned(blk file.BlockId) (*buffer.Buffer, error) {
	b := tx.bufs.buffer(blk)
	if b == nil {
		return nil, fmt.Errorf("tx: transaction %d has not pinned block %s", tx.txnum, blk)
	}
	return b, nil
}

// GetInt returns the int32 at offset in blk, shared locking the block.
func (tx *Transaction) GetInt(blk file.BlockId, offset int) (int32, error) {
	err := tx.cm.SLock(blk)
	if err != nil {
		return 0, tx.abortOn(err)
	}
	b, err := tx.pinned(blk)
	if err != nil {
		return 0, err
	}
	return b.Contents().GetInt(offset)
}

// GetString returns the string at offset in blk, shared locking the
// block.
func (tx *Transaction) GetString(blk file.BlockId, offset int) (string, error) {
	err := tx.cm.SLock(blk)
	if err != nil {
		return "", tx.abortOn(err)
	}
	b, err := tx.pinned(blk)
	if err != nil {
		return "", err
	}
	return b.Contents().GetString(offset)
}

// SetInt writes val at offset in blk, exclusive locking the block and,
// when okToLog, logging the old value first. Recovery undoes with
// okToLog false.
func (tx *Transaction) SetInt(blk file.BlockId, offset int, val int32, okToLog bool) error {
	err := tx.cm.XLock(blk)
	if err != nil {
		return tx.abortOn(err)
	}
	b, err := tx.pinned(blk)
	if err != nil {
		return err
	}

	lsn := wal.NoLSN
	if okToLog {
		lsn, err = tx.rm.SetInt(b, offset)
		if err != nil {
			return err
		}
	}
	err = b.Contents().SetInt(offset, val)
	if err != nil {
		return err
	}
	b.SetModified(tx.txnum, lsn)
	return nil
}

// SetString writes val at offset in blk, exclusive locking the block
// and, when okToLog, logging the old value first.
func (tx *Transaction) SetString(blk file.BlockId, offset int, val string, okToLog bool) error {
	err := tx.cm.XLock(blk)
	if err != nil {
		return tx.abortOn(err)
	}
	b, err := tx.pinned(blk)
	if err != nil {
		return err
	}

	lsn := wal.NoLSN
	if okToLog {
		lsn, err = tx.rm.SetString(b, offset)
		if err != nil {
			return err
		}
	}
	err = b.Contents().SetString(offset, val)
	if err != nil {
		return err
	}
	b.SetModified(tx.txnum, lsn)
	return nil
}

// Size returns the number of blocks in filename. The length is read
// under a shared lock on the file's end marker so it cannot change
// before the transaction ends.
func (tx *Transaction) Size(filename string) (int32, error) {
	eof := file.BlockId{Filename: filename, Blknum: file.EndOfFile}
	err := tx.cm.SLock(eof)
	if err != nil {
		return 0, tx.abortOn(err)
	}
	return tx.st.Length(filename)
}

// Append adds a zeroed block to the end of filename, exclusive locking
// the file's end marker.
func (tx *Transaction) Append(filename string) (file.BlockId, error) {
	eof := file.BlockId{Filename: filename, Blknum: file.EndOfFile}
	err := tx.cm.XLock(eof)
	if err != nil {
		return file.BlockId{}, tx.abortOn(err)
	}
	return tx.st.Append(filename)
}
