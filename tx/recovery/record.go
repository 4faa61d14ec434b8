package recovery

import (
	"errors"
	"fmt"

	"github.com/leftmike/kura/file"
	"github.com/leftmike/kura/wal"
)

// ErrRecovery means the log could not be interpreted; consistency can no
// longer be guaranteed and the engine must not accept new transactions.
var ErrRecovery = errors.New("recovery: log is inconsistent")

// Op discriminates the log record variants. It is the int32 at offset 0
// of every record.
type Op int32

const (
	CheckpointOp Op = iota
	StartOp
	CommitOp
	RollbackOp
	SetIntOp
	SetStringOp
)

func (op Op) String() string {
	switch op {
	case CheckpointOp:
		return "CHECKPOINT"
	case StartOp:
		return "START"
	case CommitOp:
		return "COMMIT"
	case RollbackOp:
		return "ROLLBACK"
	case SetIntOp:
		return "SETINT"
	case SetStringOp:
		return "SETSTRING"
	}
	return fmt.Sprintf("Op(%d)", int32(op))
}

// UndoTx is the part of a transaction that undoing a log record needs.
type UndoTx interface {
	Pin(blk file.BlockId) error
	Unpin(blk file.BlockId)
	SetInt(blk file.BlockId, offset int, val int32, okToLog bool) error
	SetString(blk file.BlockId, offset int, val string, okToLog bool) error
}

type LogRecord interface {
	Op() Op
	TxNumber() int32
	Undo(tx UndoTx) error
	String() string
}

// ParseRecord decodes the raw bytes of a log record. An unknown or
// truncated record fails with ErrRecovery: recovery must stop rather
// than guess.
func ParseRecord(rec []byte) (LogRecord, error) {
	p := file.NewPageWith(rec)
	op, err := p.GetInt(0)
	if err != nil {
		return nil, fmt.Errorf("recovery: record of %d bytes has no type: %w", len(rec),
			ErrRecovery)
	}

	switch Op(op) {
	case CheckpointOp:
		return checkpointRecord{}, nil
	case StartOp:
		txnum, err := parseTxNumber(p)
		if err != nil {
			return nil, err
		}
		return startRecord{txnum: txnum}, nil
	case CommitOp:
		txnum, err := parseTxNumber(p)
		if err != nil {
			return nil, err
		}
		return commitRecord{txnum: txnum}, nil
	case RollbackOp:
		txnum, err := parseTxNumber(p)
		if err != nil {
			return nil, err
		}
		return rollbackRecord{txnum: txnum}, nil
	case SetIntOp:
		return parseSetIntRecord(p)
	case SetStringOp:
		return parseSetStringRecord(p)
	}
	return nil, fmt.Errorf("recovery: unknown log record type %d: %w", op, ErrRecovery)
}

func parseTxNumber(p *file.Page) (int32, error) {
	txnum, err := p.GetInt(4)
	if err != nil {
		return 0, fmt.Errorf("recovery: record has no transaction number: %w", ErrRecovery)
	}
	return txnum, nil
}

// checkpointRecord marks a quiescent checkpoint: no transaction was
// active when it was written, so recovery can stop scanning here.
type checkpointRecord struct{}

func (checkpointRecord) Op() Op {
	return CheckpointOp
}

func (checkpointRecord) TxNumber() int32 {
	return -1
}

func (checkpointRecord) Undo(tx UndoTx) error {
	return nil
}

func (checkpointRecord) String() string {
	return "<CHECKPOINT>"
}

// AppendCheckpoint adds a checkpoint record to the log; the caller is
// responsible for quiescence and for flushing.
func AppendCheckpoint(lm *wal.Manager) (wal.LSN, error) {
	p := file.NewPage(4)
	p.SetInt(0, int32(CheckpointOp))
	return lm.Append(p.Contents())
}

type startRecord struct {
	txnum int32
}

func (startRecord) Op() Op {
	return StartOp
}

func (r startRecord) TxNumber() int32 {
	return r.txnum
}

func (startRecord) Undo(tx UndoTx) error {
	return nil
}

func (r startRecord) String() string {
	return fmt.Sprintf("<START %d>", r.txnum)
}

func appendStart(lm *wal.Manager, txnum int32) (wal.LSN, error) {
	return appendTxRecord(lm, StartOp, txnum)
}

type commitRecord struct {
	txnum int32
}

func (commitRecord) Op() Op {
	return CommitOp
}

func (r commitRecord) TxNumber() int32 {
	return r.txnum
}

func (commitRecord) Undo(tx UndoTx) error {
	return nil
}

func (r commitRecord) String() string {
	return fmt.Sprintf("<COMMIT %d>", r.txnum)
}

func appendCommit(lm *wal.Manager, txnum int32) (wal.LSN, error) {
	return appendTxRecord(lm, CommitOp, txnum)
}

type rollbackRecord struct {
	txnum int32
}

func (rollbackRecord) Op() Op {
	return RollbackOp
}

func (r rollbackRecord) TxNumber() int32 {
	return r.txnum
}

func (rollbackRecord) Undo(tx UndoTx) error {
	return nil
}

func (r rollbackRecord) String() string {
	return fmt.Sprintf("<ROLLBACK %d>", r.txnum)
}

func appendRollback(lm *wal.Manager, txnum int32) (wal.LSN, error) {
	return appendTxRecord(lm, RollbackOp, txnum)
}

func appendTxRecord(lm *wal.Manager, op Op, txnum int32) (wal.LSN, error) {
	p := file.NewPage(8)
	p.SetInt(0, int32(op))
	p.SetInt(4, txnum)
	return lm.Append(p.Contents())
}

// setIntRecord holds the value an int32 had before a transaction
// overwrote it: undo-only logging stores no new values.
type setIntRecord struct {
	txnum  int32
	blk    file.BlockId
	offset int32
	val    int32
}

func parseSetIntRecord(p *file.Page) (LogRecord, error) {
	var r setIntRecord
	var filename string
	var err error

	if r.txnum, err = p.GetInt(4); err == nil {
		if filename, err = p.GetString(8); err == nil {
			bpos := 8 + file.MaxLength(len(filename))
			var blknum int32
			if blknum, err = p.GetInt(bpos); err == nil {
				r.blk = file.BlockId{Filename: filename, Blknum: blknum}
				if r.offset, err = p.GetInt(bpos + 4); err == nil {
					r.val, err = p.GetInt(bpos + 8)
				}
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("recovery: bad setint record: %w", ErrRecovery)
	}
	return r, nil
}

func (setIntRecord) Op() Op {
	return SetIntOp
}

func (r setIntRecord) TxNumber() int32 {
	return r.txnum
}

func (r setIntRecord) Undo(tx UndoTx) error {
	err := tx.Pin(r.blk)
	if err != nil {
		return err
	}
	err = tx.SetInt(r.blk, int(r.offset), r.val, false)
	if err != nil {
		return err
	}
	tx.Unpin(r.blk)
	return nil
}

func (r setIntRecord) String() string {
	return fmt.Sprintf("<SETINT %d %s %d %d>", r.txnum, r.blk, r.offset, r.val)
}

func appendSetInt(lm *wal.Manager, txnum int32, blk file.BlockId, offset int,
	val int32) (wal.LSN, error) {

	bpos := 8 + file.MaxLength(len(blk.Filename))
	p := file.NewPage(bpos + 12)
	p.SetInt(0, int32(SetIntOp))
	p.SetInt(4, txnum)
	p.SetString(8, blk.Filename)
	p.SetInt(bpos, blk.Blknum)
	p.SetInt(bpos+4, int32(offset))
	p.SetInt(bpos+8, val)
	return lm.Append(p.Contents())
}

// setStringRecord is the string flavor of setIntRecord.
type setStringRecord struct {
	txnum  int32
	blk    file.BlockId
	offset int32
	val    string
}

func parseSetStringRecord(p *file.Page) (LogRecord, error) {
	var r setStringRecord
	var filename string
	var err error

	if r.txnum, err = p.GetInt(4); err == nil {
		if filename, err = p.GetString(8); err == nil {
			bpos := 8 + file.MaxLength(len(filename))
			var blknum int32
			if blknum, err = p.GetInt(bpos); err == nil {
				r.blk = file.BlockId{Filename: filename, Blknum: blknum}
				if r.offset, err = p.GetInt(bpos + 4); err == nil {
					r.val, err = p.GetString(bpos + 8)
				}
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("recovery: bad setstring record: %w", ErrRecovery)
	}
	return r, nil
}

func (setStringRecord) Op() Op {
	return SetStringOp
}

func (r setStringRecord) TxNumber() int32 {
	return r.txnum
}

func (r setStringRecord) Undo(tx UndoTx) error {
	err := tx.Pin(r.blk)
	if err != nil {
		return err
	}
	err = tx.SetString(r.blk, int(r.offset), r.val, false)
	if err != nil {
		return err
	}
	tx.Unpin(r.blk)
	return nil
}

func (r setStringRecord) String() string {
	return fmt.Sprintf("<SETSTRING %d %s %d %s>", r.txnum, r.blk, r.offset, r.val)
}

func appendSetString(lm *wal.Manager, txnum int32, blk file.BlockId, offset int,
	val string) (wal.LSN, error) {

	bpos := 8 + file.MaxLength(len(blk.Filename))
	p := file.NewPage(bpos + 8 + file.MaxLength(len(val)))
	p.SetInt(0, int32(SetStringOp))
	p.SetInt(4, txnum)
	p.SetString(8, blk.Filename)
	p.SetInt(bpos, blk.Blknum)
	p.SetInt(bpos+4, int32(offset))
	p.SetString(bpos+8, val)
	return lm.Append(p.Contents())
}
