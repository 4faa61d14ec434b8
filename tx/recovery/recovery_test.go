package recovery_test

import (
	"errors"
	"testing"

	"github.com/leftmike/kura/buffer"
	"github.com/leftmike/kura/file"
	"github.com/leftmike/kura/storage"
	"github.com/leftmike/kura/testutil"
	"github.com/leftmike/kura/tx/recovery"
	"github.com/leftmike/kura/wal"
)

const (
	testBlockSize = 200
	testLogFile   = "kura.wal"
)

func TestMain(m *testing.M) {
	testutil.SetupLogger("recovery_test.log")
	m.Run()
}

// testTx is just enough of a transaction to modify pinned buffers and to
// be undone.
type testTx struct {
	t     *testing.T
	bm    *buffer.Manager
	rm    *recovery.Manager
	txnum int32
	pins  map[file.BlockId]*buffer.Buffer
}

func makeTx(t *testing.T, lm *wal.Manager, bm *buffer.Manager, txnum int32) *testTx {
	t.Helper()

	tx := &testTx{
		t:     t,
		bm:    bm,
		txnum: txnum,
		pins:  map[file.BlockId]*buffer.Buffer{},
	}
	rm, err := recovery.NewManager(tx, txnum, lm, bm)
	if err != nil {
		t.Fatal(err)
	}
	tx.rm = rm
	return tx
}

func (tx *testTx) Pin(blk file.BlockId) error {
	b, err := tx.bm.Pin(blk)
	if err != nil {
		return err
	}
	tx.pins[blk] = b
	return nil
}

func (tx *testTx) Unpin(blk file.BlockId) {
	tx.bm.Unpin(tx.pins[blk])
}

func (tx *testTx) SetInt(blk file.BlockId, offset int, val int32, okToLog bool) error {
	b := tx.pins[blk]
	lsn := wal.NoLSN
	if okToLog {
		var err error
		lsn, err = tx.rm.SetInt(b, offset)
		if err != nil {
			return err
		}
	}
	err := b.Contents().SetInt(offset, val)
	if err != nil {
		return err
	}
	b.SetModified(tx.txnum, lsn)
	return nil
}

func (tx *testTx) SetString(blk file.BlockId, offset int, val string, okToLog bool) error {
	b := tx.pins[blk]
	lsn := wal.NoLSN
	if okToLog {
		var err error
		lsn, err = tx.rm.SetString(b, offset)
		if err != nil {
			return err
		}
	}
	err := b.Contents().SetString(offset, val)
	if err != nil {
		return err
	}
	b.SetModified(tx.txnum, lsn)
	return nil
}

func makeEnv(t *testing.T) (storage.Store, *wal.Manager, *buffer.Manager) {
	t.Helper()

	st, err := storage.MakeBTreeStore(testBlockSize)
	if err != nil {
		t.Fatal(err)
	}
	lm, err := wal.NewManager(st, testLogFile)
	if err != nil {
		t.Fatal(err)
	}
	_, err = st.Append("data")
	if err != nil {
		t.Fatal(err)
	}
	return st, lm, buffer.NewManager(st, lm, 4, 0)
}

func checkStored(t *testing.T, st storage.Store, blk file.BlockId, ival int32, sval string) {
	t.Helper()

	p := file.NewPage(testBlockSize)
	err := st.Read(blk, p)
	if err != nil {
		t.Fatal(err)
	}
	val, err := p.GetInt(80)
	if err != nil {
		t.Fatal(err)
	}
	if val != ival {
		t.Errorf("stored int got %d want %d", val, ival)
	}
	s, err := p.GetString(40)
	if err != nil {
		t.Fatal(err)
	}
	if s != sval {
		t.Errorf("stored string got %q want %q", s, sval)
	}
}

func TestCommit(t *testing.T) {
	st, lm, bm := makeEnv(t)
	blk := file.BlockId{Filename: "data", Blknum: 0}

	tx := makeTx(t, lm, bm, 1)
	err := tx.Pin(blk)
	if err != nil {
		t.Fatal(err)
	}
	err = tx.SetInt(blk, 80, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	err = tx.SetString(blk, 40, "one", true)
	if err != nil {
		t.Fatal(err)
	}
	err = tx.rm.Commit()
	if err != nil {
		t.Fatalf("Commit() failed with %s", err)
	}
	tx.Unpin(blk)

	// The dirty buffer was flushed before the commit record.
	checkStored(t, st, blk, 1, "one")

	it, err := lm.Iterator()
	if err != nil {
		t.Fatal(err)
	}
	buf, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	rec, err := recovery.ParseRecord(buf)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Op() != recovery.CommitOp || rec.TxNumber() != 1 {
		t.Errorf("latest log record got %s want <COMMIT 1>", rec)
	}
}

func TestRollback(t *testing.T) {
	st, lm, bm := makeEnv(t)
	blk := file.BlockId{Filename: "data", Blknum: 0}

	tx1 := makeTx(t, lm, bm, 1)
	err := tx1.Pin(blk)
	if err != nil {
		t.Fatal(err)
	}
	err = tx1.SetInt(blk, 80, 100, true)
	if err != nil {
		t.Fatal(err)
	}
	err = tx1.SetString(blk, 40, "alpha", true)
	if err != nil {
		t.Fatal(err)
	}
	err = tx1.rm.Commit()
	if err != nil {
		t.Fatal(err)
	}
	tx1.Unpin(blk)

	tx2 := makeTx(t, lm, bm, 2)
	err = tx2.Pin(blk)
	if err != nil {
		t.Fatal(err)
	}
	err = tx2.SetInt(blk, 80, 200, true)
	if err != nil {
		t.Fatal(err)
	}
	err = tx2.SetString(blk, 40, "beta", true)
	if err != nil {
		t.Fatal(err)
	}

	err = tx2.rm.Rollback()
	if err != nil {
		t.Fatalf("Rollback() failed with %s", err)
	}
	tx2.Unpin(blk)

	checkStored(t, st, blk, 100, "alpha")

	it, err := lm.Iterator()
	if err != nil {
		t.Fatal(err)
	}
	buf, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	rec, err := recovery.ParseRecord(buf)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Op() != recovery.RollbackOp || rec.TxNumber() != 2 {
		t.Errorf("latest log record got %s want <ROLLBACK 2>", rec)
	}
}

func TestRecover(t *testing.T) {
	st, lm, bm := makeEnv(t)
	blk := file.BlockId{Filename: "data", Blknum: 0}

	tx1 := makeTx(t, lm, bm, 1)
	err := tx1.Pin(blk)
	if err != nil {
		t.Fatal(err)
	}
	err = tx1.SetInt(blk, 80, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	err = tx1.SetString(blk, 40, "one", true)
	if err != nil {
		t.Fatal(err)
	}
	err = tx1.rm.Commit()
	if err != nil {
		t.Fatal(err)
	}
	tx1.Unpin(blk)

	// tx2 modifies the block and its dirty buffer reaches storage, but it
	// never commits.
	tx2 := makeTx(t, lm, bm, 2)
	err = tx2.Pin(blk)
	if err != nil {
		t.Fatal(err)
	}
	err = tx2.SetInt(blk, 80, 2, true)
	if err != nil {
		t.Fatal(err)
	}
	err = tx2.SetString(blk, 40, "two", true)
	if err != nil {
		t.Fatal(err)
	}
	err = bm.FlushAll(2)
	if err != nil {
		t.Fatal(err)
	}
	checkStored(t, st, blk, 2, "two")

	// Crash: the old managers are abandoned and fresh ones reopen the
	// stored log.
	lm2, err := wal.NewManager(st, testLogFile)
	if err != nil {
		t.Fatal(err)
	}
	bm2 := buffer.NewManager(st, lm2, 4, 0)

	tx3 := makeTx(t, lm2, bm2, 3)
	err = tx3.rm.Recover()
	if err != nil {
		t.Fatalf("Recover() failed with %s", err)
	}

	// tx2's changes are gone; tx1's survive.
	checkStored(t, st, blk, 1, "one")

	it, err := lm2.Iterator()
	if err != nil {
		t.Fatal(err)
	}
	buf, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	rec, err := recovery.ParseRecord(buf)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Op() != recovery.CheckpointOp {
		t.Errorf("latest log record got %s want <CHECKPOINT>", rec)
	}

	// A second recovery stops at the checkpoint and changes nothing.
	tx4 := makeTx(t, lm2, bm2, 4)
	err = tx4.rm.Recover()
	if err != nil {
		t.Fatalf("second Recover() failed with %s", err)
	}
	checkStored(t, st, blk, 1, "one")
}

func TestParseRecord(t *testing.T) {
	p := file.NewPage(8)
	p.SetInt(0, 99)
	_, err := recovery.ParseRecord(p.Contents())
	if !errors.Is(err, recovery.ErrRecovery) {
		t.Errorf("ParseRecord(unknown op) got %v want ErrRecovery", err)
	}

	_, err = recovery.ParseRecord([]byte{1, 2})
	if !errors.Is(err, recovery.ErrRecovery) {
		t.Errorf("ParseRecord(short record) got %v want ErrRecovery", err)
	}
}
