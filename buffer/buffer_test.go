package buffer_test

import (
	"testing"
	"time"

	"github.com/leftmike/kura/buffer"
	"github.com/leftmike/kura/file"
	"github.com/leftmike/kura/storage"
	"github.com/leftmike/kura/testutil"
	"github.com/leftmike/kura/wal"
)

const (
	testBlockSize = 400
)

func TestMain(m *testing.M) {
	testutil.SetupLogger("buffer_test.log")
	m.Run()
}

func makeManager(t *testing.T, numbuffs int, maxWait time.Duration) (storage.Store,
	*wal.Manager, *buffer.Manager) {

	t.Helper()

	st, err := storage.MakeBTreeStore(testBlockSize)
	if err != nil {
		t.Fatal(err)
	}
	lm, err := wal.NewManager(st, "kura.wal")
	if err != nil {
		t.Fatal(err)
	}

	// The tests pin blocks of an existing file.
	for n := 0; n < 8; n++ {
		_, err = st.Append("data")
		if err != nil {
			t.Fatal(err)
		}
	}

	return st, lm, buffer.NewManager(st, lm, numbuffs, maxWait)
}

func dataBlock(num int32) file.BlockId {
	return file.BlockId{Filename: "data", Blknum: num}
}

func TestPinUnpin(t *testing.T) {
	_, _, bm := makeManager(t, 3, 0)

	if bm.Available() != 3 {
		t.Fatalf("Available() got %d want 3", bm.Available())
	}

	b1, err := bm.Pin(dataBlock(1))
	if err != nil {
		t.Fatalf("Pin(1) failed with %s", err)
	}
	if bm.Available() != 2 {
		t.Errorf("Available() got %d want 2", bm.Available())
	}

	// Pinning the same block again returns the same buffer.
	b2, err := bm.Pin(dataBlock(1))
	if err != nil {
		t.Fatalf("Pin(1) failed with %s", err)
	}
	if b1 != b2 {
		t.Error("Pin(1) twice got different buffers")
	}
	if bm.Available() != 2 {
		t.Errorf("Available() got %d want 2", bm.Available())
	}

	bm.Unpin(b1)
	if bm.Available() != 2 {
		t.Errorf("Available() got %d want 2", bm.Available())
	}
	bm.Unpin(b2)
	if bm.Available() != 3 {
		t.Errorf("Available() got %d want 3", bm.Available())
	}
}

func TestReplacement(t *testing.T) {
	st, _, bm := makeManager(t, 3, 100*time.Millisecond)

	b1, err := bm.Pin(dataBlock(1))
	if err != nil {
		t.Fatal(err)
	}
	b1.Contents().SetInt(80, 100)
	b1.SetModified(1, wal.NoLSN)
	bm.Unpin(b1)

	// Fill the pool so that block 1 is replaced.
	for num := int32(2); num <= 4; num++ {
		b, err := bm.Pin(dataBlock(num))
		if err != nil {
			t.Fatalf("Pin(%d) failed with %s", num, err)
		}
		defer bm.Unpin(b)
	}

	// The dirty buffer was flushed when replaced.
	p := file.NewPage(testBlockSize)
	err = st.Read(dataBlock(1), p)
	if err != nil {
		t.Fatal(err)
	}
	val, _ := p.GetInt(80)
	if val != 100 {
		t.Errorf("replaced block got %d at offset 80, want 100", val)
	}
}

func TestExhaustion(t *testing.T) {
	_, _, bm := makeManager(t, 3, 100*time.Millisecond)

	for num := int32(1); num <= 3; num++ {
		_, err := bm.Pin(dataBlock(num))
		if err != nil {
			t.Fatalf("Pin(%d) failed with %s", num, err)
		}
	}
	if bm.Available() != 0 {
		t.Fatalf("Available() got %d want 0", bm.Available())
	}

	_, err := bm.Pin(dataBlock(4))
	if err != buffer.ErrBufferAbort {
		t.Errorf("Pin(4) got %v want ErrBufferAbort", err)
	}
}

func TestPinWakeup(t *testing.T) {
	_, _, bm := makeManager(t, 1, 5*time.Second)

	b1, err := bm.Pin(dataBlock(1))
	if err != nil {
		t.Fatal(err)
	}

	pinned := make(chan error, 1)
	go func() {
		b, err := bm.Pin(dataBlock(2))
		if err == nil {
			bm.Unpin(b)
		}
		pinned <- err
	}()

	// Give the pinner time to block, then free the buffer.
	time.Sleep(50 * time.Millisecond)
	bm.Unpin(b1)

	select {
	case err = <-pinned:
		if err != nil {
			t.Errorf("Pin(2) failed with %s", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Pin(2) did not complete after Unpin")
	}
}

func TestFlushAll(t *testing.T) {
	st, lm, bm := makeManager(t, 3, 0)

	b, err := bm.Pin(dataBlock(1))
	if err != nil {
		t.Fatal(err)
	}
	lsn, err := lm.Append([]byte("first change"))
	if err != nil {
		t.Fatal(err)
	}
	b.Contents().SetInt(0, 999)
	b.SetModified(7, lsn)
	bm.Unpin(b)

	err = bm.FlushAll(7)
	if err != nil {
		t.Fatalf("FlushAll(7) failed with %s", err)
	}

	p := file.NewPage(testBlockSize)
	err = st.Read(dataBlock(1), p)
	if err != nil {
		t.Fatal(err)
	}
	val, _ := p.GetInt(0)
	if val != 999 {
		t.Errorf("flushed block got %d at offset 0, want 999", val)
	}

	// The log record was made durable before the block was written: the
	// reverse iterator over the stored log must see it.
	it, err := lm.Iterator()
	if err != nil {
		t.Fatal(err)
	}
	if !it.HasNext() {
		t.Fatal("log record for the flushed change is missing")
	}
	rec, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	if string(rec) != "first change" {
		t.Errorf("log record got %q want %q", rec, "first change")
	}
}
