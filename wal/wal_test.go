package wal_test

import (
	"fmt"
	"testing"

	"github.com/leftmike/kura/file"
	"github.com/leftmike/kura/storage"
	"github.com/leftmike/kura/testutil"
	"github.com/leftmike/kura/wal"
)

const (
	testBlockSize = 120
)

func TestMain(m *testing.M) {
	testutil.SetupLogger("wal_test.log")
	m.Run()
}

func makeRecord(s string, n int32) []byte {
	p := file.NewPage(file.MaxLength(len(s)) + 4)
	p.SetString(0, s)
	p.SetInt(file.MaxLength(len(s)), n)
	return p.Contents()
}

func parseRecord(rec []byte) (string, int32, error) {
	p := file.NewPageWith(rec)
	s, err := p.GetString(0)
	if err != nil {
		return "", 0, err
	}
	n, err := p.GetInt(file.MaxLength(len(s)))
	if err != nil {
		return "", 0, err
	}
	return s, n, nil
}

func appendRecords(t *testing.T, lm *wal.Manager, start, end int32) wal.LSN {
	t.Helper()

	var lsn wal.LSN
	for n := start; n <= end; n++ {
		var err error
		lsn, err = lm.Append(makeRecord(fmt.Sprintf("record%d", n), n+100))
		if err != nil {
			t.Fatalf("Append(record%d) failed with %s", n, err)
		}
	}
	return lsn
}

func checkRecords(t *testing.T, lm *wal.Manager, newest, oldest int32) {
	t.Helper()

	it, err := lm.Iterator()
	if err != nil {
		t.Fatalf("Iterator() failed with %s", err)
	}

	// The iterator returns records newest first.
	var got []string
	for it.HasNext() {
		rec, err := it.Next()
		if err != nil {
			t.Fatalf("Next() failed with %s", err)
		}
		s, val, err := parseRecord(rec)
		if err != nil {
			t.Fatalf("parseRecord failed with %s", err)
		}
		got = append(got, fmt.Sprintf("%s=%d", s, val))
	}

	var want []string
	for n := newest; n >= oldest; n-- {
		want = append(want, fmt.Sprintf("record%d=%d", n, n+100))
	}

	var trc string
	if !testutil.DeepEqual(got, want, &trc) {
		t.Errorf("log records differ:\n%s", trc)
	}
}

func TestAppendIterate(t *testing.T) {
	st, err := storage.MakeBTreeStore(testBlockSize)
	if err != nil {
		t.Fatal(err)
	}
	lm, err := wal.NewManager(st, "kura.wal")
	if err != nil {
		t.Fatal(err)
	}

	// An empty log has no records.
	it, err := lm.Iterator()
	if err != nil {
		t.Fatal(err)
	}
	if it.HasNext() {
		t.Error("HasNext() got true for an empty log")
	}

	// Enough records to spill over several blocks.
	appendRecords(t, lm, 1, 35)
	checkRecords(t, lm, 35, 1)

	appendRecords(t, lm, 36, 70)
	checkRecords(t, lm, 70, 1)
}

func TestLSN(t *testing.T) {
	st, err := storage.MakeBTreeStore(testBlockSize)
	if err != nil {
		t.Fatal(err)
	}
	lm, err := wal.NewManager(st, "kura.wal")
	if err != nil {
		t.Fatal(err)
	}

	var last wal.LSN
	for n := 0; n < 50; n++ {
		lsn, err := lm.Append(makeRecord("rec", int32(n)))
		if err != nil {
			t.Fatal(err)
		}
		if lsn <= last {
			t.Fatalf("Append() got lsn %d after %d; want strictly increasing", lsn, last)
		}
		last = lsn
	}
}

func TestFlush(t *testing.T) {
	st, err := storage.MakeBTreeStore(testBlockSize)
	if err != nil {
		t.Fatal(err)
	}
	lm, err := wal.NewManager(st, "kura.wal")
	if err != nil {
		t.Fatal(err)
	}

	lsn := appendRecords(t, lm, 1, 3)

	// Records appended but not flushed are not in the stored block.
	p := file.NewPage(testBlockSize)
	err = st.Read(file.BlockId{Filename: "kura.wal", Blknum: 0}, p)
	if err != nil {
		t.Fatal(err)
	}
	boundary, _ := p.GetInt(0)
	if int(boundary) != testBlockSize {
		t.Errorf("unflushed log block boundary got %d want %d", boundary, testBlockSize)
	}

	err = lm.Flush(lsn)
	if err != nil {
		t.Fatalf("Flush(%d) failed with %s", lsn, err)
	}
	err = st.Read(file.BlockId{Filename: "kura.wal", Blknum: 0}, p)
	if err != nil {
		t.Fatal(err)
	}
	boundary, _ = p.GetInt(0)
	if int(boundary) >= testBlockSize {
		t.Errorf("flushed log block boundary got %d want < %d", boundary, testBlockSize)
	}
}

func TestReopen(t *testing.T) {
	err := testutil.CleanDir("testdata", []string{".gitignore"})
	if err != nil {
		t.Fatal(err)
	}

	st, err := storage.MakeDiskStore("testdata", testBlockSize, false)
	if err != nil {
		t.Fatal(err)
	}
	lm, err := wal.NewManager(st, "kura.wal")
	if err != nil {
		t.Fatal(err)
	}
	lsn := appendRecords(t, lm, 1, 20)
	err = lm.Flush(lsn)
	if err != nil {
		t.Fatal(err)
	}
	err = st.Close()
	if err != nil {
		t.Fatal(err)
	}

	st, err = storage.MakeDiskStore("testdata", testBlockSize, false)
	if err != nil {
		t.Fatal(err)
	}
	lm, err = wal.NewManager(st, "kura.wal")
	if err != nil {
		t.Fatal(err)
	}
	checkRecords(t, lm, 20, 1)

	// New records go after the old ones.
	appendRecords(t, lm, 21, 30)
	checkRecords(t, lm, 30, 1)
}

func TestTooLarge(t *testing.T) {
	st, err := storage.MakeBTreeStore(testBlockSize)
	if err != nil {
		t.Fatal(err)
	}
	lm, err := wal.NewManager(st, "kura.wal")
	if err != nil {
		t.Fatal(err)
	}

	_, err = lm.Append(make([]byte, testBlockSize))
	if err == nil {
		t.Error("Append(big record) did not fail")
	}
}
